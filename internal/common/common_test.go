package common

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want || size != 3 {
		t.Fatalf("Sha256OfFile = %s, %d, want %s, 3", sum, size, want)
	}
	if _, _, err := Sha256OfFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDigestWriterForwards(t *testing.T) {
	var buf bytes.Buffer
	w := NewDigestWriter(&buf)
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "abc" || w.Size() != 3 {
		t.Fatalf("forwarded %q size %d", buf.String(), w.Size())
	}
	if !strings.HasPrefix(w.Sum(), "ba7816bf") {
		t.Fatalf("Sum = %s", w.Sum())
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.SetTotalBytes(100)
	m.AddLine(25)
	m.AddLine(25)
	m.IncRecord()
	m.IncSkipped()
	m.IncPlaceholder()
	m.Stop()
	s := m.Snapshot()
	if s.Lines != 2 || s.Bytes != 50 || s.Records != 1 || s.Skipped != 1 || s.Placeholders != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Completion() != 0.5 {
		t.Fatalf("Completion = %v, want 0.5", s.Completion())
	}
	if !strings.Contains(formatProgressLine(s), "1 skipped") {
		t.Fatalf("progress line = %q", formatProgressLine(s))
	}
}

func TestProgressPrinterStops(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	m.Start()
	stop := StartProgressPrinter(&buf, m, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	stop()
	if StartProgressPrinter(nil, m, 0) == nil {
		t.Fatalf("nil writer should return a no-op stop")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{3 * 1024 * 1024, "3.00 MiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSetLogOutputWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)
	Warnf("line %d skipped", 4)
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["message"] != "line 4 skipped" || entry["app"] != "n2kgate" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestSetupLoggingRejectsLevel(t *testing.T) {
	t.Setenv("N2K_LOG_LEVEL", "")
	if _, err := SetupLogging(LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	dir := t.TempDir()
	closer, err := SetupLogging(LogConfig{Directory: dir, Level: "debug", MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("SetupLogging: %v", err)
	}
	Logf("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "n2kgate.log")); err != nil {
		t.Fatalf("log file: %v", err)
	}
	SetLogOutput(os.Stderr)
}
