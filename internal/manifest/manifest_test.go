package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSaveVerify(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "frames.log")
	csvPath := filepath.Join(dir, "nmea.csv")
	if err := os.WriteFile(logPath, []byte("1 0x100 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(csvPath, []byte("PGN\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Build([]string{logPath, csvPath, logPath})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(m.Items))
	}
	types := map[string]string{}
	for _, it := range m.Items {
		types[filepath.Base(it.Path)] = it.Type
	}
	if types["frames.log"] != "framelog" || types["nmea.csv"] != "csv" {
		t.Fatalf("types = %v", types)
	}

	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	changed, err := Verify(loaded)
	if err != nil || len(changed) != 0 {
		t.Fatalf("Verify = %v, %v", changed, err)
	}

	if err := os.WriteFile(csvPath, []byte("PGN;Source\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Remove(logPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changed, err = Verify(loaded)
	if err != nil || len(changed) != 2 {
		t.Fatalf("Verify after edits = %v, %v", changed, err)
	}
}

func TestBuildMissingFile(t *testing.T) {
	if _, err := Build([]string{filepath.Join(t.TempDir(), "nope.csv")}); err == nil {
		t.Fatalf("expected error")
	}
}
