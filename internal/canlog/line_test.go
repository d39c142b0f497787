package canlog

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseLineScenario(t *testing.T) {
	line, err := ParseLine(1, "1634567890 0x1F119 8 01 02 03 04 05 06 07 08")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if line.ID != 0x1F119 {
		t.Fatalf("ID = 0x%X, want 0x1F119", line.ID)
	}
	rec, err := line.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if !bytes.Equal(rec.Payload(), want) {
		t.Fatalf("payload = % X, want % X", rec.Payload(), want)
	}
	if rec.Timestamp != "1634567890" {
		t.Fatalf("timestamp = %q", rec.Timestamp)
	}
}

func TestParseLineDeclaredCountGovernsData(t *testing.T) {
	line, err := ParseLine(3, "17 09F80115 3 AA BB CC DD EE")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	rec, err := line.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Len != 3 || rec.DataText() != "AA BB CC" {
		t.Fatalf("record = %s, want 3 octets AA BB CC", rec)
	}
}

func TestParseLineRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "too few tokens", text: "123 0x1F119"},
		{name: "identifier not hex", text: "123 0xZZ 1 00"},
		{name: "identifier wider than 29 bits", text: "123 0x3FFFFFFF 1 00"},
		{name: "count not a number", text: "123 0x100 eight 00"},
		{name: "count above 8", text: "123 0x100 9 00 00 00 00 00 00 00 00 00"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(7, tc.text)
			if err == nil {
				t.Fatalf("expected error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if perr.Line != 7 {
				t.Fatalf("line = %d, want 7", perr.Line)
			}
		})
	}
}

func TestLineRecordBadOctets(t *testing.T) {
	for _, text := range []string{
		"1 0x100 2 0G 01",
		"1 0x100 2 001",
		"1 0x100 4 01 02",
	} {
		line, err := ParseLine(1, text)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", text, err)
		}
		if _, err := line.Record(); !errors.Is(err, ErrBadOctet) {
			t.Fatalf("Record(%q) error = %v, want ErrBadOctet", text, err)
		}
	}
}

func TestParseLineStripsBOM(t *testing.T) {
	line, err := ParseLine(1, "\uFEFF42 1F119 0")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if line.Timestamp != "42" || line.Declared != 0 {
		t.Fatalf("line = %+v", line)
	}
}

func TestFormatLineRoundTrip(t *testing.T) {
	rec, err := NewRecord(0x09F80115, []byte{0x00, 0x38, 0x9C, 0x1C})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	rec = rec.WithTimestamp("99")
	var buf bytes.Buffer
	if err := WriteLine(&buf, rec); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if got := buf.String(); got != "99 0x9F80115 4 00 38 9C 1C\n" {
		t.Fatalf("WriteLine = %q", got)
	}
	line, err := ParseLine(1, buf.String())
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	back, err := line.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if back != rec {
		t.Fatalf("round trip = %+v, want %+v", back, rec)
	}
}

func TestNewRecordValidates(t *testing.T) {
	if _, err := NewRecord(0x20000000, nil); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewRecord(1, make([]byte, 9)); !errors.Is(err, ErrInvalidLen) {
		t.Fatalf("expected ErrInvalidLen, got %v", err)
	}
}
