package canlog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrParse marks a log line whose structure cannot be read.
	ErrParse = errors.New("canlog: malformed line")
	// ErrBadOctet marks a structurally valid line whose data octets are not
	// all two-digit hex values, or are fewer than declared.
	ErrBadOctet = errors.New("canlog: invalid data octet")
)

// ParseError describes a rejected log line.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Line is the tokenized form of
// `<timestamp> <identifier-hex> <declared-byte-count> <byte-hex>...`.
// Only the first Declared data tokens are kept.
type Line struct {
	Number    int
	Timestamp string
	ID        uint32
	IDText    string
	Declared  int
	Octets    []string
}

// ParseLine tokenizes one log line. number is used for error reporting only.
func ParseLine(number int, text string) (Line, error) {
	fields := strings.Fields(strings.TrimPrefix(text, "\uFEFF"))
	if len(fields) < 3 {
		return Line{}, parseErr(number, ErrParse, "expected timestamp, identifier and length, got %d token(s)", len(fields))
	}
	id, err := ParseID(fields[1])
	if err != nil {
		return Line{}, &ParseError{Line: number, Reason: err.Error(), Err: err}
	}
	declared, err := strconv.Atoi(fields[2])
	if err != nil || declared < 0 || declared > maxDataLen {
		return Line{}, parseErr(number, ErrParse, "byte count %q is not in 0..8", fields[2])
	}
	octets := fields[3:]
	if len(octets) > declared {
		octets = octets[:declared]
	}
	return Line{
		Number:    number,
		Timestamp: fields[0],
		ID:        id,
		IDText:    fields[1],
		Declared:  declared,
		Octets:    octets,
	}, nil
}

// ParseID reads a hexadecimal identifier with or without a 0x prefix.
func ParseID(text string) (uint32, error) {
	s := strings.TrimSpace(text)
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" {
		return 0, errors.Wrapf(ErrParse, "empty identifier %q", text)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrParse, "identifier %q is not hexadecimal", text)
	}
	if v > maxExtID {
		return 0, errors.Wrapf(ErrInvalidID, "identifier %q", text)
	}
	return uint32(v), nil
}

// Record converts the line into a Record. It fails with ErrBadOctet when a
// data token is not a two-digit hex value or fewer tokens than declared are
// present.
func (l Line) Record() (Record, error) {
	if len(l.Octets) < l.Declared {
		return Record{}, parseErr(l.Number, ErrBadOctet, "declared %d octet(s), found %d", l.Declared, len(l.Octets))
	}
	data := make([]byte, 0, len(l.Octets))
	for _, tok := range l.Octets {
		b, ok := parseOctet(tok)
		if !ok {
			return Record{}, parseErr(l.Number, ErrBadOctet, "octet %q is not a two-digit hex value", tok)
		}
		data = append(data, b)
	}
	r, err := NewRecord(l.ID, data)
	if err != nil {
		return Record{}, &ParseError{Line: l.Number, Reason: err.Error(), Err: err}
	}
	return r.WithTimestamp(l.Timestamp), nil
}

func parseOctet(tok string) (byte, bool) {
	if len(tok) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(tok, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

func parseErr(number int, kind error, format string, args ...interface{}) error {
	reason := fmt.Sprintf(format, args...)
	return &ParseError{Line: number, Reason: reason, Err: errors.Wrap(kind, reason)}
}

// FormatLine renders r in the log line format. An empty timestamp is written
// as "0".
func FormatLine(r Record) string {
	ts := r.Timestamp
	if ts == "" {
		ts = "0"
	}
	line := fmt.Sprintf("%s 0x%X %d", ts, r.ID, r.Len)
	if r.Len > 0 {
		line += " " + r.DataText()
	}
	return line
}

// WriteLine appends r to w followed by a newline.
func WriteLine(w io.Writer, r Record) error {
	_, err := io.WriteString(w, FormatLine(r)+"\n")
	return err
}
