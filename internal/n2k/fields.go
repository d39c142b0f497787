package n2k

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// NotAvailable is written in place of any value that cannot be resolved.
const NotAvailable = "N/A"

var (
	ErrUnknownPGN       = errors.New("n2k: no field layout for PGN")
	ErrInsufficientData = errors.New("n2k: not enough data octets for PGN")
)

// Field is one decoded sub-field.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Interpretation is the decoded content of a single-frame PGN.
type Interpretation struct {
	PGN        uint32  `json:"pgn"`
	Name       string  `json:"name"`
	Fields     []Field `json:"fields"`
	Table      string  `json:"table"`
	Definition string  `json:"definition"`
}

// Field returns the i-th sub-field, or an N/A placeholder when the PGN
// declares fewer fields.
func (in Interpretation) Field(i int) Field {
	if i < 0 || i >= len(in.Fields) {
		return Field{Name: NotAvailable, Value: NotAvailable}
	}
	return in.Fields[i]
}

// Interpret decodes data with the embedded field table.
func Interpret(pgn uint32, data []byte) (Interpretation, error) {
	return defaultTable.Interpret(pgn, data)
}

// Interpret decodes data according to the layout registered for pgn.
func (t *Table) Interpret(pgn uint32, data []byte) (Interpretation, error) {
	entry, ok := t.Lookup(pgn)
	if !ok {
		return Interpretation{}, errors.Wrapf(ErrUnknownPGN, "pgn %d", pgn)
	}
	if need := entry.MinLength(); len(data) < need {
		return Interpretation{}, errors.Wrapf(ErrInsufficientData, "pgn %d needs %d octets, got %d", pgn, need, len(data))
	}
	out := Interpretation{
		PGN:        pgn,
		Name:       entry.Name,
		Fields:     make([]Field, 0, len(entry.Fields)),
		Table:      entry.Name,
		Definition: entry.Description,
	}
	for _, f := range entry.Fields {
		raw := extract(f, data)
		value := t.format(f, raw)
		out.Fields = append(out.Fields, Field{Name: f.Name, Value: value})
		if entry.Table != "" && f.Lookup == entry.Table {
			out.Table = entry.Table
			out.Definition = value
		}
	}
	return out, nil
}

// extract returns the raw field value, sign-extended when the field is
// signed.
func extract(f FieldSpec, data []byte) int64 {
	var u uint64
	for i := f.Width - 1; i >= 0; i-- {
		u = u<<8 | uint64(data[f.Offset+i])
	}
	u >>= f.Shift
	mask := uint64(1)<<f.Bits - 1
	u &= mask
	if f.Signed && u&(uint64(1)<<(f.Bits-1)) != 0 {
		return int64(u) - int64(uint64(1)<<f.Bits)
	}
	return int64(u)
}

// unavailable reports the NMEA 2000 "data not available" encodings: all ones
// for unsigned fields, the largest positive value for signed ones.
func unavailable(f FieldSpec, raw int64) bool {
	if f.Bits < 8 {
		return false
	}
	if f.Signed {
		return raw == int64(uint64(1)<<(f.Bits-1)-1)
	}
	return uint64(raw) == uint64(1)<<f.Bits-1
}

func (t *Table) format(f FieldSpec, raw int64) string {
	if f.Lookup != "" {
		if label, ok := t.Label(f.Lookup, int(raw)); ok {
			return label
		}
		if unavailable(f, raw) {
			return NotAvailable
		}
		return strconv.FormatInt(raw, 10)
	}
	if unavailable(f, raw) {
		return NotAvailable
	}
	v := float64(raw)*f.Scale + f.Add
	var s string
	if f.Scale == 1 && f.Add == 0 && f.Precision == 0 {
		s = strconv.FormatInt(raw, 10)
	} else {
		s = strconv.FormatFloat(v, 'f', f.Precision, 64)
	}
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return s
}
