package n2k

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	maxFieldsPerPGN = 3
	maxFrameBytes   = 8
)

//go:embed pgns.yaml
var defaultTableYAML []byte

var defaultTable *Table

func init() {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("n2k: load embedded PGN table: %v", err))
	}
	defaultTable = t
}

// DefaultTable returns the PGN field table embedded in the binary.
func DefaultTable() *Table {
	return defaultTable
}

// FieldSpec describes how one sub-field is cut out of the data octets.
// Multi-byte values are little-endian.
type FieldSpec struct {
	Name      string  `yaml:"name"`
	Offset    int     `yaml:"offset"`
	Width     int     `yaml:"width"`
	Shift     uint    `yaml:"shift"`
	Bits      uint    `yaml:"bits"`
	Signed    bool    `yaml:"signed"`
	Scale     float64 `yaml:"scale"`
	Add       float64 `yaml:"add"`
	Unit      string  `yaml:"unit"`
	Precision int     `yaml:"precision"`
	Lookup    string  `yaml:"lookup"`
}

// End is the first byte offset after the field.
func (f FieldSpec) End() int {
	return f.Offset + f.Width
}

// PGNSpec is one entry of the field table.
type PGNSpec struct {
	PGN         uint32      `yaml:"pgn"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Table       string      `yaml:"table"`
	Fields      []FieldSpec `yaml:"fields"`
}

// MinLength is the number of octets needed to decode every declared field.
func (p PGNSpec) MinLength() int {
	n := 0
	for _, f := range p.Fields {
		if f.End() > n {
			n = f.End()
		}
	}
	return n
}

type tableFile struct {
	Lookups map[string]map[int]string `yaml:"lookups"`
	PGNs    []PGNSpec                 `yaml:"pgns"`
}

// Table maps PGNs to their field layouts and holds the enumerations used by
// lookup fields.
type Table struct {
	pgns    map[uint32]PGNSpec
	lookups map[string]map[int]string
}

// LoadTable reads a YAML field table from disk.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty PGN table path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read PGN table %s", path)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML field table.
func ParseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "decode PGN table")
	}
	t := &Table{
		pgns:    make(map[uint32]PGNSpec, len(file.PGNs)),
		lookups: make(map[string]map[int]string, len(file.Lookups)),
	}
	for name, values := range file.Lookups {
		t.lookups[strings.TrimSpace(name)] = values
	}
	for i, entry := range file.PGNs {
		if entry.PGN > 0x3FFFF {
			return nil, errors.Newf("pgns[%d]: pgn %d out of range", i, entry.PGN)
		}
		if _, exists := t.pgns[entry.PGN]; exists {
			return nil, errors.Newf("pgns[%d]: duplicate pgn %d", i, entry.PGN)
		}
		if len(entry.Fields) > maxFieldsPerPGN {
			return nil, errors.Newf("pgns[%d]: %d fields, at most %d allowed", i, len(entry.Fields), maxFieldsPerPGN)
		}
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Table = strings.TrimSpace(entry.Table)
		if entry.Table != "" {
			if _, ok := t.lookups[entry.Table]; !ok {
				return nil, errors.Newf("pgns[%d]: unknown table %q", i, entry.Table)
			}
		}
		for j := range entry.Fields {
			f := &entry.Fields[j]
			if f.Width == 0 {
				f.Width = 1
			}
			if f.Width < 1 || f.Width > 4 {
				return nil, errors.Newf("pgns[%d].fields[%d]: width %d out of range", i, j, f.Width)
			}
			if f.Offset < 0 || f.End() > maxFrameBytes {
				return nil, errors.Newf("pgns[%d].fields[%d]: bytes %d..%d exceed a frame", i, j, f.Offset, f.End())
			}
			if f.Shift >= uint(f.Width*8) {
				return nil, errors.Newf("pgns[%d].fields[%d]: shift %d exceeds width", i, j, f.Shift)
			}
			if f.Bits == 0 {
				f.Bits = uint(f.Width*8) - f.Shift
			}
			if f.Shift+f.Bits > uint(f.Width*8) {
				return nil, errors.Newf("pgns[%d].fields[%d]: bit range exceeds width", i, j)
			}
			if f.Scale == 0 {
				f.Scale = 1
			}
			if f.Lookup != "" {
				if _, ok := t.lookups[f.Lookup]; !ok {
					return nil, errors.Newf("pgns[%d].fields[%d]: unknown lookup %q", i, j, f.Lookup)
				}
			}
		}
		t.pgns[entry.PGN] = entry
	}
	return t, nil
}

// Lookup returns the field layout registered for pgn.
func (t *Table) Lookup(pgn uint32) (PGNSpec, bool) {
	if t == nil {
		return PGNSpec{}, false
	}
	entry, ok := t.pgns[pgn]
	return entry, ok
}

// Label resolves an enumerated value.
func (t *Table) Label(lookup string, value int) (string, bool) {
	if t == nil {
		return "", false
	}
	label, ok := t.lookups[lookup][value]
	return label, ok
}

// PGNs lists the registered PGNs in ascending order.
func (t *Table) PGNs() []uint32 {
	if t == nil {
		return nil
	}
	out := make([]uint32, 0, len(t.pgns))
	for pgn := range t.pgns {
		out = append(out, pgn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
