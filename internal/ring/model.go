package ring

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
)

// DefaultRefreshThreshold is the number of inserts between automatic
// refreshes.
const DefaultRefreshThreshold = 10

// Column headers of the frame table.
var Headers = []string{"ID", "Len", "Datas"}

// Model presents a Buffer for display. Its visible rows are those of the
// buffer at the last Refresh, held in a ring of its own laid out like the
// buffer's. Refresh copies only the slots written since the previous one.
type Model struct {
	buf       *Buffer
	shown     []canlog.Record
	synced    uint64
	resets    uint64
	view      View
	threshold int
	pending   int
}

// NewModel wraps buf. threshold < 1 selects DefaultRefreshThreshold.
func NewModel(buf *Buffer, threshold int) *Model {
	if threshold < 1 {
		threshold = DefaultRefreshThreshold
	}
	m := &Model{buf: buf, threshold: threshold}
	m.Refresh()
	return m
}

// Buffer returns the wrapped buffer.
func (m *Model) Buffer() *Buffer {
	return m.buf
}

// Threshold returns the number of inserts between automatic refreshes.
func (m *Model) Threshold() int {
	return m.threshold
}

// Refresh makes the current buffer contents visible.
func (m *Model) Refresh() {
	b := m.buf
	if len(m.shown) != len(b.slots) || m.resets != b.resets {
		m.shown = make([]canlog.Record, len(b.slots))
		m.synced = 0
		m.resets = b.resets
	}
	b.copyRecent(m.shown, b.inserted-m.synced)
	m.synced = b.inserted
	m.view = View{slots: m.shown, write: b.write, count: b.Len()}
	m.pending = 0
}

// Insert stores r and refreshes once threshold inserts have accumulated.
func (m *Model) Insert(r canlog.Record) {
	m.buf.Insert(r)
	m.pending++
	if m.pending >= m.threshold {
		m.Refresh()
	}
}

// Flush refreshes when inserts are waiting to become visible.
func (m *Model) Flush() {
	if m.pending > 0 {
		m.Refresh()
	}
}

// Pending returns the inserts not yet visible.
func (m *Model) Pending() int {
	return m.pending
}

// Resize resets the buffer and the visible rows.
func (m *Model) Resize(capacity int) error {
	if err := m.buf.Resize(capacity); err != nil {
		return err
	}
	m.Refresh()
	return nil
}

// Len returns the number of visible rows.
func (m *Model) Len() int {
	return m.view.Len()
}

// Get returns a visible row.
func (m *Model) Get(row int) (canlog.Record, error) {
	return m.view.Get(row)
}

// ColumnCount returns len(Headers).
func (m *Model) ColumnCount() int {
	return len(Headers)
}

// Header returns the horizontal header of col, or the 1-based row number
// label when vertical is set.
func Header(section int, vertical bool) string {
	if vertical {
		return strconv.Itoa(section + 1)
	}
	if section < 0 || section >= len(Headers) {
		return ""
	}
	return Headers[section]
}

// Cell renders one column of a row from any source.
func Cell(src RowSource, row, col int) (string, error) {
	rec, err := src.Get(row)
	if err != nil {
		return "", err
	}
	switch col {
	case 0:
		return rec.IDText(), nil
	case 1:
		return strconv.Itoa(int(rec.Len)), nil
	case 2:
		return rec.DataText(), nil
	default:
		return "", errors.Wrapf(ErrOutOfRange, "column %d", col)
	}
}
