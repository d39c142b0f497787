// Package ring holds the fixed-capacity frame store behind the live table and
// the snapshot model used to display it.
//
// Buffer and Model are not safe for concurrent use; internal/core serializes
// access with a single mutex.
package ring

import (
	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
)

// DefaultCapacity matches the default table size of the capture tool.
const DefaultCapacity = 5000

var (
	ErrOutOfRange      = errors.New("ring: row out of range")
	ErrInvalidCapacity = errors.New("ring: capacity must be at least 1")
)

// RowSource is anything that can be listed row by row, oldest first.
type RowSource interface {
	Len() int
	Get(row int) (canlog.Record, error)
}

// Buffer keeps the most recent Capacity records. Once full, every insert
// overwrites the oldest slot.
type Buffer struct {
	slots    []canlog.Record
	write    int
	inserted uint64
	// resets counts Resize calls so a Model can tell its copy is stale.
	resets uint64
}

// NewBuffer allocates a buffer with the given capacity.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	return &Buffer{slots: make([]canlog.Record, capacity)}, nil
}

// Cap returns the number of physical slots.
func (b *Buffer) Cap() int {
	return len(b.slots)
}

// Len is min(total inserts, capacity).
func (b *Buffer) Len() int {
	if b.inserted < uint64(len(b.slots)) {
		return int(b.inserted)
	}
	return len(b.slots)
}

// Inserted returns the number of records inserted since construction or the
// last Resize.
func (b *Buffer) Inserted() uint64 {
	return b.inserted
}

// Insert stores r in the next slot.
func (b *Buffer) Insert(r canlog.Record) {
	b.slots[b.write] = r
	b.write = (b.write + 1) % len(b.slots)
	b.inserted++
}

// Get returns the record at logical row (0 = oldest).
func (b *Buffer) Get(row int) (canlog.Record, error) {
	return b.Snapshot().Get(row)
}

// Resize discards every record and reallocates with the new capacity. On
// error the buffer is left unchanged.
func (b *Buffer) Resize(capacity int) error {
	if capacity < 1 {
		return errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	b.slots = make([]canlog.Record, capacity)
	b.write = 0
	b.inserted = 0
	b.resets++
	return nil
}

// Snapshot returns the current row mapping over the live slots. It is only
// valid until the next Insert; Model keeps a copy that is not.
func (b *Buffer) Snapshot() View {
	return View{slots: b.slots, write: b.write, count: b.Len()}
}

// copyRecent copies the slots written by the last n inserts into dst, which
// must have the buffer's capacity.
func (b *Buffer) copyRecent(dst []canlog.Record, n uint64) {
	c := len(b.slots)
	if n > uint64(c) {
		n = uint64(c)
	}
	for i := 0; i < int(n); i++ {
		idx := ((b.write-int(n)+i)%c + c) % c
		dst[idx] = b.slots[idx]
	}
}

// View is a row mapping over a set of slots.
type View struct {
	slots []canlog.Record
	write int
	count int
}

func (v View) Len() int {
	return v.count
}

// Get maps logical row to physical slot (write - count + row) mod capacity.
func (v View) Get(row int) (canlog.Record, error) {
	if row < 0 || row >= v.count {
		return canlog.Record{}, errors.Wrapf(ErrOutOfRange, "row %d of %d", row, v.count)
	}
	n := len(v.slots)
	return v.slots[((v.write-v.count+row)%n+n)%n], nil
}

// Slice is a RowSource over records already held in memory.
type Slice []canlog.Record

func (s Slice) Len() int {
	return len(s)
}

func (s Slice) Get(row int) (canlog.Record, error) {
	if row < 0 || row >= len(s) {
		return canlog.Record{}, errors.Wrapf(ErrOutOfRange, "row %d of %d", row, len(s))
	}
	return s[row], nil
}
