// Package core is the ingestion API used by the CLI, the daemon and any
// driver binding. It owns the frame buffer, its display model and the
// position cell, and serializes every access to them with one mutex.
package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/capture"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/pipeline"
	"example.com/n2kgate/internal/position"
	"example.com/n2kgate/internal/ring"
	"example.com/n2kgate/internal/window"
)

// ErrBusy is returned while an import owns the buffer, both to a second
// import and to live frames.
var ErrBusy = errors.New("core: buffer is busy with an import")

type Options struct {
	Capacity         int
	RefreshThreshold int
	// Table decodes inspected rows and exports. nil selects the embedded table.
	Table *n2k.Table
	// Position receives live position reports. nil allocates a new cell.
	Position *position.Cell
	// OnOutcome, when set, is called for every line handled by an import or
	// export. op is "import" or "export".
	OnOutcome func(op string, out pipeline.Outcome)
}

type Core struct {
	mu        sync.Mutex
	model     *ring.Model
	table     *n2k.Table
	pos       *position.Cell
	importing atomic.Bool
	onOutcome func(op string, out pipeline.Outcome)
}

func New(opts Options) (*Core, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = ring.DefaultCapacity
	}
	buf, err := ring.NewBuffer(capacity)
	if err != nil {
		return nil, err
	}
	c := &Core{
		model:     ring.NewModel(buf, opts.RefreshThreshold),
		table:     opts.Table,
		pos:       opts.Position,
		onOutcome: opts.OnOutcome,
	}
	if c.table == nil {
		c.table = n2k.DefaultTable()
	}
	if c.pos == nil {
		c.pos = position.NewCell()
	}
	return c, nil
}

// Position returns the cell updated by live position reports.
func (c *Core) Position() *position.Cell {
	return c.pos
}

// Table returns the PGN table used for decoding.
func (c *Core) Table() *n2k.Table {
	return c.table
}

// SubmitFrame feeds one live frame. length is the declared byte count; data
// must hold at least that many octets. Live frames are refused with ErrBusy
// while an import is running.
func (c *Core) SubmitFrame(id uint32, length int, data []byte) (canlog.Record, error) {
	if length < 0 || length > len(data) {
		return canlog.Record{}, errors.Wrapf(canlog.ErrInvalidLen, "declared %d, got %d octet(s)", length, len(data))
	}
	r, err := canlog.NewRecord(id, data[:length])
	if err != nil {
		return canlog.Record{}, err
	}
	if err := c.Submit(r); err != nil {
		return canlog.Record{}, err
	}
	return r, nil
}

// Submit inserts a record built by the caller. It fails with ErrBusy while an
// import owns the buffer.
func (c *Core) Submit(r canlog.Record) error {
	c.mu.Lock()
	if c.importing.Load() {
		c.mu.Unlock()
		return errors.Wrapf(ErrBusy, "frame %s", r.IDText())
	}
	c.model.Insert(r)
	c.mu.Unlock()
	if c.pos.Observe(r) {
		if fix, ok := c.pos.Get(); ok {
			common.Debugf("position %.7f %.7f from %d", fix.Latitude, fix.Longitude, fix.Source)
		}
	}
	return nil
}

// Refresh makes every inserted record visible.
func (c *Core) Refresh() {
	c.mu.Lock()
	c.model.Refresh()
	c.mu.Unlock()
}

// ResizeBuffer clears the buffer and changes its capacity. On error the buffer
// is unchanged.
func (c *Core) ResizeBuffer(capacity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.model.Resize(capacity); err != nil {
		return err
	}
	common.Logf("buffer resized to %d", capacity)
	return nil
}

// Stats describes the buffer.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Rows      int    `json:"rows"`
	Pending   int    `json:"pending"`
	Inserted  uint64 `json:"inserted"`
	Threshold int    `json:"refreshThreshold"`
}

func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.model.Buffer()
	return Stats{
		Capacity:  buf.Cap(),
		Rows:      c.model.Len(),
		Pending:   c.model.Pending(),
		Inserted:  buf.Inserted(),
		Threshold: c.model.Threshold(),
	}
}

// Len returns the number of visible rows.
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Len()
}

// Rows returns up to limit visible records starting at row start.
func (c *Core) Rows(start, limit int) ([]canlog.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.model.Len()
	if start < 0 || (start >= n && !(start == 0 && n == 0)) {
		return nil, errors.Wrapf(ring.ErrOutOfRange, "row %d of %d", start, n)
	}
	end := n
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]canlog.Record, 0, end-start)
	for row := start; row < end; row++ {
		r, err := c.model.Get(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Cell renders one display cell of a visible row.
func (c *Core) Cell(row, col int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ring.Cell(c.model, row, col)
}

// Inspection is the decoded view of one row.
type Inspection struct {
	Row             int                 `json:"row"`
	Record          canlog.Record       `json:"-"`
	Address         n2k.Address         `json:"address"`
	Interpretation  *n2k.Interpretation `json:"interpretation,omitempty"`
	DecodeAvailable bool                `json:"decodeAvailable"`
	DecodeError     string              `json:"decodeError,omitempty"`
}

// InspectRow decodes a visible row. It fails with ring.ErrOutOfRange for an
// unknown row. For ErrUnknownPGN and ErrInsufficientData the returned
// Inspection still carries the address, with DecodeAvailable unset.
func (c *Core) InspectRow(row int) (Inspection, error) {
	c.mu.Lock()
	r, err := c.model.Get(row)
	c.mu.Unlock()
	if err != nil {
		return Inspection{}, err
	}
	return Inspect(c.table, row, r)
}

// Inspect decodes r with table.
func Inspect(table *n2k.Table, row int, r canlog.Record) (Inspection, error) {
	in := Inspection{Row: row, Record: r, Address: n2k.DecodeID(r.ID)}
	interp, err := table.Interpret(in.Address.PGN, r.Payload())
	if err != nil {
		in.DecodeError = err.Error()
		return in, err
	}
	in.Interpretation = &interp
	in.DecodeAvailable = true
	return in, nil
}

// lockedSink lets an import interleave with readers.
type lockedSink struct {
	c *Core
}

func (s lockedSink) Insert(r canlog.Record) {
	s.c.mu.Lock()
	s.c.model.Insert(r)
	s.c.mu.Unlock()
}

func (s lockedSink) Flush() {
	s.c.mu.Lock()
	s.c.model.Flush()
	s.c.mu.Unlock()
}

func (c *Core) pipelineOptions(op string, m *common.Metrics) pipeline.Options {
	opts := pipeline.Options{Table: c.table, Metrics: m}
	if c.onOutcome != nil {
		opts.OnRecord = func(out pipeline.Outcome) { c.onOutcome(op, out) }
	}
	return opts
}

// RunImport loads a window of a text log or capture file into the buffer.
// Decoding is deferred to InspectRow.
func (c *Core) RunImport(ctx context.Context, path string, w window.Window, m *common.Metrics) (pipeline.ImportStats, error) {
	c.mu.Lock()
	started := c.importing.CompareAndSwap(false, true)
	c.mu.Unlock()
	if !started {
		return pipeline.ImportStats{}, ErrBusy
	}
	defer c.importing.Store(false)

	stats, err := c.importFrom(ctx, path, w, c.pipelineOptions("import", m))
	if err != nil {
		return stats, err
	}
	common.Logf("import %s %s: %d inserted, %d skipped", path, w, stats.Inserted, stats.Skipped)
	return stats, nil
}

func (c *Core) importFrom(ctx context.Context, path string, w window.Window, opts pipeline.Options) (pipeline.ImportStats, error) {
	if !capture.IsCapturePath(path) {
		return pipeline.ImportFile(ctx, path, w, lockedSink{c}, opts)
	}
	f, r, err := capture.Open(path)
	if err != nil {
		return pipeline.ImportStats{}, errors.Mark(err, pipeline.ErrSourceUnavailable)
	}
	defer f.Close()
	return pipeline.Import(ctx, r, w, lockedSink{c}, opts)
}

// RunExport decodes a window of a text log into a CSV file.
func (c *Core) RunExport(ctx context.Context, path string, w window.Window, sinkPath string, m *common.Metrics) (pipeline.ExportStats, error) {
	return pipeline.ExportFile(ctx, path, w, sinkPath, c.pipelineOptions("export", m))
}
