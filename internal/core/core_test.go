package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/capture"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/pipeline"
	"example.com/n2kgate/internal/position"
	"example.com/n2kgate/internal/ring"
	"example.com/n2kgate/internal/window"
)

var positionData = []byte{0x00, 0x38, 0x9C, 0x1C, 0x00, 0xD3, 0xCE, 0xFE}

func newCore(t *testing.T, capacity, threshold int) *Core {
	t.Helper()
	c, err := New(Options{Capacity: capacity, RefreshThreshold: threshold})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSubmitAndInspect(t *testing.T) {
	c := newCore(t, 10, 1)
	if _, err := c.SubmitFrame(0x09F80115, 8, positionData); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if _, err := c.SubmitFrame(0x0CFF0022, 2, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if _, err := c.SubmitFrame(0x09F80115, 3, positionData); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	in, err := c.InspectRow(0)
	if err != nil {
		t.Fatalf("InspectRow(0): %v", err)
	}
	if in.Address.PGN != 129025 || !in.DecodeAvailable || in.Interpretation.Field(0).Value != "48.0000000 °" {
		t.Fatalf("inspection = %+v", in)
	}

	in, err = c.InspectRow(1)
	if !errors.Is(err, n2k.ErrUnknownPGN) {
		t.Fatalf("InspectRow(1) error = %v", err)
	}
	if in.Address.PGN != 65280 || in.DecodeAvailable || in.Record.Len != 2 {
		t.Fatalf("unknown inspection = %+v", in)
	}

	if _, err := c.InspectRow(2); !errors.Is(err, n2k.ErrInsufficientData) {
		t.Fatalf("InspectRow(2) error = %v", err)
	}
	if _, err := c.InspectRow(3); !errors.Is(err, ring.ErrOutOfRange) {
		t.Fatalf("InspectRow(3) error = %v", err)
	}

	fix, ok := c.Position().Get()
	if !ok || fix.Source != 0x15 {
		t.Fatalf("position = %+v, %v", fix, ok)
	}
}

func TestSubmitFrameValidates(t *testing.T) {
	c := newCore(t, 4, 1)
	if _, err := c.SubmitFrame(0x20000000, 0, nil); !errors.Is(err, canlog.ErrInvalidID) {
		t.Fatalf("wide id error = %v", err)
	}
	if _, err := c.SubmitFrame(0x100, 4, []byte{1}); !errors.Is(err, canlog.ErrInvalidLen) {
		t.Fatalf("short data error = %v", err)
	}
	if _, err := c.SubmitFrame(0x100, 9, make([]byte, 9)); !errors.Is(err, canlog.ErrInvalidLen) {
		t.Fatalf("long data error = %v", err)
	}
	if c.Stats().Inserted != 0 {
		t.Fatalf("rejected frames were inserted")
	}
}

func TestBatchedVisibility(t *testing.T) {
	c := newCore(t, 100, 10)
	for i := 0; i < 9; i++ {
		if _, err := c.SubmitFrame(uint32(0x100+i), 0, nil); err != nil {
			t.Fatalf("SubmitFrame: %v", err)
		}
	}
	if c.Len() != 0 {
		t.Fatalf("rows visible before batch: %d", c.Len())
	}
	c.Refresh()
	if c.Len() != 9 {
		t.Fatalf("rows after refresh = %d", c.Len())
	}
	if s := c.Stats(); s.Pending != 0 || s.Capacity != 100 || s.Inserted != 9 || s.Threshold != 10 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestResizeBuffer(t *testing.T) {
	c := newCore(t, 4, 1)
	for i := 0; i < 6; i++ {
		if _, err := c.SubmitFrame(uint32(0x200+i), 1, []byte{byte(i)}); err != nil {
			t.Fatalf("SubmitFrame: %v", err)
		}
	}
	if got, _ := c.Cell(0, 0); got != "202" {
		t.Fatalf("oldest row = %s, want 202", got)
	}
	if err := c.ResizeBuffer(0); !errors.Is(err, ring.ErrInvalidCapacity) {
		t.Fatalf("ResizeBuffer(0) error = %v", err)
	}
	if c.Len() != 4 {
		t.Fatalf("failed resize changed rows: %d", c.Len())
	}
	if err := c.ResizeBuffer(2); err != nil {
		t.Fatalf("ResizeBuffer(2): %v", err)
	}
	if _, err := c.InspectRow(0); !errors.Is(err, ring.ErrOutOfRange) {
		t.Fatalf("InspectRow after resize error = %v", err)
	}
	if rows, err := c.Rows(0, 10); err != nil || len(rows) != 0 {
		t.Fatalf("Rows on empty buffer = %v, %v", rows, err)
	}
}

func TestRows(t *testing.T) {
	c := newCore(t, 10, 1)
	for i := 0; i < 5; i++ {
		if _, err := c.SubmitFrame(uint32(0x300+i), 0, nil); err != nil {
			t.Fatalf("SubmitFrame: %v", err)
		}
	}
	rows, err := c.Rows(1, 2)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 0x301 || rows[1].ID != 0x302 {
		t.Fatalf("rows = %v", rows)
	}
	if rows, _ := c.Rows(3, 0); len(rows) != 2 {
		t.Fatalf("unbounded rows = %d", len(rows))
	}
	if _, err := c.Rows(5, 1); !errors.Is(err, ring.ErrOutOfRange) {
		t.Fatalf("Rows past end error = %v", err)
	}
}

func writeLog(t *testing.T, dir string, n int, malformed ...int) string {
	t.Helper()
	bad := map[int]bool{}
	for _, i := range malformed {
		bad[i] = true
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if bad[i] {
			b.WriteString("oops\n")
			continue
		}
		fmt.Fprintf(&b, "%d 0x09F80115 8 00 38 9C 1C 00 D3 CE FE\n", i)
	}
	path := filepath.Join(dir, "frames.log")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRunImport(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	outcomes := map[pipeline.Outcome]int{}
	c, err := New(Options{Capacity: 100, OnOutcome: func(op string, out pipeline.Outcome) {
		mu.Lock()
		outcomes[out]++
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats, err := c.RunImport(context.Background(), writeLog(t, dir, 20, 2, 4), window.Window{Start: 0, Size: 10}, nil)
	if err != nil {
		t.Fatalf("RunImport: %v", err)
	}
	if stats.Inserted != 8 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v, want 8 inserted 2 skipped", stats)
	}
	if c.Len() != 8 {
		t.Fatalf("visible rows = %d, want 8", c.Len())
	}
	if outcomes[pipeline.OutcomeRecord] != 8 || outcomes[pipeline.OutcomeSkipped] != 2 {
		t.Fatalf("outcomes = %v", outcomes)
	}
	if _, ok := c.Position().Get(); ok {
		t.Fatalf("imported frames must not update the live position")
	}

	_, err = c.RunImport(context.Background(), filepath.Join(dir, "missing.log"), window.Window{Size: 10}, nil)
	if !errors.Is(err, pipeline.ErrSourceUnavailable) {
		t.Fatalf("missing file error = %v", err)
	}
}

func TestRunImportCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := capture.NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		r, _ := canlog.NewRecord(uint32(0x09F80100+i), positionData)
		if err := w.WriteFrame(time.Unix(int64(i), 0), r); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	f.Close()

	c := newCore(t, 10, 0)
	stats, err := c.RunImport(context.Background(), path, window.Window{Start: 1, Size: 5}, nil)
	if err != nil {
		t.Fatalf("RunImport: %v", err)
	}
	if stats.Inserted != 2 || c.Len() != 2 {
		t.Fatalf("stats = %+v rows = %d", stats, c.Len())
	}
	if got, _ := c.Cell(0, 0); got != "9F80101" {
		t.Fatalf("first row ID = %s", got)
	}

	bogus := filepath.Join(t.TempDir(), "bogus.pcap")
	if err := os.WriteFile(bogus, []byte("not a capture"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.RunImport(context.Background(), bogus, window.Window{Size: 5}, nil); !errors.Is(err, pipeline.ErrSourceUnavailable) {
		t.Fatalf("bogus capture error = %v", err)
	}
}

func TestRunImportBusy(t *testing.T) {
	c := newCore(t, 10, 1)
	c.importing.Store(true)
	if _, err := c.RunImport(context.Background(), "x.log", window.Window{Size: 1}, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("error = %v, want ErrBusy", err)
	}
}

func TestLiveFramesRefusedDuringImport(t *testing.T) {
	c := newCore(t, 10, 1)
	c.importing.Store(true)
	if _, err := c.SubmitFrame(0x100, 0, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("SubmitFrame error = %v, want ErrBusy", err)
	}
	if err := c.Submit(canlog.Record{ID: 0x100}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit error = %v, want ErrBusy", err)
	}
	if got := c.Stats().Inserted; got != 0 {
		t.Fatalf("inserted = %d, want 0", got)
	}
	c.importing.Store(false)
	if _, err := c.SubmitFrame(0x100, 0, nil); err != nil {
		t.Fatalf("SubmitFrame after import: %v", err)
	}
}

func TestImportWindowStaysContiguous(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.log")
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "%d %X 1 %02X\n", i, 0x200+i, i%256)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := newCore(t, 5000, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				c.SubmitFrame(0x100, 0, nil)
			}
		}
	}()
	w, _ := window.New(0, 200)
	_, err := c.RunImport(context.Background(), path, w, nil)
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("RunImport: %v", err)
	}
	c.Refresh()
	first := -1
	for row := 0; row < c.Len(); row++ {
		r, err := c.model.Get(row)
		if err != nil {
			t.Fatalf("Get(%d): %v", row, err)
		}
		if r.ID == 0x200 {
			first = row
			break
		}
	}
	if first < 0 {
		t.Fatalf("imported rows missing")
	}
	for i := 0; i < 200; i++ {
		r, err := c.model.Get(first + i)
		if err != nil || r.ID != uint32(0x200+i) {
			t.Fatalf("row %d = %v, %v, want id 0x%X", first+i, r.ID, err, 0x200+i)
		}
	}
}

func TestPositionCellZeroValue(t *testing.T) {
	c, err := New(Options{Capacity: 4, RefreshThreshold: 1, Position: &position.Cell{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SubmitFrame(0x09F80115, 8, positionData); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if _, ok := c.Position().Get(); !ok {
		t.Fatalf("position not recorded")
	}
}

func TestRunExport(t *testing.T) {
	dir := t.TempDir()
	c := newCore(t, 10, 1)
	sink := filepath.Join(dir, "out.csv")
	stats, err := c.RunExport(context.Background(), writeLog(t, dir, 5, 1), window.Window{Start: 0, Size: 10}, sink, nil)
	if err != nil {
		t.Fatalf("RunExport: %v", err)
	}
	if stats.Rows != 4 || stats.Skipped != 1 || stats.Placeholders != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	data, err := os.ReadFile(sink)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 5 {
		t.Fatalf("csv has %d lines, want 5", n)
	}
	if c.Len() != 0 {
		t.Fatalf("export must not touch the buffer")
	}
}
