package pipeline

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/window"
)

// ImportStats reports the outcome of an import.
type ImportStats struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	// PastEnd is set when the window starts beyond the end of the source.
	PastEnd bool `json:"pastEnd,omitempty"`
}

// Import inserts the records of w into sink without decoding them. The sink
// is flushed once the window is consumed or the run is cancelled.
func Import(ctx context.Context, src RecordSource, w window.Window, sink Sink, opts Options) (ImportStats, error) {
	var stats ImportStats
	m := opts.metrics()
	m.Start()
	defer m.Stop()
	defer sink.Flush()

	if w.Start > 0 {
		n, err := src.Skip(ctx, w.Start)
		if err != nil {
			return stats, sourceErr(err)
		}
		if n < w.Start {
			stats.PastEnd = true
			return stats, nil
		}
	}
	for i := 0; i < w.Size; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := src.Next()
		switch {
		case err == nil:
			sink.Insert(rec)
			stats.Inserted++
			m.IncRecord()
			opts.notify(OutcomeRecord)
		case errors.Is(err, io.EOF):
			if i == 0 && w.Start > 0 {
				stats.PastEnd = true
			}
			return stats, nil
		case errors.Is(err, canlog.ErrEmptyLine):
		case canlog.IsRecordError(err):
			stats.Skipped++
			m.IncSkipped()
			opts.notify(OutcomeSkipped)
			common.Warnf("import: skipped %v", err)
		default:
			return stats, sourceErr(err)
		}
	}
	return stats, nil
}

// ImportFile imports a window of the log at path.
func ImportFile(ctx context.Context, path string, w window.Window, sink Sink, opts Options) (ImportStats, error) {
	f, r, err := OpenLog(path)
	if err != nil {
		return ImportStats{}, err
	}
	defer f.Close()
	m := opts.metrics()
	opts.Metrics = m
	if st, err := f.Stat(); err == nil {
		m.SetTotalBytes(st.Size())
	}
	r.OnLine = m.AddLine
	stats, err := Import(ctx, r, w, sink, opts)
	if err != nil {
		return stats, err
	}
	common.Logf("import %s %s: %d inserted, %d skipped", path, w, stats.Inserted, stats.Skipped)
	return stats, nil
}
