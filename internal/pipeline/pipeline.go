// Package pipeline streams a window of a frame log either into the live
// buffer or through the decoder into a CSV file.
//
// Only an unreadable source (ErrSourceUnavailable) or sink
// (ErrSinkUnavailable) ends a run with an error. Malformed lines and decode
// failures are logged, counted and skipped. The context is checked before
// every line so a run can be stopped promptly; output written up to that
// point is kept.
package pipeline

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/n2k"
)

var (
	ErrSourceUnavailable = errors.New("pipeline: source unavailable")
	ErrSinkUnavailable   = errors.New("pipeline: sink unavailable")
)

// RecordSource yields frames in order. Per-item problems are reported as
// *canlog.ParseError, blank items as canlog.ErrEmptyLine, and the end of
// input as io.EOF.
type RecordSource interface {
	Skip(ctx context.Context, n int) (int, error)
	Next() (canlog.Record, error)
}

// LineSource is a RecordSource that also exposes the tokenized line, which
// export needs to fill address columns for lines whose octets are invalid.
type LineSource interface {
	Skip(ctx context.Context, n int) (int, error)
	NextLine() (canlog.Line, error)
}

// Sink receives imported records. ring.Model implements it.
type Sink interface {
	Insert(r canlog.Record)
	Flush()
}

// Options are shared by Import and Export. Zero values are usable.
type Options struct {
	// Table decodes PGNs during export. nil selects the embedded table.
	Table *n2k.Table
	// Metrics, when set, receives per-line progress.
	Metrics *common.Metrics
	// OnRecord is called after each record is handled, for external counters.
	OnRecord func(outcome Outcome)
}

// Outcome classifies one handled line.
type Outcome int

const (
	OutcomeRecord Outcome = iota
	OutcomeSkipped
	OutcomePlaceholder
)

func (o Options) table() *n2k.Table {
	if o.Table != nil {
		return o.Table
	}
	return n2k.DefaultTable()
}

func (o Options) metrics() *common.Metrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	return common.NewMetrics()
}

func (o Options) notify(out Outcome) {
	if o.OnRecord != nil {
		o.OnRecord(out)
	}
}

// OpenLog opens a frame log for reading. A missing or unreadable file is
// reported as ErrSourceUnavailable.
func OpenLog(path string) (*os.File, *canlog.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "open %s", path), ErrSourceUnavailable)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Mark(errors.Wrapf(err, "stat %s", path), ErrSourceUnavailable)
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, errors.Wrapf(ErrSourceUnavailable, "%s is a directory", path)
	}
	return f, canlog.NewReader(f), nil
}

// sourceErr marks a read failure as fatal for the run. Cancellation is
// returned as is.
func sourceErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Mark(errors.Wrap(err, "read source"), ErrSourceUnavailable)
}
