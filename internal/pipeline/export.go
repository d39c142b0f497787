package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/window"
)

const bom = "\uFEFF"

// Header is the first row of every export.
var Header = []string{
	"PGN", "Source", "Destination", "Priorité",
	"PGN1", "Valeur", "PGN2", "Valeur", "PGN3", "Valeur",
	"Table", "Définition",
}

// ExportStats reports the outcome of an export.
type ExportStats struct {
	Rows         int  `json:"rows"`
	Placeholders int  `json:"placeholders"`
	Skipped      int  `json:"skipped"`
	PastEnd      bool `json:"pastEnd,omitempty"`
	// Set by ExportFile.
	SinkPath  string        `json:"sinkPath,omitempty"`
	SHA256    string        `json:"sha256,omitempty"`
	Bytes     int64         `json:"bytes,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
}

// Row decodes one parsed line into export columns. placeholder is set when
// the octets, the PGN or the data length prevented decoding; the address
// columns are always filled.
func Row(line canlog.Line, table *n2k.Table) (row []string, placeholder bool, err error) {
	addr := n2k.DecodeID(line.ID)
	row = make([]string, 0, len(Header))
	row = append(row,
		strconv.FormatUint(uint64(addr.PGN), 10),
		strconv.Itoa(int(addr.Source)),
		strconv.Itoa(int(addr.Destination)),
		strconv.Itoa(int(addr.Priority)),
	)
	rec, err := line.Record()
	var in n2k.Interpretation
	if err == nil {
		in, err = table.Interpret(addr.PGN, rec.Payload())
	}
	if err != nil {
		for len(row) < len(Header) {
			row = append(row, n2k.NotAvailable)
		}
		return row, true, err
	}
	for i := 0; i < 3; i++ {
		f := in.Field(i)
		row = append(row, f.Name, f.Value)
	}
	row = append(row, in.Table, in.Definition)
	return row, false, nil
}

// Export decodes the lines of w and writes one CSV row per parsed line. The
// CSV is flushed before returning, including on cancellation.
func Export(ctx context.Context, src LineSource, w window.Window, out io.Writer, opts Options) (stats ExportStats, err error) {
	m := opts.metrics()
	m.Start()
	defer m.Stop()
	table := opts.table()

	if _, err := io.WriteString(out, bom); err != nil {
		return stats, errors.Mark(errors.Wrap(err, "write bom"), ErrSinkUnavailable)
	}
	cw := csv.NewWriter(out)
	cw.Comma = ';'
	defer func() {
		cw.Flush()
		if ferr := cw.Error(); ferr != nil && err == nil {
			err = errors.Mark(errors.Wrap(ferr, "flush csv"), ErrSinkUnavailable)
		}
	}()
	if err := cw.Write(Header); err != nil {
		return stats, errors.Mark(errors.Wrap(err, "write header"), ErrSinkUnavailable)
	}

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
		line, err := src.NextLine()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if i == 0 && w.Start > 0 {
				stats.PastEnd = true
			}
			return stats, nil
		case errors.Is(err, canlog.ErrEmptyLine):
			continue
		case canlog.IsRecordError(err):
			stats.Skipped++
			m.IncSkipped()
			opts.notify(OutcomeSkipped)
			common.Warnf("export: skipped %v", err)
			continue
		default:
			return stats, sourceErr(err)
		}

		row, placeholder, derr := Row(line, table)
		if placeholder {
			stats.Placeholders++
			m.IncPlaceholder()
			opts.notify(OutcomePlaceholder)
			common.Warnf("export: line %d (%s): %v", line.Number, line.IDText, derr)
		} else {
			opts.notify(OutcomeRecord)
		}
		if err := cw.Write(row); err != nil {
			return stats, errors.Mark(errors.Wrapf(err, "write line %d", line.Number), ErrSinkUnavailable)
		}
		stats.Rows++
		m.IncRecord()
	}
	return stats, nil
}

// ExportFile exports a window of the log at path into a new CSV at sinkPath
// and records the digest of what was written.
func ExportFile(ctx context.Context, path string, w window.Window, sinkPath string, opts Options) (ExportStats, error) {
	f, r, err := OpenLog(path)
	if err != nil {
		return ExportStats{}, err
	}
	defer f.Close()
	m := opts.metrics()
	opts.Metrics = m
	if st, err := f.Stat(); err == nil {
		m.SetTotalBytes(st.Size())
	}
	r.OnLine = m.AddLine

	if dir := filepath.Dir(sinkPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ExportStats{}, errors.Mark(errors.Wrapf(err, "create %s", dir), ErrSinkUnavailable)
		}
	}
	out, err := os.Create(sinkPath)
	if err != nil {
		return ExportStats{}, errors.Mark(errors.Wrapf(err, "create %s", sinkPath), ErrSinkUnavailable)
	}
	started := time.Now()
	digest := common.NewDigestWriter(out)
	stats, runErr := Export(ctx, r, w, digest, opts)
	if cerr := out.Close(); cerr != nil && runErr == nil {
		runErr = errors.Mark(errors.Wrapf(cerr, "close %s", sinkPath), ErrSinkUnavailable)
	}
	stats.SinkPath = sinkPath
	stats.SHA256 = digest.Sum()
	stats.Bytes = digest.Size()
	stats.StartedAt = started.UTC()
	stats.Duration = time.Since(started)
	if runErr != nil {
		return stats, runErr
	}
	common.Logf("export %s %s -> %s: %d rows, %d placeholders, %d skipped",
		path, w, sinkPath, stats.Rows, stats.Placeholders, stats.Skipped)
	return stats, nil
}
