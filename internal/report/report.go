// Package report writes the summary of an import or export run as JSON and
// as a PDF carrying a QR code of the CSV digest.
package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/pipeline"
	"example.com/n2kgate/internal/window"
)

type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

// Summary describes one finished run.
type Summary struct {
	Kind         Kind          `json:"kind"`
	Source       string        `json:"source"`
	SourceSHA256 string        `json:"sourceSha256,omitempty"`
	Sink         string        `json:"sink,omitempty"`
	SinkSHA256   string        `json:"sinkSha256,omitempty"`
	Window       window.Window `json:"window"`
	Rows         int           `json:"rows,omitempty"`
	Placeholders int           `json:"placeholders,omitempty"`
	Inserted     int           `json:"inserted,omitempty"`
	Skipped      int           `json:"skipped"`
	PastEnd      bool          `json:"pastEnd,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	DurationMs   int64         `json:"durationMs"`
	GeneratedAt  time.Time     `json:"generatedAt"`
}

func FromExport(source string, w window.Window, st pipeline.ExportStats) Summary {
	return Summary{
		Kind:         KindExport,
		Source:       source,
		Sink:         st.SinkPath,
		SinkSHA256:   st.SHA256,
		Window:       w,
		Rows:         st.Rows,
		Placeholders: st.Placeholders,
		Skipped:      st.Skipped,
		PastEnd:      st.PastEnd,
		DurationMs:   st.Duration.Milliseconds(),
		GeneratedAt:  time.Now().UTC(),
	}
}

func FromImport(source string, w window.Window, st pipeline.ImportStats, d time.Duration) Summary {
	return Summary{
		Kind:        KindImport,
		Source:      source,
		Window:      w,
		Inserted:    st.Inserted,
		Skipped:     st.Skipped,
		PastEnd:     st.PastEnd,
		DurationMs:  d.Milliseconds(),
		GeneratedAt: time.Now().UTC(),
	}
}

func SaveJSON(sum Summary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode summary")
	}
	return errors.Wrapf(os.WriteFile(out, b, 0o644), "write %s", out)
}

func LoadJSON(path string) (Summary, error) {
	var sum Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(b, &sum); err != nil {
		return sum, errors.Wrapf(err, "decode %s", path)
	}
	return sum, nil
}
