package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/n2kgate/internal/canlog"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
}

// NewNDJSONWriter wraps w. When w supports http.Flusher every object is
// pushed to the client as soon as it is written.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &NDJSONWriter{writer: w, flusher: flusher}
}

// WriteRow writes one buffer row.
func (w *NDJSONWriter) WriteRow(row int, r canlog.Record) error {
	return w.WriteObject(toRowJSON(row, r))
}

func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if _, err := w.writer.Write([]byte("\n")); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// rowJSON mirrors the ID, Len and Datas columns of the frame table.
type rowJSON struct {
	Row       int    `json:"row"`
	Timestamp string `json:"timestamp,omitempty"`
	ID        string `json:"id"`
	Len       int    `json:"len"`
	Data      string `json:"data"`
}

func toRowJSON(row int, r canlog.Record) rowJSON {
	return rowJSON{
		Row:       row,
		Timestamp: r.Timestamp,
		ID:        r.IDText(),
		Len:       int(r.Len),
		Data:      r.DataText(),
	}
}
