package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/core"
	"example.com/n2kgate/internal/n2k"
)

const maxFrameBody = 4 << 20

// frameRequest is one live frame. ID is hexadecimal, with or without 0x.
type frameRequest struct {
	ID   string `json:"id"`
	Len  int    `json:"len"`
	Data []int  `json:"data"`
}

type frameRejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type framesResponse struct {
	Accepted int              `json:"accepted"`
	Rejected []frameRejection `json:"rejected,omitempty"`
	busy     bool
}

// handleFrames accepts a JSON frame, a JSON array of frames, or text/plain
// log lines. Malformed frames are reported and skipped.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBody))
	if err != nil {
		badRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var resp framesResponse
	if mediaType == "text/plain" {
		resp = s.submitLines(body)
	} else {
		frames, err := decodeFrames(body)
		if err != nil {
			badRequest(w, fmt.Sprintf("invalid json: %v", err))
			return
		}
		for i, f := range frames {
			if err := s.submitFrame(f); err != nil {
				resp.Rejected = append(resp.Rejected, frameRejection{Index: i, Error: err.Error()})
				resp.busy = resp.busy || errors.Is(err, core.ErrBusy)
				continue
			}
			resp.Accepted++
		}
	}
	framesSubmitted.Add(float64(resp.Accepted))
	framesRejected.Add(float64(len(resp.Rejected)))
	writeJSON(w, resp.status(), resp)
}

// status is 202 when anything was accepted. A batch refused only because an
// import owns the buffer is a conflict rather than a bad request.
func (resp framesResponse) status() int {
	switch {
	case resp.Accepted > 0 || len(resp.Rejected) == 0:
		return http.StatusAccepted
	case resp.busy:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeFrames(body []byte) ([]frameRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var frames []frameRequest
		err := json.Unmarshal(trimmed, &frames)
		return frames, err
	}
	var f frameRequest
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, err
	}
	return []frameRequest{f}, nil
}

func (s *Server) submitFrame(f frameRequest) error {
	id, err := canlog.ParseID(f.ID)
	if err != nil {
		return err
	}
	data := make([]byte, len(f.Data))
	for i, v := range f.Data {
		if v < 0 || v > 0xFF {
			return errors.Wrapf(canlog.ErrBadOctet, "octet %d is %d", i, v)
		}
		data[i] = byte(v)
	}
	_, err = s.core.SubmitFrame(id, f.Len, data)
	return err
}

// submitLines parses body in the frame log format. Rejections are indexed
// by line number.
func (s *Server) submitLines(body []byte) framesResponse {
	var resp framesResponse
	rd := canlog.NewReader(bytes.NewReader(body))
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, canlog.ErrEmptyLine) {
			continue
		}
		if err != nil {
			resp.Rejected = append(resp.Rejected, frameRejection{Index: rd.Number(), Error: err.Error()})
			if !canlog.IsRecordError(err) {
				break
			}
			continue
		}
		if err := s.core.Submit(rec); err != nil {
			resp.Rejected = append(resp.Rejected, frameRejection{Index: rd.Number(), Error: err.Error()})
			resp.busy = true
			continue
		}
		resp.Accepted++
	}
	return resp
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.core.Refresh()
	writeJSON(w, http.StatusOK, s.core.Stats())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Stats())
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capacity int `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if err := s.core.ResizeBuffer(req.Capacity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.Stats())
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf("%s: %q is not an integer", name, raw)
	}
	return v, nil
}

// handleRows lists visible rows. With stream=true rows are written as NDJSON.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt(r, "start", 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	recs, err := s.core.Rows(start, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("stream") == "true" {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		nd := NewNDJSONWriter(w)
		for i, rec := range recs {
			if r.Context().Err() != nil {
				return
			}
			if err := nd.WriteRow(start+i, rec); err != nil {
				return
			}
		}
		return
	}
	rows := make([]rowJSON, len(recs))
	for i, rec := range recs {
		rows[i] = toRowJSON(start+i, rec)
	}
	writeJSON(w, http.StatusOK, struct {
		Total int       `json:"total"`
		Rows  []rowJSON `json:"rows"`
	}{Total: s.core.Len(), Rows: rows})
}

type inspectResponse struct {
	rowJSON
	Address         n2k.Address         `json:"address"`
	Interpretation  *n2k.Interpretation `json:"interpretation,omitempty"`
	DecodeAvailable bool                `json:"decodeAvailable"`
	DecodeError     string              `json:"decodeError,omitempty"`
}

// handleInspect decodes one row. A row whose PGN is unknown or whose payload
// is short is still answered with its address.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(r.PathValue("row"))
	if err != nil {
		badRequest(w, fmt.Sprintf("row %q is not an integer", r.PathValue("row")))
		return
	}
	in, err := s.core.InspectRow(row)
	switch {
	case err == nil:
		inspections.WithLabelValues("decoded").Inc()
	case errors.Is(err, n2k.ErrUnknownPGN):
		inspections.WithLabelValues("unknown_pgn").Inc()
	case errors.Is(err, n2k.ErrInsufficientData):
		inspections.WithLabelValues("insufficient_data").Inc()
	default:
		inspections.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspectResponse{
		rowJSON:         toRowJSON(row, in.Record),
		Address:         in.Address,
		Interpretation:  in.Interpretation,
		DecodeAvailable: in.DecodeAvailable,
		DecodeError:     in.DecodeError,
	})
}

type coordsResponse struct {
	Available bool    `json:"available"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    uint8   `json:"source,omitempty"`
	Updated   string  `json:"updated,omitempty"`
}

func (s *Server) handleCoords(w http.ResponseWriter, r *http.Request) {
	fix, ok := s.core.Position().Get()
	resp := coordsResponse{Available: ok}
	if ok {
		resp.Latitude = fix.Latitude
		resp.Longitude = fix.Longitude
		resp.Source = fix.Source
		resp.Updated = fix.Updated.Format("2006-01-02T15:04:05.000Z07:00")
	}
	writeJSON(w, http.StatusOK, resp)
}
