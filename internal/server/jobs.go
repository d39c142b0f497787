package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/manifest"
	"example.com/n2kgate/internal/report"
	"example.com/n2kgate/internal/window"
)

// jobRequest selects a window of an input log. Input is an artifact id or
// a path. A nil Size selects the server default for the operation.
type jobRequest struct {
	Input   string `json:"input"`
	Start   int    `json:"start"`
	Size    *int   `json:"size,omitempty"`
	Summary bool   `json:"summary,omitempty"`
	Lang    string `json:"lang,omitempty"`
}

func decodeJob(r *http.Request, defaultSize int) (jobRequest, window.Window, error) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, window.Window{}, errors.Wrap(err, "invalid json")
	}
	size := defaultSize
	if req.Size != nil {
		size = *req.Size
	}
	w, err := window.New(req.Start, size)
	return req, w, err
}

type importResponse struct {
	Window   window.Window  `json:"window"`
	Summary  report.Summary `json:"summary"`
	Artifact *ArtifactRef   `json:"artifact,omitempty"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, win, err := decodeJob(r, s.importSize)
	if err != nil {
		writeError(w, markBadRequest(err))
		return
	}
	path, err := s.resolvePath(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	m := common.NewMetrics()
	stats, err := s.core.RunImport(r.Context(), path, win, m)
	if err != nil && r.Context().Err() == nil {
		writeError(w, err)
		return
	}
	sum := report.FromImport(req.Input, win, stats, m.Snapshot().Duration)
	sum.Cancelled = r.Context().Err() != nil
	resp := importResponse{Window: win, Summary: sum}
	if req.Summary {
		ref, err := s.saveSummaryJSON(sum, "import")
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Artifact = &ref
	}
	writeJSON(w, http.StatusOK, resp)
}

type exportResponse struct {
	Window    window.Window  `json:"window"`
	Summary   report.Summary `json:"summary"`
	Artifacts []ArtifactRef  `json:"artifacts"`
}

// handleExport decodes a window of a log into CSV. With summary set the
// JSON and PDF summaries are produced as well.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, win, err := decodeJob(r, s.exportSize)
	if err != nil {
		writeError(w, markBadRequest(err))
		return
	}
	path, err := s.resolvePath(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	lang := s.lang
	if req.Lang != "" {
		if lang, err = report.ParseLanguage(req.Lang); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sinkPath := filepath.Join(s.outputDir, fmt.Sprintf("%s-%s.csv", base, randomID()[:8]))
	stats, err := s.core.RunExport(r.Context(), path, win, sinkPath, common.NewMetrics())
	if err != nil {
		writeError(w, err)
		return
	}
	csvArt, err := s.artifacts.Add(sinkPath, base+".csv", "export")
	if err != nil {
		writeError(w, err)
		return
	}
	resp := exportResponse{
		Window:    win,
		Summary:   report.FromExport(req.Input, win, stats),
		Artifacts: []ArtifactRef{toRef(csvArt)},
	}
	if req.Summary {
		ref, err := s.saveSummaryJSON(resp.Summary, "export")
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Artifacts = append(resp.Artifacts, ref)
		pdfPath := filepath.Join(s.outputDir, fmt.Sprintf("summary-%s.pdf", randomID()[:8]))
		if err := report.SavePDF(resp.Summary, lang, pdfPath); err != nil {
			writeError(w, err)
			return
		}
		pdfArt, err := s.artifacts.Add(pdfPath, "summary.pdf", "summary")
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Artifacts = append(resp.Artifacts, toRef(pdfArt))
	}
	common.Logf("export %s %s: %d rows, %d placeholders in %s", path, win, stats.Rows, stats.Placeholders, stats.Duration.Round(time.Millisecond))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveSummaryJSON(sum report.Summary, kind string) (ArtifactRef, error) {
	out := filepath.Join(s.outputDir, fmt.Sprintf("%s-summary-%s.json", kind, randomID()[:8]))
	if err := report.SaveJSON(sum, out); err != nil {
		return ArtifactRef{}, err
	}
	art, err := s.artifacts.Add(out, "summary.json", "summary")
	if err != nil {
		return ArtifactRef{}, err
	}
	return toRef(art), nil
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Inputs []string `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if len(req.Inputs) == 0 {
		badRequest(w, "inputs required")
		return
	}
	paths := make([]string, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		p, err := s.resolvePath(in)
		if err != nil {
			writeError(w, err)
			return
		}
		paths = append(paths, p)
	}
	m, err := manifest.Build(paths)
	if err != nil {
		writeError(w, err)
		return
	}
	out := filepath.Join(s.outputDir, fmt.Sprintf("manifest-%s.json", randomID()[:8]))
	if err := manifest.Save(m, out); err != nil {
		writeError(w, err)
		return
	}
	art, err := s.artifacts.Add(out, "manifest.json", "manifest")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Manifest manifest.Manifest `json:"manifest"`
		Artifact ArtifactRef       `json:"artifact"`
	}{Manifest: m, Artifact: toRef(art)})
}

// errBadRequest marks request decoding failures that carry no sentinel of
// their own.
var errBadRequest = errors.New("bad request")

func markBadRequest(err error) error {
	if statusFor(err) != http.StatusInternalServerError {
		return err
	}
	return errors.Mark(err, errBadRequest)
}
