// Package server exposes the ingestion core over HTTP: live frame
// submission, row listing and inspection, windowed import and export runs,
// and download of the artifacts those runs produce.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/core"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/pipeline"
	"example.com/n2kgate/internal/report"
	"example.com/n2kgate/internal/ring"
	"example.com/n2kgate/internal/window"
)

type Server struct {
	core       *core.Core
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string
	outputDir  string
	lang       report.Language
	importSize int
	exportSize int
}

// Options configures server creation. Zero window sizes select the defaults
// of the window package.
type Options struct {
	StorageDir   string
	Core         *core.Core
	Lang         report.Language
	ImportWindow int
	ExportWindow int
}

// NewServer creates a work directory under StorageDir holding uploads and
// run outputs. A nil Core gets a default one.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	workDir, err := os.MkdirTemp(storageDir, "n2kd-")
	if err != nil {
		return nil, errors.Wrap(err, "create work dir")
	}
	s := &Server{
		core:       opts.Core,
		artifacts:  NewArtifactStore(),
		workDir:    workDir,
		uploadsDir: filepath.Join(workDir, "uploads"),
		outputDir:  filepath.Join(workDir, "out"),
		lang:       opts.Lang,
		importSize: opts.ImportWindow,
		exportSize: opts.ExportWindow,
	}
	for _, dir := range []string{s.uploadsDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	if s.core == nil {
		c, err := core.New(core.Options{OnOutcome: RecordOutcome})
		if err != nil {
			return nil, err
		}
		s.core = c
	}
	if s.lang == "" {
		s.lang = report.LangFrench
	}
	if s.importSize <= 0 {
		s.importSize = window.DefaultImportSize
	}
	if s.exportSize <= 0 {
		s.exportSize = window.DefaultExportSize
	}
	RegisterMetrics()
	common.Logf("server work dir %s", workDir)
	return s, nil
}

// Close removes the work directory and everything produced in it.
func (s *Server) Close() error {
	if s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) Core() *core.Core {
	return s.core
}

// resolvePath accepts an artifact id or a path on the daemon's filesystem.
func (s *Server) resolvePath(token string) (string, error) {
	if token == "" {
		return "", errors.Mark(errors.New("empty input path"), pipeline.ErrSourceUnavailable)
	}
	if art, ok := s.artifacts.Get(token); ok {
		return art.Path, nil
	}
	path := filepath.Clean(token)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "input %s", token), pipeline.ErrSourceUnavailable)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy of the core packages to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ring.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, ring.ErrInvalidCapacity),
		errors.Is(err, window.ErrInvalidSize),
		errors.Is(err, pipeline.ErrSourceUnavailable),
		errors.Is(err, canlog.ErrParse),
		errors.Is(err, canlog.ErrBadOctet),
		errors.Is(err, canlog.ErrInvalidID),
		errors.Is(err, canlog.ErrInvalidLen),
		errors.Is(err, n2k.ErrUnknownPGN),
		errors.Is(err, n2k.ErrInsufficientData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
