package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, instrument(pattern, h))
	}
	route("POST /frames", s.handleFrames)
	route("POST /refresh", s.handleRefresh)
	route("POST /resize", s.handleResize)
	route("GET /stats", s.handleStats)
	route("GET /rows", s.handleRows)
	route("GET /rows/{row}", s.handleInspect)
	route("GET /api/coords", s.handleCoords)
	route("POST /import", s.handleImport)
	route("POST /export", s.handleExport)
	route("POST /manifest", s.handleManifest)
	route("POST /upload", s.handleUpload)
	route("GET /artifacts", s.handleArtifactList)
	route("GET /artifacts/{id}", s.handleArtifactDownload)
	route("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
