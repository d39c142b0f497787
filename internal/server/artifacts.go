package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Artifact is a file produced or received by the daemon: an uploaded log,
// an exported CSV, a run summary or a manifest.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	CreatedAt   time.Time
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

// ArtifactStore indexes artifacts by random id for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{entries: make(map[string]Artifact)}
}

// Add registers the file at path. An empty name defaults to the base name.
func (st *ArtifactStore) Add(path, name, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("artifact: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "artifact %s", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        name,
		ContentType: guessContentType(name),
		Size:        info.Size(),
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}
	st.mu.Lock()
	st.entries[art.ID] = art
	st.mu.Unlock()
	return art, nil
}

func (st *ArtifactStore) Get(id string) (Artifact, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	art, ok := st.entries[id]
	return art, ok
}

// List returns every artifact, oldest first.
func (st *ArtifactStore) List() []ArtifactRef {
	st.mu.RLock()
	arts := make([]Artifact, 0, len(st.entries))
	for _, art := range st.entries {
		arts = append(arts, art)
	}
	st.mu.RUnlock()
	sort.Slice(arts, func(i, j int) bool {
		if arts[i].CreatedAt.Equal(arts[j].CreatedAt) {
			return arts[i].ID < arts[j].ID
		}
		return arts[i].CreatedAt.Before(arts[j].CreatedAt)
	})
	refs := make([]ArtifactRef, len(arts))
	for i, art := range arts {
		refs[i] = toRef(art)
	}
	return refs
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Artifacts []ArtifactRef `json:"artifacts"`
	}{Artifacts: s.artifacts.List()})
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	art, ok := s.artifacts.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".log", ".txt":
		return "text/plain"
	case ".pcap", ".pcapng", ".cap":
		return "application/vnd.tcpdump.pcap"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}
