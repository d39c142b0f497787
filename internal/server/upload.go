package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const maxUploadMemory = 64 << 20

// handleUpload stores multipart files so that later import, export and
// manifest requests can name them by artifact id.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, fmt.Sprintf("parse multipart: %v", err))
		return
	}
	var refs []ArtifactRef
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			ref, err := s.saveUpload(fh)
			if err != nil {
				badRequest(w, fmt.Sprintf("save upload %s: %v", fh.Filename, err))
				return
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		badRequest(w, "no files uploaded")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Files []ArtifactRef `json:"files"`
	}{Files: refs})
}

// saveUpload keeps the original extension so capture files are still
// recognized by name.
func (s *Server) saveUpload(fh *multipart.FileHeader) (ArtifactRef, error) {
	src, err := fh.Open()
	if err != nil {
		return ArtifactRef{}, errors.Wrap(err, "open part")
	}
	defer src.Close()
	dest, err := os.CreateTemp(s.uploadsDir, "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return ArtifactRef{}, errors.Wrap(err, "create upload")
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return ArtifactRef{}, errors.Wrap(err, "copy upload")
	}
	if err := dest.Close(); err != nil {
		return ArtifactRef{}, errors.Wrap(err, "close upload")
	}
	art, err := s.artifacts.Add(dest.Name(), filepath.Base(fh.Filename), "upload")
	if err != nil {
		return ArtifactRef{}, err
	}
	return toRef(art), nil
}
