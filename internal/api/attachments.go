package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	attachDir      = "attachments"
	maxUploadBytes = 50 << 20 // 50 MB
)

// AttachmentHandler serves and accepts binary vault assets. Attachments live
// in a single flat directory under the vault root and are addressed by bare
// filename only.
type AttachmentHandler struct {
	vaultRoot string
}

// NewAttachmentHandler creates a handler rooted at the vault directory.
func NewAttachmentHandler(vaultRoot string) *AttachmentHandler {
	return &AttachmentHandler{vaultRoot: vaultRoot}
}

func (h *AttachmentHandler) dir() string {
	return filepath.Join(h.vaultRoot, attachDir)
}

// resolve maps a bare attachment filename to its absolute path. Names with
// separators or traversal sequences never resolve.
func (h *AttachmentHandler) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.dir(), cleaned)
	if abs != h.dir() && !strings.HasPrefix(abs, h.dir()+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes attachments directory")
	}
	return abs, nil
}

// ServeFile handles GET /attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.resolve(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments (multipart/form-data, field "file").
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	abs, err := h.resolve(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	size, err := h.save(abs, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store attachment")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"filename": header.Filename,
		"size":     size,
		"url":      "/attachments/" + header.Filename,
	})
}

// save streams the upload through a temp file and renames it into place, so
// a dropped connection never leaves a truncated attachment visible.
func (h *AttachmentHandler) save(abs string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(h.dir(), 0o755); err != nil {
		return 0, fmt.Errorf("api: create attachments dir: %w", err)
	}
	tmp, err := os.CreateTemp(h.dir(), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("api: create temp: %w", err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("api: write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("api: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("api: rename attachment: %w", err)
	}
	return size, nil
}
