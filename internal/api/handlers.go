package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/noteservice"
	"github.com/starford/raido/internal/parser"
)

// Handler implements the REST endpoints on top of the note service.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath returns the wildcard remainder of a /api/notes/ route. OpenAPI
// clients percent-encode slashes (topics%2Fnote.md), so it unescapes once
// and falls back to the raw value on bad escapes.
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeNoteError maps domain errors to HTTP responses for note operations.
func writeNoteError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "checksum mismatch")
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "note already exists")
	case errors.Is(err, parser.ErrMalformedFrontmatter):
		writeError(w, http.StatusUnprocessableEntity, "malformed frontmatter")
	default:
		slog.Error("note operation failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListNotes serves GET /api/notes.
//
//	@Summary		List notes, paginated and filterable by tag
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Notes per page"
//	@Param			offset	query		int		false	"Listing offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated_at, title, path)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	tag := q.Get("tag")
	sort := q.Get("sort")

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, tag, sort)
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": items,
		"total": total,
	})
}

// GetNote serves GET /api/notes/*.
//
//	@Summary		Fetch one note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeNoteError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote serves POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"New note"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "path and content are required")
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeNoteError(w, req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote serves PUT /api/notes/*.
//
//	@Summary		Replace a note's content, guarded by If-Match when sent
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			If-Match	header	string				false	"Expected SHA-256 checksum of the stored note"
//	@Param			body	body		UpdateNoteRequest	true	"Replacement content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req UpdateNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatchHeader(r))
	if err != nil {
		writeNoteError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// PatchNote serves PATCH /api/notes/*. It merges the request frontmatter
// into the existing note; a null value removes the key.
//
//	@Summary		Merge frontmatter keys into a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			If-Match	header	string				false	"Expected SHA-256 checksum of the stored note"
//	@Param			body	body		PatchNoteRequest	true	"Frontmatter patch"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [patch]
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	var req PatchNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Frontmatter) == 0 {
		writeError(w, http.StatusBadRequest, "frontmatter is required")
		return
	}

	note, err := h.svc.PatchFrontmatter(r.Context(), path, req.Frontmatter, ifMatchHeader(r))
	if err != nil {
		writeNoteError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ifMatchHeader returns the If-Match value with standard ETag quotes stripped.
func ifMatchHeader(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

// DeleteNote serves DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		writeNoteError(w, path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search serves GET /api/search.
//
//	@Summary		Full-text search over note titles and bodies
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Query text"
//	@Param			limit	query		int		false	"Result cap"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Graph serves GET /api/graph.
//
//	@Summary		Get the note graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}

// Backlinks serves GET /api/backlinks?path=.
//
//	@Summary		List notes holding a resolved link to the given note
//	@Tags			graph
//	@Produce		json
//	@Param			path	query		string	true	"Target note path"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'path' is required")
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		slog.Error("backlinks failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bl == nil {
		bl = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":      path,
		"backlinks": bl,
	})
}

// Dangling serves GET /api/dangling.
//
//	@Summary		List references whose target note does not exist
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	DanglingResponse
//	@Security		BearerAuth
//	@Router			/dangling [get]
func (h *Handler) Dangling(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Dangling(r.Context())
	if err != nil {
		slog.Error("dangling failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []DanglingLink{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dangling": rows,
		"count":    len(rows),
	})
}

// ParseErrors serves GET /api/parse-errors.
//
//	@Summary		List files the last indexing pass could not parse
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	ParseErrorsResponse
//	@Security		BearerAuth
//	@Router			/parse-errors [get]
func (h *Handler) ParseErrors(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ParseErrors(r.Context())
	if err != nil {
		slog.Error("parse errors failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []ParseError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": rows,
		"count":  len(rows),
	})
}

// Tags serves GET /api/tags.
//
//	@Summary		Aggregate tag usage across the vault
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		slog.Error("tags failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tags == nil {
		tags = []TagCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tags": tags,
	})
}

// Reindex serves POST /api/reindex.
//
//	@Summary		Run a full indexing pass now
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	ReindexResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Reindex(r.Context())
	if err != nil {
		slog.Error("reindex failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": sum,
	})
}
