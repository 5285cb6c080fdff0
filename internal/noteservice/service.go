// Package noteservice coordinates vault storage, the persistent index, and
// the batch indexer behind one API-facing surface.
package noteservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/vault"
)

// NoteDetail is everything the API returns for a single note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Aliases     []string       `json:"aliases"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Links       []index.RefRow `json:"links"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is the listing row; it skips content and references.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage, index, and indexer operations. Mutations
// write to the vault first and then run a synchronous reindex pass, so the
// index, the resolved references, and the graph never lag a write.
type Service struct {
	store storage.Provider
	db    *index.DB
	ix    *index.Indexer
}

// NewService wires the service to its storage and index dependencies.
func NewService(store storage.Provider, db *index.DB, ix *index.Indexer) *Service {
	return &Service{store: store, db: db, ix: ix}
}

// GetNote reads a note from storage, parses it, and enriches it with its
// resolved references and backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note and reindexes. Content that does not parse is
// rejected before anything touches the vault.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := parser.Parse(content); err != nil {
		return nil, err
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := s.ix.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content)
}

// UpdateNote writes updated content with optimistic concurrency and
// reindexes.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	if _, err := parser.Parse(content); err != nil {
		return nil, err
	}
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && !checksum.Match(existing, ifMatch) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := s.ix.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content)
}

// PatchFrontmatter merges a partial frontmatter map into a note. A nil value
// removes the key; the body is left untouched. The merged document is
// re-rendered and written with optimistic concurrency.
func (s *Service) PatchFrontmatter(ctx context.Context, path string, patch map[string]any, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && !checksum.Match(existing, ifMatch) {
		return nil, apperr.ErrConflict
	}

	res, err := parser.Parse(existing)
	if err != nil {
		return nil, err
	}

	fm := res.Frontmatter
	if fm == nil {
		fm = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(fm, k)
			continue
		}
		fm[k] = v
	}

	content, err := parser.Compose(fm, res.Body)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := s.ix.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content)
}

// DeleteNote removes a note from storage; the reindex pass drops it from the
// index and re-resolves references that pointed at it.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	_, err := s.ix.Reindex(ctx)
	return err
}

// ListNotes pages through the index, optionally filtered by tag and sorted.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search runs full-text search against the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns the resolved link graph as node and edge lists.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// Backlinks returns all note paths holding a resolved link to the target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(target)
}

// Dangling returns every reference whose target does not exist.
func (s *Service) Dangling(_ context.Context) ([]index.DanglingRow, error) {
	return s.db.Dangling()
}

// Tags aggregates tag usage across the vault.
func (s *Service) Tags(_ context.Context) ([]index.TagCount, error) {
	return s.db.Tags()
}

// ParseErrors returns the files the last pass could not parse.
func (s *Service) ParseErrors(_ context.Context) ([]index.ParseErrorRow, error) {
	return s.db.ParseErrors()
}

// Reindex runs a full pass on demand.
func (s *Service) Reindex(ctx context.Context) (*index.Summary, error) {
	return s.ix.Reindex(ctx)
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading
// the file. Links and backlinks come from the last completed pass.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	links, err := s.db.RefsOf(path)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	title := res.Title
	if title == "" {
		title = vault.Stem(path)
	}
	return &NoteDetail{
		Path:        path,
		Title:       title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Aliases:     nonNilSlice(res.Aliases),
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(links),
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
