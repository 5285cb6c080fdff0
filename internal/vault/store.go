// Package vault holds the in-memory note store assembled by one indexing
// pass. A Store is built fresh per batch and is not safe for concurrent use.
package vault

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/parser"
)

// Store collects parsed notes keyed by vault-relative path. Paths are unique;
// ingestion order is preserved for iteration and recorded on each note as Seq
// so later passes can break title ties by first-ingested.
type Store struct {
	notes  map[string]*models.Note
	order  []string
	maxSeq int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{notes: make(map[string]*models.Note)}
}

// NewNote parses raw Markdown bytes into a note without storing it.
// Malformed frontmatter propagates as parser.ErrMalformedFrontmatter so the
// caller can skip the file and record the failure.
func NewNote(path string, data []byte) (*models.Note, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vault: parse %s: %w", path, err)
	}

	title := res.Title
	if title == "" {
		title = Stem(path)
	}

	return &models.Note{
		Path:        path,
		Title:       title,
		Aliases:     res.Aliases,
		Tags:        res.Tags,
		Frontmatter: res.Frontmatter,
		Body:        res.Body,
		Refs:        res.Refs,
		Checksum:    checksum.Sum(data),
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Ingest parses raw Markdown bytes and adds the resulting note under path.
// A path already present fails with apperr.ErrAlreadyExists.
func (s *Store) Ingest(path string, data []byte) (*models.Note, error) {
	n, err := NewNote(path, data)
	if err != nil {
		return nil, err
	}
	if err := s.Add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Add inserts a pre-built note, assigning the next sequence number unless the
// note already carries one (hydration from a persisted index).
func (s *Store) Add(n *models.Note) error {
	if _, exists := s.notes[n.Path]; exists {
		return fmt.Errorf("vault: add %s: %w", n.Path, apperr.ErrAlreadyExists)
	}
	if n.Seq == 0 {
		s.maxSeq++
		n.Seq = s.maxSeq
	} else if n.Seq > s.maxSeq {
		s.maxSeq = n.Seq
	}
	s.notes[n.Path] = n
	s.order = append(s.order, n.Path)
	return nil
}

// Get returns the note stored under path.
func (s *Store) Get(path string) (*models.Note, bool) {
	n, ok := s.notes[path]
	return n, ok
}

// Notes returns all notes in ingestion order.
func (s *Store) Notes() []*models.Note {
	out := make([]*models.Note, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.notes[p])
	}
	return out
}

// Len reports the number of stored notes.
func (s *Store) Len() int {
	return len(s.notes)
}

// MaxSeq returns the highest sequence number assigned so far.
func (s *Store) MaxSeq() int {
	return s.maxSeq
}

// Stem returns the filename without directory or extension, the name a
// wikilink uses to address the file.
func Stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
