package api

import (
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/noteservice"
)

// CreateNoteRequest is the body of POST /api/notes.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"topics/wikis.md" validate:"required"`
	Content string `json:"content" example:"# Wikis\nLinked notes." validate:"required"`
}

// UpdateNoteRequest is the body of PUT /api/notes/{path}.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Wikis\nRevised." validate:"required"`
}

// PatchNoteRequest is the request body for merging frontmatter into a note.
// A null value removes the key.
type PatchNoteRequest struct {
	Frontmatter map[string]any `json:"frontmatter" validate:"required"`
}

// NoteDetail is the full note payload, aliased from the domain layer so swag
// picks it up.
type NoteDetail = noteservice.NoteDetail

// NoteListItem is one entry of a note listing, aliased from the domain layer.
type NoteListItem = noteservice.NoteListItem

// NoteListResponse is a page of notes plus the unpaginated total.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single full-text search hit.
type SearchResult struct {
	Path    string `json:"path" example:"topics/wikis.md" validate:"required"`
	Title   string `json:"title" example:"Wikis" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphNode is a note in the link graph.
type GraphNode struct {
	ID    string `json:"id" example:"topics/wikis.md" validate:"required"`
	Title string `json:"title,omitempty" example:"Wikis"`
}

// GraphLink is one resolved wikilink between two notes.
type GraphLink struct {
	Source string `json:"source" example:"topics/wikis.md" validate:"required"`
	Target string `json:"target" example:"topics/hypertext.md" validate:"required"`
}

// GraphResponse is the whole link graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}

// DanglingLink is one reference whose target note does not exist (aliased
// from the index layer).
type DanglingLink = index.DanglingRow

// DanglingResponse wraps the vault's dangling references.
type DanglingResponse struct {
	Dangling []DanglingLink `json:"dangling" validate:"required"`
	Count    int            `json:"count" example:"3" validate:"required"`
}

// ParseError is one file the last indexing pass could not parse (aliased
// from the index layer).
type ParseError = index.ParseErrorRow

// ParseErrorsResponse wraps the recorded parse failures.
type ParseErrorsResponse struct {
	Errors []ParseError `json:"errors" validate:"required"`
	Count  int          `json:"count" example:"1" validate:"required"`
}

// TagCount is one tag with its usage count (aliased from the index layer).
type TagCount = index.TagCount

// TagsResponse wraps the vault's tag aggregation.
type TagsResponse struct {
	Tags []TagCount `json:"tags" validate:"required"`
}

// BacklinksResponse lists the notes linking to one note.
type BacklinksResponse struct {
	Path      string   `json:"path" example:"topics/wikis.md" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// ReindexResponse wraps the summary of an on-demand indexing pass.
type ReindexResponse struct {
	Summary index.Summary `json:"summary" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"chart.png" validate:"required"`
	Size     int64  `json:"size" example:"2048" validate:"required"`
	URL      string `json:"url" example:"/attachments/chart.png" validate:"required"`
}
