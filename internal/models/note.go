// Package models defines the domain types for Raido.
package models

import "time"

// Note represents a parsed Markdown file in the vault. Notes are immutable
// after ingestion; a changed file yields a fresh Note in the next batch.
type Note struct {
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body"`
	Refs        []LinkRef      `json:"refs,omitempty"`
	Checksum    string         `json:"checksum"`
	Seq         int            `json:"-"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LinkRef is one wikilink occurrence in a note body, in document order.
// Raw is the inner text exactly as written; Target/Alias/Anchor are the
// parsed pieces of the "target#anchor|alias" form.
type LinkRef struct {
	Raw    string `json:"raw"`
	Target string `json:"target"`
	Alias  string `json:"alias,omitempty"`
	Anchor string `json:"anchor,omitempty"`
	Embed  bool   `json:"embed,omitempty"`
}

// NoteMetadata is what a storage listing knows about a file without
// parsing it.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
