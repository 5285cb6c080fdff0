// Package storage abstracts the vault file system. All paths crossing the
// Provider boundary are slash-separated and relative to the vault root.
package storage

import "github.com/starford/raido/internal/models"

// Provider is what the indexer and services need from vault storage.
type Provider interface {
	// List walks dir recursively and returns metadata for every .md file,
	// skipping the provider's ignore patterns.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of one file.
	Read(path string) ([]byte, error)
	// Write replaces the file at path atomically, creating parent
	// directories as needed.
	Write(path string, content []byte) error
	// Delete removes one file.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
