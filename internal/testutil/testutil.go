// Package testutil provides shared fixtures for tests that need a vault, an
// index database, or both.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/storage"
)

// TestDB opens a SQLite index inside a per-test temp directory, so the WAL
// sidecar files disappear with it.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault returns an empty vault directory and a provider over it.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestIndexer wires a vault, database, and indexer together. The indexer
// carries no event callback; tests that assert on events construct their own.
func TestIndexer(t *testing.T) (string, storage.Provider, *index.DB, *index.Indexer) {
	t.Helper()
	vaultDir, store := TestVault(t)
	db := TestDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return vaultDir, store, db, index.NewIndexer(db, store, logger, nil)
}
