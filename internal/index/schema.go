// Package index persists the outcome of vault indexing passes in SQLite,
// with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	aliases    TEXT NOT NULL DEFAULT '[]',
	tags       TEXT NOT NULL DEFAULT '[]',
	checksum   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	seq        INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source   TEXT NOT NULL,
	target   TEXT NOT NULL,
	raw      TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	embed    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, position)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS dangling_links (
	source   TEXT NOT NULL,
	raw      TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	embed    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, position)
);

CREATE TABLE IF NOT EXISTS parse_errors (
	path    TEXT PRIMARY KEY,
	error   TEXT NOT NULL DEFAULT '',
	seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with index-specific operations. Links and dangling_links
// share one position numbering per source note, so the two tables together
// reconstruct the ordered reference sequence of every note.
type DB struct {
	conn *sql.DB
}

// Open connects to the SQLite file at dsn, creating it if needed, and
// applies the schema. WAL mode keeps readers unblocked during reindex
// passes.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.conn.Close()
}
