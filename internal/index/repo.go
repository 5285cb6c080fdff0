package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/apperr"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Aliases   []string
	Tags      []string
	Checksum  string
	Seq       int
	UpdatedAt time.Time
}

// LinkRow is one resolved reference occurrence. Position numbers the
// occurrence within the source note, counted across resolved and dangling
// references alike.
type LinkRow struct {
	Source   string
	Target   string
	Raw      string
	Position int
	Embed    bool
}

// DanglingRow is one reference occurrence whose target note does not exist.
type DanglingRow struct {
	Source   string `json:"source"`
	Raw      string `json:"raw"`
	Position int    `json:"position"`
	Embed    bool   `json:"embed,omitempty"`
}

// RefRow is one reference occurrence of a source note in document order.
// Target is empty for dangling references.
type RefRow struct {
	Raw    string `json:"raw"`
	Target string `json:"target,omitempty"`
	Embed  bool   `json:"embed,omitempty"`
}

// ParseErrorRow records a file that the latest pass could not parse.
type ParseErrorRow struct {
	Path   string    `json:"path"`
	Error  string    `json:"error"`
	SeenAt time.Time `json:"seen_at"`
}

// TagCount aggregates one tag across the vault.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// GraphNode is a note in the exported graph, identified by path.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GraphLink is a directed edge in the exported graph.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// UpsertNote inserts or replaces a note row and its FTS entry within a
// transaction, clearing any recorded parse error for the path. Link rows are
// written separately by ReplaceResolution because resolution is global.
func (db *DB) UpsertNote(n NoteRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(n.Tags)
	aliasesJSON, _ := json.Marshal(n.Aliases)

	_, err = tx.Exec(`
		INSERT INTO notes (path, title, aliases, tags, checksum, body, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			aliases    = excluded.aliases,
			tags       = excluded.tags,
			checksum   = excluded.checksum,
			body       = excluded.body,
			seq        = excluded.seq,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, string(aliasesJSON), string(tagsJSON), n.Checksum, body, n.Seq, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.Path, n.Title, body, n.Tags); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM parse_errors WHERE path = ?`, n.Path)

	return tx.Commit()
}

// ReplaceResolution rewrites the links and dangling_links tables with the
// outcome of one resolution pass. The rewrite is wholesale: adding or
// removing a single note can flip references everywhere in the vault.
func (db *DB) ReplaceResolution(links []LinkRow, dangling []DanglingRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links`); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM dangling_links`); err != nil {
		return fmt.Errorf("index: clear dangling links: %w", err)
	}

	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO links (source, target, raw, position, embed) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(l.Source, l.Target, l.Raw, l.Position, l.Embed); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	if len(dangling) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO dangling_links (source, raw, position, embed) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare dangling insert: %w", err)
		}
		defer stmt.Close()
		for _, d := range dangling {
			if _, err := stmt.Exec(d.Source, d.Raw, d.Position, d.Embed); err != nil {
				return fmt.Errorf("index: insert dangling link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note, its FTS entry, its reference rows, and any
// recorded parse error.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM dangling_links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM parse_errors WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	return tx.Commit()
}

// GetNote returns the stored row for a note path.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, title, aliases, tags, checksum, seq, updated_at
		FROM notes WHERE path = ?
	`, path)

	n, err := scanNoteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns one page of notes plus the total count. Tag filters use
// json_each over the stored tag list; sort accepts updated_at, title, or
// path (the default).
func (db *DB) ListNotes(limit, offset int, tag, sort string) ([]NoteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []interface{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	order := "path ASC"
	switch sort {
	case "updated_at":
		order = "updated_at DESC"
	case "title":
		order = "title COLLATE NOCASE ASC"
	}

	query := fmt.Sprintf(`
		SELECT path, title, aliases, tags, checksum, seq, updated_at
		FROM notes %s ORDER BY %s LIMIT ? OFFSET ?
	`, where, order)
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNoteRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// AllMeta returns every indexed note row keyed by path, without bodies.
func (db *DB) AllMeta() (map[string]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT path, title, aliases, tags, checksum, seq, updated_at FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all meta: %w", err)
	}
	defer rows.Close()

	out := make(map[string]NoteRow)
	for rows.Next() {
		n, err := scanNoteRow(rows)
		if err != nil {
			return nil, err
		}
		out[n.Path] = *n
	}
	return out, rows.Err()
}

// RefsOf returns the ordered reference sequence of one note, resolved and
// dangling occurrences interleaved as written.
func (db *DB) RefsOf(path string) ([]RefRow, error) {
	rows, err := db.conn.Query(`
		SELECT raw, target, position, embed FROM links WHERE source = ?
		UNION ALL
		SELECT raw, '', position, embed FROM dangling_links WHERE source = ?
		ORDER BY position
	`, path, path)
	if err != nil {
		return nil, fmt.Errorf("index: refs of %s: %w", path, err)
	}
	defer rows.Close()

	var out []RefRow
	for rows.Next() {
		var r RefRow
		var position int
		if err := rows.Scan(&r.Raw, &r.Target, &position, &r.Embed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllRefs returns the ordered reference sequences of every note, keyed by
// source path. Used to hydrate unchanged notes without re-reading files.
func (db *DB) AllRefs() (map[string][]RefRow, error) {
	rows, err := db.conn.Query(`
		SELECT source, raw, target, position, embed FROM links
		UNION ALL
		SELECT source, raw, '', position, embed FROM dangling_links
		ORDER BY source, position
	`)
	if err != nil {
		return nil, fmt.Errorf("index: all refs: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]RefRow)
	for rows.Next() {
		var source string
		var position int
		var r RefRow
		if err := rows.Scan(&source, &r.Raw, &r.Target, &position, &r.Embed); err != nil {
			return nil, err
		}
		out[source] = append(out[source], r)
	}
	return out, rows.Err()
}

// Backlinks returns the sorted set of note paths holding a resolved link to
// the target path.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every note as a node and every distinct resolved source,
// target pair as a link.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	nodeRows, err := db.conn.Query(`SELECT path, title FROM notes ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()

	var nodes []GraphNode
	for nodeRows.Next() {
		var n GraphNode
		if err := nodeRows.Scan(&n.ID, &n.Title); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`SELECT DISTINCT source, target FROM links ORDER BY source, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()

	var links []GraphLink
	for linkRows.Next() {
		var l GraphLink
		if err := linkRows.Scan(&l.Source, &l.Target); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, linkRows.Err()
}

// Dangling returns every dangling reference ordered by source and position.
func (db *DB) Dangling() ([]DanglingRow, error) {
	rows, err := db.conn.Query(`SELECT source, raw, position, embed FROM dangling_links ORDER BY source, position`)
	if err != nil {
		return nil, fmt.Errorf("index: dangling: %w", err)
	}
	defer rows.Close()

	var out []DanglingRow
	for rows.Next() {
		var d DanglingRow
		if err := rows.Scan(&d.Source, &d.Raw, &d.Position, &d.Embed); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Tags aggregates tag usage across all notes, most used first.
func (db *DB) Tags() ([]TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT je.value, COUNT(*) AS n
		FROM notes, json_each(notes.tags) AS je
		GROUP BY je.value
		ORDER BY n DESC, je.value ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var t TagCount
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordParseError stores the failure message for a file the pass skipped.
func (db *DB) RecordParseError(path, message string) error {
	_, err := db.conn.Exec(`
		INSERT INTO parse_errors (path, error, seen_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET error = excluded.error, seen_at = excluded.seen_at
	`, path, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: record parse error: %w", err)
	}
	return nil
}

// DeleteParseError drops the recorded failure for a path.
func (db *DB) DeleteParseError(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM parse_errors WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete parse error: %w", err)
	}
	return nil
}

// ParseErrors returns every recorded parse failure ordered by path.
func (db *DB) ParseErrors() ([]ParseErrorRow, error) {
	rows, err := db.conn.Query(`SELECT path, error, seen_at FROM parse_errors ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: parse errors: %w", err)
	}
	defer rows.Close()

	var out []ParseErrorRow
	for rows.Next() {
		var p ParseErrorRow
		if err := rows.Scan(&p.Path, &p.Error, &p.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNoteRow(row rowScanner) (*NoteRow, error) {
	var n NoteRow
	var aliasesJSON, tagsJSON string
	if err := row.Scan(&n.Path, &n.Title, &aliasesJSON, &tagsJSON, &n.Checksum, &n.Seq, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Aliases = unmarshalStrings(aliasesJSON)
	n.Tags = unmarshalStrings(tagsJSON)
	return &n, nil
}

func unmarshalStrings(s string) []string {
	var out []string
	if s != "" {
		_ = json.Unmarshal([]byte(s), &out)
	}
	return out
}
