package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/vault"
)

// Summary reports what one indexing pass did.
type Summary struct {
	Parsed   int `json:"parsed"`
	Reused   int `json:"reused"`
	Removed  int `json:"removed"`
	Failed   int `json:"failed"`
	Resolved int `json:"resolved"`
	Dangling int `json:"dangling"`
	Orphans  int `json:"orphans"`
}

// Change describes one note a pass created, updated, or deleted.
type Change struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// EventCallback receives one notification per changed note after a pass.
// Kind is "created", "updated", or "deleted".
type EventCallback func(kind, path string)

// Indexer runs batch passes over the vault: parse changed files, re-resolve
// every reference globally, rebuild the graph, persist the snapshot. Files
// that fail to parse are skipped and recorded, never fatal.
type Indexer struct {
	db     *DB
	store  storage.Provider
	logger *slog.Logger
	cb     EventCallback

	group singleflight.Group

	mu    sync.RWMutex
	graph *graph.Graph
}

// NewIndexer wires an indexer over the given store and database. cb may be
// nil; when set it fires once per changed note after each pass.
func NewIndexer(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) *Indexer {
	return &Indexer{db: db, store: store, logger: logger, cb: cb}
}

// Graph returns the note graph built by the most recent pass, or nil before
// the first pass completes.
func (ix *Indexer) Graph() *graph.Graph {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph
}

// Reindex runs one full pass. Concurrent callers coalesce into a single run
// and share its result.
func (ix *Indexer) Reindex(ctx context.Context) (*Summary, error) {
	v, err, _ := ix.group.Do("reindex", func() (interface{}, error) {
		return ix.pass(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (ix *Indexer) pass(ctx context.Context) (*Summary, error) {
	metas, err := ix.store.List("")
	if err != nil {
		return nil, fmt.Errorf("index: list vault: %w", err)
	}
	prior, err := ix.db.AllMeta()
	if err != nil {
		return nil, err
	}
	priorRefs, err := ix.db.AllRefs()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	var changes []Change
	s := vault.NewStore()

	// Existing notes enter the store first, ordered by their original
	// sequence, so first-ingested tie-breaks survive restarts and new files
	// always sequence after them.
	var existing, fresh []models.NoteMetadata
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if _, ok := prior[m.Path]; ok {
			existing = append(existing, m)
		} else {
			fresh = append(fresh, m)
		}
	}
	sort.Slice(existing, func(i, j int) bool {
		return prior[existing[i].Path].Seq < prior[existing[j].Path].Seq
	})

	var parsed []*models.Note
	for _, m := range existing {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row := prior[m.Path]
		if row.Checksum == m.Checksum {
			if err := s.Add(hydrateNote(row, priorRefs[m.Path])); err == nil {
				summary.Reused++
			}
			continue
		}
		n, ok := ix.parseFile(m.Path, summary, &changes, prior)
		if !ok {
			continue
		}
		n.Seq = row.Seq
		if err := s.Add(n); err != nil {
			continue
		}
		parsed = append(parsed, n)
		summary.Parsed++
		changes = append(changes, Change{Kind: "updated", Path: m.Path})
	}
	for _, m := range fresh {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, ok := ix.parseFile(m.Path, summary, &changes, prior)
		if !ok {
			continue
		}
		if err := s.Add(n); err != nil {
			continue
		}
		parsed = append(parsed, n)
		summary.Parsed++
		changes = append(changes, Change{Kind: "created", Path: m.Path})
	}

	// Drop index entries for files removed from disk.
	for p := range prior {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ix.db.DeleteNote(p); err != nil {
			ix.logger.Warn("index: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		summary.Removed++
		changes = append(changes, Change{Kind: "deleted", Path: p})
		ix.logger.Debug("index: removed stale", slog.String("path", p))
	}
	ix.pruneParseErrors(disk)

	// Resolution and the graph are global: one new note can flip dangling
	// references everywhere, so both are rebuilt every pass.
	res := resolver.Resolve(s)
	g := graph.Build(s, res)

	for _, n := range parsed {
		row := NoteRow{
			Path:      n.Path,
			Title:     n.Title,
			Aliases:   n.Aliases,
			Tags:      n.Tags,
			Checksum:  n.Checksum,
			Seq:       n.Seq,
			UpdatedAt: n.UpdatedAt,
		}
		if err := ix.db.UpsertNote(row, n.Body); err != nil {
			ix.logger.Warn("index: upsert failed", slog.String("path", n.Path), slog.String("error", err.Error()))
			summary.Failed++
		} else {
			ix.logger.Debug("index: indexed", slog.String("path", n.Path))
		}
	}

	links, dangling := resolutionRows(s, res)
	if err := ix.db.ReplaceResolution(links, dangling); err != nil {
		return nil, err
	}

	summary.Resolved = len(links)
	summary.Dangling = len(dangling)
	for _, p := range g.Nodes() {
		if len(g.Backlinks(p)) == 0 && len(g.Forward(p)) == 0 {
			summary.Orphans++
		}
	}

	ix.mu.Lock()
	ix.graph = g
	ix.mu.Unlock()

	for _, w := range res.Dangling {
		ix.logger.Debug("index: dangling link",
			slog.String("source", w.Source), slog.String("raw", w.Raw))
	}
	if len(res.Dangling) > 0 {
		ix.logger.Warn("index: dangling links found", slog.Int("count", len(res.Dangling)))
	}
	ix.logger.Info("index: pass complete",
		slog.Int("parsed", summary.Parsed),
		slog.Int("reused", summary.Reused),
		slog.Int("removed", summary.Removed),
		slog.Int("failed", summary.Failed),
		slog.Int("resolved", summary.Resolved),
		slog.Int("dangling", summary.Dangling),
		slog.Int("orphans", summary.Orphans))

	if ix.cb != nil {
		for _, c := range changes {
			ix.cb(c.Kind, c.Path)
		}
	}

	return summary, nil
}

// parseFile reads and parses one file. On failure it records the parse
// error, removes any previously indexed row for the path, and reports the
// removal as a deletion.
func (ix *Indexer) parseFile(path string, summary *Summary, changes *[]Change, prior map[string]NoteRow) (*models.Note, bool) {
	data, err := ix.store.Read(path)
	if err != nil {
		ix.logger.Warn("index: read failed", slog.String("path", path), slog.String("error", err.Error()))
		summary.Failed++
		return nil, false
	}
	n, err := vault.NewNote(path, data)
	if err != nil {
		summary.Failed++
		ix.logger.Warn("index: skipping malformed note",
			slog.String("path", path), slog.String("error", err.Error()))
		if recErr := ix.db.RecordParseError(path, err.Error()); recErr != nil {
			ix.logger.Warn("index: record parse error failed", slog.String("error", recErr.Error()))
		}
		if _, had := prior[path]; had {
			if delErr := ix.db.DeleteNote(path); delErr == nil {
				*changes = append(*changes, Change{Kind: "deleted", Path: path})
			}
		}
		return nil, false
	}
	return n, true
}

// pruneParseErrors drops recorded failures for files no longer on disk.
func (ix *Indexer) pruneParseErrors(disk map[string]struct{}) {
	rows, err := ix.db.ParseErrors()
	if err != nil {
		return
	}
	for _, r := range rows {
		if _, ok := disk[r.Path]; !ok {
			_ = ix.db.DeleteParseError(r.Path)
		}
	}
}

// hydrateNote rebuilds an unchanged note from its stored row without
// re-reading the file. The body is left empty; resolution only needs titles,
// aliases, and the reference list.
func hydrateNote(row NoteRow, refs []RefRow) *models.Note {
	n := &models.Note{
		Path:      row.Path,
		Title:     row.Title,
		Aliases:   row.Aliases,
		Tags:      row.Tags,
		Checksum:  row.Checksum,
		Seq:       row.Seq,
		UpdatedAt: row.UpdatedAt,
	}
	for _, r := range refs {
		n.Refs = append(n.Refs, parser.ParseRef(r.Raw, r.Embed))
	}
	return n
}

// resolutionRows flattens a resolution into link and dangling rows sharing
// one position numbering per source.
func resolutionRows(s *vault.Store, res *resolver.Resolution) ([]LinkRow, []DanglingRow) {
	var links []LinkRow
	var dangling []DanglingRow
	for _, n := range s.Notes() {
		for pos, r := range res.Refs[n.Path] {
			if r.Note != nil {
				links = append(links, LinkRow{
					Source:   n.Path,
					Target:   r.Note.Path,
					Raw:      r.Ref.Raw,
					Position: pos,
					Embed:    r.Ref.Embed,
				})
			} else {
				dangling = append(dangling, DanglingRow{
					Source:   n.Path,
					Raw:      r.Ref.Raw,
					Position: pos,
					Embed:    r.Ref.Embed,
				})
			}
		}
	}
	return links, dangling
}
