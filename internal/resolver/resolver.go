// Package resolver matches the wikilink references collected in a vault store
// against the notes themselves. Matching is by case-insensitive title, then
// frontmatter alias, then vault-path stem, so [[S4 HANA]], [[s4 hana]] and
// [[sap/S4 HANA]] all land on the same note.
package resolver

import (
	"path"
	"strings"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/vault"
)

// ResolvedRef is one reference occurrence after resolution. Note is nil when
// the reference is dangling.
type ResolvedRef struct {
	Ref  models.LinkRef
	Note *models.Note
}

// Warning records a reference whose target was not found in the store.
// Position is the index of the occurrence in the source note's resolved
// sequence.
type Warning struct {
	Source   string `json:"source"`
	Raw      string `json:"raw"`
	Position int    `json:"position"`
}

// Resolution holds the outcome of one pass: for every note path the ordered
// sequence of its reference outcomes, plus the flat list of dangling
// warnings. Dangling references never abort a pass.
type Resolution struct {
	Refs     map[string][]ResolvedRef
	Dangling []Warning
}

// Embeds of binary vault assets are attachment references, not note links;
// they are excluded from resolution so images never show up as dangling.
var attachmentExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".pdf": {}, ".mp3": {}, ".wav": {}, ".ogg": {}, ".mp4": {}, ".webm": {},
}

// Resolve matches every reference of every note in the store. A note resolves
// to itself only through an explicitly written self-link; ties between notes
// sharing a name prefer the exact-case match, then the first-ingested note.
func Resolve(s *vault.Store) *Resolution {
	idx := buildIndex(s)
	res := &Resolution{Refs: make(map[string][]ResolvedRef, s.Len())}

	for _, n := range s.Notes() {
		refs := []ResolvedRef{}
		for _, ref := range n.Refs {
			if isAttachment(ref.Target) {
				continue
			}
			target := idx.lookup(ref.Target)
			refs = append(refs, ResolvedRef{Ref: ref, Note: target})
			if target == nil {
				res.Dangling = append(res.Dangling, Warning{
					Source:   n.Path,
					Raw:      ref.Raw,
					Position: len(refs) - 1,
				})
			}
		}
		res.Refs[n.Path] = refs
	}
	return res
}

func isAttachment(target string) bool {
	_, ok := attachmentExts[strings.ToLower(path.Ext(target))]
	return ok
}

// entry pairs a note with the original-case name it was indexed under, so
// lookups can detect exact-case matches.
type entry struct {
	name string
	note *models.Note
}

type index struct {
	titles  map[string][]entry
	aliases map[string][]entry
	stems   map[string][]entry
}

func buildIndex(s *vault.Store) *index {
	idx := &index{
		titles:  make(map[string][]entry),
		aliases: make(map[string][]entry),
		stems:   make(map[string][]entry),
	}
	for _, n := range s.Notes() {
		if n.Title != "" {
			idx.add(idx.titles, n.Title, n)
		}
		for _, a := range n.Aliases {
			idx.add(idx.aliases, a, n)
		}
		full := strings.TrimSuffix(n.Path, ".md")
		idx.add(idx.stems, full, n)
		if base := path.Base(full); base != full {
			idx.add(idx.stems, base, n)
		}
	}
	return idx
}

func (idx *index) add(m map[string][]entry, name string, n *models.Note) {
	key := strings.ToLower(name)
	m[key] = append(m[key], entry{name: name, note: n})
}

// lookup tries titles, then aliases, then path stems. Within a bucket the
// winner is the exact-case match if one exists, otherwise the entry with the
// lowest ingestion sequence.
func (idx *index) lookup(target string) *models.Note {
	if n := pick(idx.titles[strings.ToLower(target)], target); n != nil {
		return n
	}
	if n := pick(idx.aliases[strings.ToLower(target)], target); n != nil {
		return n
	}
	stem := strings.TrimSuffix(target, ".md")
	return pick(idx.stems[strings.ToLower(stem)], stem)
}

func pick(cands []entry, target string) *models.Note {
	var best *models.Note
	bestExact := false
	for _, e := range cands {
		exact := e.name == target
		switch {
		case best == nil:
			best, bestExact = e.note, exact
		case exact != bestExact:
			if exact {
				best, bestExact = e.note, true
			}
		case e.note.Seq < best.Seq:
			best = e.note
		}
	}
	return best
}
