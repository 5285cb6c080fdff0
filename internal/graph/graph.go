// Package graph derives the directed note graph from a resolution pass.
// Edges come from resolved references only; dangling references never
// produce edges. A Graph is immutable once built and is recomputed whenever
// the store changes.
package graph

import (
	"sort"

	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/vault"
)

// Edge is a directed connection between two note paths.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph holds adjacency in both directions. Neighbour lists are
// deduplicated sets sorted by path; multiple references from A to B
// contribute a single edge.
type Graph struct {
	nodes    []string
	forward  map[string][]string
	backward map[string][]string
}

// Build constructs the graph for every note in the store, orphans included.
func Build(s *vault.Store, res *resolver.Resolution) *Graph {
	fwd := make(map[string]map[string]struct{})
	bwd := make(map[string]map[string]struct{})

	nodes := make([]string, 0, s.Len())
	for _, n := range s.Notes() {
		nodes = append(nodes, n.Path)
	}

	for source, refs := range res.Refs {
		for _, r := range refs {
			if r.Note == nil {
				continue
			}
			addEdge(fwd, source, r.Note.Path)
			addEdge(bwd, r.Note.Path, source)
		}
	}

	return &Graph{
		nodes:    nodes,
		forward:  flatten(fwd),
		backward: flatten(bwd),
	}
}

// Nodes returns every note path in ingestion order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Edges returns all edges sorted by source, then target.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for source, targets := range g.forward {
		for _, t := range targets {
			out = append(out, Edge{Source: source, Target: t})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Forward returns the sorted set of paths the note links to. The slice is
// empty, never nil, for notes without outbound links.
func (g *Graph) Forward(path string) []string {
	return neighbours(g.forward, path)
}

// Backlinks returns the sorted set of paths linking to the note. Orphans get
// an empty, never nil, slice.
func (g *Graph) Backlinks(path string) []string {
	return neighbours(g.backward, path)
}

func neighbours(m map[string][]string, path string) []string {
	if ns, ok := m[path]; ok {
		return ns
	}
	return []string{}
}

func addEdge(m map[string]map[string]struct{}, from, to string) {
	set, ok := m[from]
	if !ok {
		set = make(map[string]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

func flatten(sets map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(sets))
	for key, set := range sets {
		paths := make([]string, 0, len(set))
		for p := range set {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		out[key] = paths
	}
	return out
}
