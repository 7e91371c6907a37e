package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/taxonomy"
)

// Tree is an immutable, fully materialized taxonomy for one premise and
// coordinate.
type Tree struct {
	premise    ir.PremiseType
	coord      ir.Coordinate
	generation uint64
	logger     *slog.Logger

	parents  map[ir.Nid][]ir.Nid
	children map[ir.Nid][]ir.Nid
	roots    []ir.Nid
	depth    map[ir.Nid]int
}

var _ Snapshot = (*Tree)(nil)

// buildTree reads every record once through src, then walks breadth-first
// from the roots to assign depths.
func buildTree(ctx context.Context, src source, generation uint64, logger *slog.Logger) (*Tree, error) {
	t := &Tree{
		premise:    src.premise,
		coord:      src.coord,
		generation: generation,
		logger:     logger,
		parents:    make(map[ir.Nid][]ir.Nid),
		children:   make(map[ir.Nid][]ir.Nid),
		depth:      make(map[ir.Nid]int),
	}

	var mu sync.Mutex
	err := src.records.Range(ctx, func(_ context.Context, concept ir.Nid, rec taxonomy.Record) error {
		ps := src.parentsOf(rec)
		if len(ps) == 0 {
			return nil
		}
		mu.Lock()
		t.parents[concept] = ps
		for _, p := range ps {
			t.children[p] = append(t.children[p], concept)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}

	for p, cs := range t.children {
		t.children[p] = sortedUnique(cs)
		if _, hasParents := t.parents[p]; !hasParents {
			t.roots = append(t.roots, p)
		}
	}
	slices.Sort(t.roots)

	queue := slices.Clone(t.roots)
	for _, r := range t.roots {
		t.depth[r] = 0
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build tree: %w", err)
		}
		n := queue[0]
		queue = queue[1:]
		for _, c := range t.children[n] {
			if _, seen := t.depth[c]; seen {
				continue
			}
			t.depth[c] = t.depth[n] + 1
			queue = append(queue, c)
		}
	}
	return t, nil
}

// Premise returns the premise type the tree was built from.
func (t *Tree) Premise() ir.PremiseType { return t.premise }

// Coordinate returns the tree's coordinate.
func (t *Tree) Coordinate() ir.Coordinate { return t.coord }

// Generation returns the provider generation the tree was built in.
func (t *Tree) Generation() uint64 { return t.generation }

// Parents returns the concept's direct parents.
func (t *Tree) Parents(concept ir.Nid) []ir.Nid {
	return slices.Clone(t.parents[concept])
}

// Children returns the concept's direct children.
func (t *Tree) Children(concept ir.Nid) []ir.Nid {
	return slices.Clone(t.children[concept])
}

// IsChildOf reports whether parent is a direct parent of child.
func (t *Tree) IsChildOf(child, parent ir.Nid) bool {
	_, found := slices.BinarySearch(t.parents[child], parent)
	return found
}

// IsKindOf reports whether ancestor subsumes concept.
func (t *Tree) IsKindOf(concept, ancestor ir.Nid) bool {
	return isKindOf(t, t.logger, concept, ancestor)
}

// Roots returns the concepts with children and no parents.
func (t *Tree) Roots() []ir.Nid {
	return slices.Clone(t.roots)
}

// Depth returns the shortest distance from a root to concept. Concepts only
// reachable through a cycle have no depth.
func (t *Tree) Depth(concept ir.Nid) (int, bool) {
	d, ok := t.depth[concept]
	return d, ok
}

// Len returns the number of concepts in the tree.
func (t *Tree) Len() int {
	seen := make(map[ir.Nid]struct{}, len(t.parents)+len(t.roots))
	for c := range t.parents {
		seen[c] = struct{}{}
	}
	for _, r := range t.roots {
		seen[r] = struct{}{}
	}
	return len(seen)
}

// Render draws the tree as indented text, one concept per line, children
// sorted by name. A concept with several parents appears under each of them.
// A concept reached again on its own ancestor path is marked and not
// expanded.
func (t *Tree) Render(name func(ir.Nid) string) string {
	var b strings.Builder
	onPath := make(map[ir.Nid]bool)

	byName := func(nids []ir.Nid) []ir.Nid {
		out := slices.Clone(nids)
		slices.SortFunc(out, func(a, b ir.Nid) int { return strings.Compare(name(a), name(b)) })
		return out
	}

	var walk func(n ir.Nid, level int)
	walk = func(n ir.Nid, level int) {
		b.WriteString(strings.Repeat("  ", level))
		b.WriteString(name(n))
		if onPath[n] {
			b.WriteString(" (cycle)\n")
			return
		}
		b.WriteByte('\n')
		onPath[n] = true
		for _, c := range byName(t.children[n]) {
			walk(c, level+1)
		}
		onPath[n] = false
	}
	for _, r := range byName(t.roots) {
		walk(r, 0)
	}
	return b.String()
}
