// Package snapshot answers taxonomy questions for one premise type and
// coordinate: parents, children, roots and subsumption.
//
// Two strategies are available. A Direct snapshot reads taxonomy records on
// every call. A Tree materializes the whole coordinate-filtered adjacency
// once and answers from memory. The Provider caches both per
// (premise, coordinate) and drops the entire cache on Invalidate.
package snapshot

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/stamp"
	"github.com/roach88/termgraph/internal/taxonomy"
)

// Subsumption walks give up past these depths. Taxonomies are acyclic, so a
// walk that deep points at a cycle in the data.
const (
	WarnDepth = 40
	MaxDepth  = 60
)

// Mode selects the snapshot strategy.
type Mode uint8

const (
	ModeTree Mode = iota
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeTree:
		return "tree"
	case ModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses "tree" or "direct".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "tree", "":
		return ModeTree, nil
	case "direct":
		return ModeDirect, nil
	default:
		return 0, fmt.Errorf("unknown snapshot mode %q", s)
	}
}

// Snapshot is a coordinate-specific view of the taxonomy.
type Snapshot interface {
	Premise() ir.PremiseType
	Coordinate() ir.Coordinate

	// Parents returns the concept's direct parents in ascending nid order.
	Parents(concept ir.Nid) []ir.Nid
	// Children returns the concept's direct children in ascending nid order.
	Children(concept ir.Nid) []ir.Nid
	// IsChildOf reports whether parent is a direct parent of child.
	IsChildOf(child, parent ir.Nid) bool
	// IsKindOf reports whether ancestor subsumes concept. Every concept is a
	// kind of itself.
	IsKindOf(concept, ancestor ir.Nid) bool
	// Roots returns the concepts that have children but no parents.
	Roots() []ir.Nid
}

// source reads one premise of the taxonomy records through a coordinate.
type source struct {
	records *taxonomy.Records
	stamps  stamp.Lookup
	terms   ir.Terms
	premise ir.PremiseType
	coord   ir.Coordinate
}

func (s source) isA() []ir.Nid {
	return []ir.Nid{s.terms.IsA}
}

func (s source) parentsOf(rec taxonomy.Record) []ir.Nid {
	return rec.DestinationNidsOfType(s.isA(), taxonomy.Parents(s.premise), s.stamps, s.coord)
}

func (s source) parents(concept ir.Nid) []ir.Nid {
	rec, ok := s.records.Get(concept)
	if !ok {
		return nil
	}
	return s.parentsOf(rec)
}

func (s source) children(concept ir.Nid) []ir.Nid {
	rec, ok := s.records.Get(concept)
	if !ok {
		return nil
	}
	return rec.DestinationNidsOfType(s.isA(), taxonomy.Children(s.premise), s.stamps, s.coord)
}

func (s source) isChildOf(child, parent ir.Nid) bool {
	rec, ok := s.records.Get(child)
	if !ok {
		return false
	}
	return rec.ContainsNidViaType(parent, s.isA(), taxonomy.Parents(s.premise), s.stamps, s.coord)
}

// adjacency is what a subsumption walk needs.
type adjacency interface {
	Parents(concept ir.Nid) []ir.Nid
	IsChildOf(child, parent ir.Nid) bool
}

// isKindOf walks up from concept looking for ancestor. A parent already
// explored without success is not walked again. The depth counter is kept
// regardless, so a cycle ends the walk at MaxDepth with false.
func isKindOf(g adjacency, logger *slog.Logger, concept, ancestor ir.Nid) bool {
	if concept == ancestor {
		return true
	}
	w := kindOfWalk{g: g, logger: logger, origin: concept, target: ancestor, explored: make(map[ir.Nid]bool)}
	found, _ := w.visit(concept, 0)
	return found
}

type kindOfWalk struct {
	g        adjacency
	logger   *slog.Logger
	origin   ir.Nid
	target   ir.Nid
	explored map[ir.Nid]bool
	warned   bool
}

func (w *kindOfWalk) visit(concept ir.Nid, depth int) (found, aborted bool) {
	if w.g.IsChildOf(concept, w.target) {
		return true, false
	}
	if depth > MaxDepth {
		w.logger.Error("subsumption walk aborted, taxonomy cycle suspected",
			"concept", w.origin,
			"ancestor", w.target,
			"at", concept,
			"depth", depth,
		)
		return false, true
	}
	if depth > WarnDepth && !w.warned {
		w.warned = true
		w.logger.Warn("subsumption walk unusually deep",
			"concept", w.origin,
			"ancestor", w.target,
			"at", concept,
			"depth", depth,
		)
	}
	for _, p := range w.g.Parents(concept) {
		if w.explored[p] {
			continue
		}
		found, aborted := w.visit(p, depth+1)
		if found || aborted {
			return found, aborted
		}
		w.explored[p] = true
	}
	return false, false
}

func sortedUnique(nids []ir.Nid) []ir.Nid {
	slices.Sort(nids)
	return slices.Compact(nids)
}
