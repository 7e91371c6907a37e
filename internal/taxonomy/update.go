package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/termgraph/internal/chronicle"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/stamp"
)

// Stamps is the stamp table the engine reads and derives retired stamps from.
type Stamps interface {
	stamp.Lookup
	Retire(seq ir.StampSeq) (ir.StampSeq, error)
}

// Chronicles is the read side of the chronicle store.
type Chronicles interface {
	Get(nid ir.Nid) (chronicle.Chronology, bool)
	Range(ctx context.Context, fn func(ctx context.Context, c chronicle.Chronology) error) error
}

// Engine keeps taxonomy records in step with committed logic graphs.
//
// Callers must Reserve the record table up to the identifier high-water mark
// before running updates that may touch newly assigned nids.
type Engine struct {
	records    *Records
	stamps     Stamps
	chronicles Chronicles
	terms      ir.Terms
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine writing into records.
func NewEngine(records *Records, stamps Stamps, chronicles Chronicles, terms ir.Terms, opts ...EngineOption) *Engine {
	e := &Engine{
		records:    records,
		stamps:     stamps,
		chronicles: chronicles,
		terms:      terms,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Records returns the table the engine writes.
func (e *Engine) Records() *Records {
	return e.records
}

// Result summarizes one update.
type Result struct {
	Semantic ir.Nid
	Concept  ir.Nid
	Added    int // edges written with the version's stamp
	Retired  int // edges written with the retired stamp
}

// Edges returns the number of edges written.
func (r Result) Edges() int {
	return r.Added + r.Retired
}

// edgeKey is an edge without its stamp.
type edgeKey struct {
	dest ir.Nid
	typ  ir.Nid
}

// UpdateSemantic applies the version of semantic stamped seq to the records
// of the concept it describes. A version with a predecessor is diffed against
// it: edges only the new graph implies are added with seq, and edges only the
// predecessor implied are written again with the retired form of seq.
// Semantics outside the logic graph assemblages are ignored.
func (e *Engine) UpdateSemantic(ctx context.Context, semantic ir.Nid, seq ir.StampSeq) (Result, error) {
	res := Result{Semantic: semantic}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	c, ok := e.chronicles.Get(semantic)
	if !ok {
		return res, fmt.Errorf("update semantic %d: no chronology", semantic)
	}
	premise, ok := e.terms.PremiseFor(c.Assemblage)
	if !ok {
		return res, nil
	}
	res.Concept = c.Referenced

	v, ok := c.Version(seq)
	if !ok {
		return res, fmt.Errorf("update semantic %d: no version with stamp %d", semantic, seq)
	}
	st, ok := e.stamps.Stamp(seq)
	if !ok {
		return res, fmt.Errorf("update semantic %d: unknown stamp %d", semantic, seq)
	}

	graph := v.Graph
	if !st.Status.IsActive() {
		// An inactive version withdraws everything its predecessor implied.
		graph = ir.LogicGraph{}
	}

	flags := PremiseFlag(premise)
	prev, hasPrev := c.Predecessor(e.stamps, v)

	var added, retired []edgeKey
	if !hasPrev {
		var err error
		added, err = e.edgesOf(semantic, graph, relationshipRoots(graph, e.logger))
		if err != nil {
			return res, err
		}
	} else {
		prevGraph := prev.Graph
		if ps, ok := e.stamps.Stamp(prev.Stamp); ok && !ps.Status.IsActive() {
			prevGraph = ir.LogicGraph{}
		}
		var err error
		added, retired, err = e.diff(semantic, prevGraph, graph)
		if err != nil {
			return res, err
		}
	}

	var edges []Edge
	for _, k := range added {
		edges = append(edges, Edge{Dest: k.dest, Type: k.typ, Stamp: seq, Flags: flags})
	}
	if len(retired) > 0 {
		retiredSeq, err := e.stamps.Retire(seq)
		if err != nil {
			return res, fmt.Errorf("update semantic %d: %w", semantic, err)
		}
		for _, k := range retired {
			edges = append(edges, Edge{Dest: k.dest, Type: k.typ, Stamp: retiredSeq, Flags: flags})
		}
	}
	if err := e.write(c.Referenced, edges); err != nil {
		return res, fmt.Errorf("update semantic %d: %w", semantic, err)
	}

	res.Added = len(added)
	res.Retired = len(retired)
	e.logger.Debug("taxonomy updated",
		"semantic", semantic,
		"concept", c.Referenced,
		"premise", premise,
		"stamp", seq,
		"added", res.Added,
		"retired", res.Retired,
	)
	return res, nil
}

// diff returns the edges to add and retire when oldGraph is replaced by
// newGraph. Relationship roots are compared by structural key first so that
// unchanged roots cost nothing. A changed root then only contributes edges
// the other graph does not imply as a whole.
func (e *Engine) diff(semantic ir.Nid, oldGraph, newGraph ir.LogicGraph) (added, retired []edgeKey, err error) {
	oldRoots := rootsByKey(oldGraph, relationshipRoots(oldGraph, e.logger))
	newRoots := rootsByKey(newGraph, relationshipRoots(newGraph, e.logger))

	var addedRoots, removedRoots []int
	for key, i := range newRoots {
		if _, ok := oldRoots[key]; !ok {
			addedRoots = append(addedRoots, i)
		}
	}
	for key, i := range oldRoots {
		if _, ok := newRoots[key]; !ok {
			removedRoots = append(removedRoots, i)
		}
	}
	if len(addedRoots) == 0 && len(removedRoots) == 0 {
		return nil, nil, nil
	}
	slices.Sort(addedRoots)
	slices.Sort(removedRoots)

	oldImplied, err := e.edgesOf(semantic, oldGraph, slices.Collect(maps.Values(oldRoots)))
	if err != nil {
		return nil, nil, err
	}
	newImplied, err := e.edgesOf(semantic, newGraph, slices.Collect(maps.Values(newRoots)))
	if err != nil {
		return nil, nil, err
	}

	candidates, err := e.edgesOf(semantic, newGraph, addedRoots)
	if err != nil {
		return nil, nil, err
	}
	for _, k := range candidates {
		if !slices.Contains(oldImplied, k) {
			added = append(added, k)
		}
	}

	candidates, err = e.edgesOf(semantic, oldGraph, removedRoots)
	if err != nil {
		return nil, nil, err
	}
	for _, k := range candidates {
		if !slices.Contains(newImplied, k) {
			retired = append(retired, k)
		}
	}
	return added, retired, nil
}

// rootsByKey indexes roots by their structural key. Duplicate roots collapse.
func rootsByKey(g ir.LogicGraph, roots []int) map[string]int {
	out := make(map[string]int, len(roots))
	for _, i := range roots {
		key := g.Key(i)
		if _, ok := out[key]; !ok {
			out[key] = i
		}
	}
	return out
}

// relationshipRoots returns the nodes under the definition root's necessary
// and sufficient sets that carry taxonomy meaning: the children of AND and OR
// groups, and concept references placed directly in a set. Anything else is
// skipped.
func relationshipRoots(g ir.LogicGraph, logger *slog.Logger) []int {
	if g.IsEmpty() {
		return nil
	}
	inRange := func(i int) bool { return i > 0 && i < g.Len() }

	var roots []int
	for _, set := range g.Node(g.Root()).Children {
		if !inRange(set) {
			continue
		}
		sn := g.Node(set)
		if sn.Kind != ir.NodeNecessarySet && sn.Kind != ir.NodeSufficientSet {
			logger.Debug("skipping definition root child", "node", set, "kind", sn.Kind)
			continue
		}
		for _, child := range sn.Children {
			if !inRange(child) {
				continue
			}
			switch cn := g.Node(child); cn.Kind {
			case ir.NodeAnd, ir.NodeOr:
				for _, r := range cn.Children {
					if inRange(r) {
						roots = append(roots, r)
					}
				}
			case ir.NodeConcept:
				roots = append(roots, child)
			default:
				logger.Debug("skipping set child", "node", child, "kind", cn.Kind)
			}
		}
	}
	return roots
}

// edgesOf returns the distinct edges implied by roots.
func (e *Engine) edgesOf(semantic ir.Nid, g ir.LogicGraph, roots []int) ([]edgeKey, error) {
	var out []edgeKey
	add := func(k edgeKey) {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	for _, r := range roots {
		if err := e.rootEdges(semantic, g, r, add); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(out, func(a, b edgeKey) int {
		return compareEdges(Edge{Dest: a.dest, Type: a.typ}, Edge{Dest: b.dest, Type: b.typ})
	})
	return out, nil
}

func (e *Engine) rootEdges(semantic ir.Nid, g ir.LogicGraph, i int, add func(edgeKey)) error {
	n := g.Node(i)
	switch n.Kind {
	case ir.NodeConcept:
		add(edgeKey{dest: n.Concept, typ: e.terms.IsA})
		return nil

	case ir.NodeRoleSome:
		if len(n.Children) != 1 {
			return nil
		}
		filler := g.Node(n.Children[0])
		if n.Type == e.terms.RoleGroup {
			if filler.Kind != ir.NodeAnd {
				e.logger.Debug("skipping role group without conjunction", "semantic", semantic, "node", i)
				return nil
			}
			for _, c := range filler.Children {
				if g.Node(c).Kind != ir.NodeRoleSome {
					continue
				}
				if err := e.rootEdges(semantic, g, c, add); err != nil {
					return err
				}
			}
			return nil
		}
		if filler.Kind == ir.NodeConcept {
			add(edgeKey{dest: filler.Concept, typ: n.Type})
		}
		return nil

	case ir.NodeFeature:
		return nil

	default:
		return &UnsupportedNodeKindError{Semantic: semantic, Node: i, Kind: n.Kind}
	}
}

// write accumulates edges into concept's record. IS_A edges also get an
// inbound copy in the parent's record.
func (e *Engine) write(concept ir.Nid, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	if _, err := e.records.Accumulate(concept, Pack(edges)); err != nil {
		return err
	}

	inbound := make(map[ir.Nid][]Edge)
	for _, edge := range edges {
		if edge.Type != e.terms.IsA {
			continue
		}
		inbound[edge.Dest] = append(inbound[edge.Dest], Edge{
			Dest:  concept,
			Type:  edge.Type,
			Stamp: edge.Stamp,
			Flags: edge.Flags | FlagInbound,
		})
	}
	for parent, back := range inbound {
		if _, err := e.records.Accumulate(parent, Pack(back)); err != nil {
			return err
		}
	}
	return nil
}

// UpdateConcept folds every committed stamp of the concept's own chronology
// into its concept-status self edge. Writing a stamp twice is harmless, so
// the whole history is written each time.
func (e *Engine) UpdateConcept(ctx context.Context, concept ir.Nid) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, ok := e.chronicles.Get(concept)
	if !ok {
		return 0, nil
	}
	var edges []Edge
	for _, seq := range c.Stamps() {
		st, ok := e.stamps.Stamp(seq)
		if !ok || st.IsUncommitted() || st.IsCanceled() {
			continue
		}
		edges = append(edges, Edge{Dest: concept, Type: e.terms.ConceptStatus, Stamp: seq, Flags: FlagConceptStatus})
	}
	if len(edges) == 0 {
		return 0, nil
	}
	if _, err := e.records.Accumulate(concept, Pack(edges)); err != nil {
		return 0, fmt.Errorf("update concept %d: %w", concept, err)
	}
	return len(edges), nil
}

// Rebuild recomputes every record from the chronicles by replaying each
// committed version. Records are unions, so replay order does not matter.
// A semantic with an unsupported node kind is logged and skipped.
func (e *Engine) Rebuild(ctx context.Context) error {
	return e.chronicles.Range(ctx, func(ctx context.Context, c chronicle.Chronology) error {
		switch c.Kind {
		case ir.KindConceptChronology:
			_, err := e.UpdateConcept(ctx, c.Nid)
			return err
		case ir.KindSemanticChronology:
			if _, ok := e.terms.PremiseFor(c.Assemblage); !ok {
				return nil
			}
			for _, seq := range c.Stamps() {
				st, ok := e.stamps.Stamp(seq)
				if !ok || st.IsUncommitted() || st.IsCanceled() {
					continue
				}
				if _, err := e.UpdateSemantic(ctx, c.Nid, seq); err != nil {
					if IsUnsupportedNodeKindError(err) {
						e.logger.Error("taxonomy rebuild skipped semantic", "semantic", c.Nid, "error", err)
						continue
					}
					return err
				}
			}
		}
		return nil
	})
}
