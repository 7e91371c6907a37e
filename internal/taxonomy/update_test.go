package taxonomy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/chronicle"
	"github.com/roach88/termgraph/internal/identifier"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/stamp"
)

var testTerms = ir.Terms{
	IsA:                identifier.FirstNid,
	RoleGroup:          identifier.FirstNid + 1,
	ConceptStatus:      identifier.FirstNid + 2,
	ConceptAssemblage:  identifier.FirstNid + 3,
	StatedAssemblage:   identifier.FirstNid + 4,
	InferredAssemblage: identifier.FirstNid + 5,
	DevelopmentPath:    identifier.FirstNid + 6,
	CoreModule:         identifier.FirstNid + 7,
	User:               identifier.FirstNid + 8,
	Root:               identifier.FirstNid + 9,
}

const (
	other    = identifier.FirstNid + 10
	child    = identifier.FirstNid + 11
	finding  = identifier.FirstNid + 12
	site     = identifier.FirstNid + 13
	morph    = identifier.FirstNid + 14
	lesion   = identifier.FirstNid + 15
	semantic = identifier.FirstNid + 20
)

type fixture struct {
	stamps     *stamp.Service
	chronicles *chronicle.Store
	records    *Records
	engine     *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stamps:     stamp.New(),
		chronicles: chronicle.NewStore(),
		records:    NewRecords(),
	}
	f.engine = NewEngine(f.records, f.stamps, f.chronicles, testTerms)
	return f
}

func (f *fixture) stampAt(t *testing.T, status ir.Status, time int64) ir.StampSeq {
	t.Helper()
	seq, err := f.stamps.Intern(ir.Stamp{
		Status: status,
		Time:   time,
		Author: testTerms.User,
		Module: testTerms.CoreModule,
		Path:   testTerms.DevelopmentPath,
	})
	require.NoError(t, err)
	return seq
}

// commitGraph stores g as a new version of the stated semantic for concept
// and runs the update for it.
func (f *fixture) commitGraph(t *testing.T, concept ir.Nid, time int64, g ir.LogicGraph) Result {
	t.Helper()
	seq := f.stampAt(t, ir.StatusActive, time)
	_, err := f.chronicles.AddVersion(chronicle.Chronology{
		Nid:        semantic,
		Kind:       ir.KindSemanticChronology,
		Assemblage: testTerms.StatedAssemblage,
		Referenced: concept,
	}, chronicle.Version{Stamp: seq, Graph: g})
	require.NoError(t, err)

	res, err := f.engine.UpdateSemantic(context.Background(), semantic, seq)
	require.NoError(t, err)
	return res
}

func (f *fixture) parents(concept ir.Nid, coord ir.Coordinate) []ir.Nid {
	rec, _ := f.records.Get(concept)
	return rec.DestinationNidsOfType([]ir.Nid{testTerms.IsA}, Parents(ir.PremiseStated), f.stamps, coord)
}

func (f *fixture) children(concept ir.Nid, coord ir.Coordinate) []ir.Nid {
	rec, _ := f.records.Get(concept)
	return rec.DestinationNidsOfType([]ir.Nid{testTerms.IsA}, Children(ir.PremiseStated), f.stamps, coord)
}

func at(time int64) ir.Coordinate {
	return ir.CoordinateAt(testTerms.DevelopmentPath, time)
}

func TestUpdate_AmendThenRevertRetiresEdge(t *testing.T) {
	f := newFixture(t)

	res := f.commitGraph(t, child, 10, ir.IsAGraph(testTerms.Root))
	assert.Equal(t, 1, res.Added)

	before, _ := f.records.Get(child)
	res = f.commitGraph(t, child, 20, ir.IsAGraph(testTerms.Root, other))
	assert.Equal(t, 1, res.Added, "only the edge to Other is new")
	assert.Zero(t, res.Retired)

	after, _ := f.records.Get(child)
	assert.Equal(t, before.Len()+1, after.Len())

	res = f.commitGraph(t, child, 30, ir.IsAGraph(testTerms.Root))
	assert.Zero(t, res.Added)
	assert.Equal(t, 1, res.Retired)

	reverted, _ := f.records.Get(child)
	assert.Equal(t, after.Len()+1, reverted.Len(), "retraction appends history, nothing is removed")

	assert.Equal(t, []ir.Nid{testTerms.Root}, f.parents(child, at(10)))
	assert.ElementsMatch(t, []ir.Nid{testTerms.Root, other}, f.parents(child, at(25)))
	assert.Equal(t, []ir.Nid{testTerms.Root}, f.parents(child, at(30)))
	assert.Empty(t, f.parents(child, at(5)))

	assert.Equal(t, []ir.Nid{child}, f.children(other, at(25)))
	assert.Empty(t, f.children(other, at(30)))
	assert.Equal(t, []ir.Nid{child}, f.children(testTerms.Root, at(30)))
}

func TestUpdate_RolesAndGroups(t *testing.T) {
	f := newFixture(t)
	b := ir.NewGraphBuilder()
	b.Necessary(b.And(
		b.Concept(testTerms.Root),
		b.Group(testTerms.RoleGroup,
			b.Some(finding, b.Concept(site)),
			b.Some(morph, b.Concept(lesion)),
			b.Feature(morph, ir.OpEqual, "3"),
		),
		b.Feature(site, ir.OpGreater, "1"),
	))

	res := f.commitGraph(t, child, 10, b.Build())
	assert.Equal(t, 3, res.Added)

	rec, ok := f.records.Get(child)
	require.True(t, ok)
	sel := Parents(ir.PremiseStated)
	assert.Equal(t, []ir.Nid{site}, rec.DestinationNidsOfType([]ir.Nid{finding}, sel, f.stamps, at(10)))
	assert.True(t, rec.ContainsNidViaType(lesion, []ir.Nid{morph}, sel, f.stamps, at(10)))
	assert.False(t, rec.ContainsNidViaType(lesion, []ir.Nid{finding}, sel, f.stamps, at(10)))
	assert.False(t, rec.ContainsNidViaType(lesion, []ir.Nid{morph}, Parents(ir.PremiseInferred), f.stamps, at(10)))

	_, ok = f.records.Get(site)
	assert.False(t, ok, "only IS_A edges get an inbound copy")
}

func TestUpdate_MovingRoleIntoGroupKeepsEdge(t *testing.T) {
	f := newFixture(t)

	b := ir.NewGraphBuilder()
	b.Necessary(b.And(b.Concept(testTerms.Root), b.Some(finding, b.Concept(site))))
	f.commitGraph(t, child, 10, b.Build())

	b = ir.NewGraphBuilder()
	b.Necessary(b.And(b.Concept(testTerms.Root), b.Group(testTerms.RoleGroup, b.Some(finding, b.Concept(site)))))
	res := f.commitGraph(t, child, 20, b.Build())

	assert.Zero(t, res.Edges(), "the changed root implies the same edge")
}

func TestUpdate_UnsupportedKindAbortsOnlyThatSemantic(t *testing.T) {
	f := newFixture(t)
	b := ir.NewGraphBuilder()
	b.Necessary(b.And(b.Concept(testTerms.Root), b.All(finding, b.Concept(site))))

	seq := f.stampAt(t, ir.StatusActive, 10)
	_, err := f.chronicles.AddVersion(chronicle.Chronology{
		Nid: semantic, Kind: ir.KindSemanticChronology, Assemblage: testTerms.StatedAssemblage, Referenced: child,
	}, chronicle.Version{Stamp: seq, Graph: b.Build()})
	require.NoError(t, err)

	_, err = f.engine.UpdateSemantic(context.Background(), semantic, seq)
	require.Error(t, err)
	assert.True(t, IsUnsupportedNodeKindError(err))
	_, ok := f.records.Get(child)
	assert.False(t, ok, "nothing written for the failed semantic")
}

func TestUpdate_IgnoresNonLogicAssemblage(t *testing.T) {
	f := newFixture(t)
	seq := f.stampAt(t, ir.StatusActive, 10)
	_, err := f.chronicles.AddVersion(chronicle.Chronology{
		Nid: semantic, Kind: ir.KindSemanticChronology, Assemblage: testTerms.ConceptAssemblage, Referenced: child,
	}, chronicle.Version{Stamp: seq, Graph: ir.IsAGraph(testTerms.Root)})
	require.NoError(t, err)

	res, err := f.engine.UpdateSemantic(context.Background(), semantic, seq)
	require.NoError(t, err)
	assert.Zero(t, res.Edges())
}

func TestUpdateConcept_StatusEdge(t *testing.T) {
	f := newFixture(t)
	active := f.stampAt(t, ir.StatusActive, 10)
	inactive := f.stampAt(t, ir.StatusInactive, 20)
	pending := f.stampAt(t, ir.StatusActive, ir.TimeUncommitted)

	template := chronicle.Chronology{Nid: child, Kind: ir.KindConceptChronology, Assemblage: testTerms.ConceptAssemblage}
	for _, seq := range []ir.StampSeq{active, inactive, pending} {
		_, err := f.chronicles.AddVersion(template, chronicle.Version{Stamp: seq})
		require.NoError(t, err)
	}

	n, err := f.engine.UpdateConcept(context.Background(), child)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "uncommitted stamps are not recorded")

	rec, _ := f.records.Get(child)
	assert.True(t, rec.IsConceptActive(child, testTerms.ConceptStatus, f.stamps, at(15)))
	assert.False(t, rec.IsConceptActive(child, testTerms.ConceptStatus, f.stamps, at(25)))
	assert.False(t, rec.IsConceptActive(child, testTerms.ConceptStatus, f.stamps, at(5)))
	assert.Equal(t, []ir.Status{ir.StatusInactive}, rec.ConceptStates(child, testTerms.ConceptStatus, f.stamps, at(25)))
}

func TestConceptStates_Contradiction(t *testing.T) {
	f := newFixture(t)
	a := f.stampAt(t, ir.StatusActive, 10)
	i := f.stampAt(t, ir.StatusInactive, 10)
	rec := Pack([]Edge{
		{Dest: child, Type: testTerms.ConceptStatus, Stamp: a, Flags: FlagConceptStatus},
		{Dest: child, Type: testTerms.ConceptStatus, Stamp: i, Flags: FlagConceptStatus},
	})

	assert.Equal(t, []ir.Status{ir.StatusActive, ir.StatusInactive},
		rec.ConceptStates(child, testTerms.ConceptStatus, f.stamps, at(10)))
}

func TestRebuild_MatchesIncremental(t *testing.T) {
	f := newFixture(t)
	f.commitGraph(t, child, 10, ir.IsAGraph(testTerms.Root))
	f.commitGraph(t, child, 20, ir.IsAGraph(testTerms.Root, other))
	f.commitGraph(t, child, 30, ir.IsAGraph(other))

	want, _ := f.records.Get(child)

	rebuilt := NewRecords()
	engine := NewEngine(rebuilt, f.stamps, f.chronicles, testTerms)
	require.NoError(t, engine.Rebuild(context.Background()))

	got, ok := rebuilt.Get(child)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, []ir.Nid{other}, f.parents(child, at(30)))
}
