package termstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/commit"
	"github.com/roach88/termgraph/internal/compiler"
	"github.com/roach88/termgraph/internal/config"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/metrics"
	"github.com/roach88/termgraph/internal/snapshot"
	"github.com/roach88/termgraph/internal/testutil"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Backend = backend
	cfg.Workers = 2
	return cfg
}

func open(t *testing.T, cfg config.Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTimeSource(testutil.NewDeterministicClock().Next),
	}, opts...)
	s, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return s
}

func openService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s := open(t, testConfig(t, config.BackendSQLite), opts...)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// concept stages a named concept without committing it and waits
// for its write.
func concept(t *testing.T, s *Service, ec ir.EditCoordinate, name string) ir.Nid {
	t.Helper()
	edit, err := s.NewConcept(context.Background(), ec, uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)), name)
	require.NoError(t, err)
	require.NoError(t, edit.Wait(context.Background()))
	return edit.Nid
}

func isA(t *testing.T, s *Service, ec ir.EditCoordinate, child ir.Nid, parents ...ir.Nid) {
	t.Helper()
	edit, err := s.SetLogicGraph(context.Background(), ec, child, ir.PremiseStated, ir.IsAGraph(parents...))
	require.NoError(t, err)
	require.NoError(t, edit.Wait(context.Background()))
}

func commitAll(t *testing.T, s *Service, ec ir.EditCoordinate) ir.CommitRecord {
	t.Helper()
	rec, err := s.Commit(context.Background(), ec, "")
	require.NoError(t, err)
	return rec
}

func parents(s *Service, concept ir.Nid, coord ir.Coordinate) []ir.Nid {
	return s.Snapshot(ir.PremiseStated, coord, snapshot.ModeDirect).Parents(concept)
}

func TestService_CommittedEditsReachTaxonomy(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	latest := ir.LatestCoordinate(ec.Path)

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	c3 := concept(t, s, ec, "C3")
	isA(t, s, ec, c1, c2)
	t1 := commitAll(t, s, ec)

	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, latest))
	assert.Equal(t, []ir.Nid{c1}, s.Snapshot(ir.PremiseStated, latest, snapshot.ModeDirect).Children(c2))

	isA(t, s, ec, c1, c2, c3)
	t2 := commitAll(t, s, ec)
	require.Greater(t, t2.Time, t1.Time)

	assert.Equal(t, []ir.Nid{c2, c3}, parents(s, c1, latest))
	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.CoordinateAt(ec.Path, t1.Time)))

	tree, err := s.Tree(context.Background(), ir.PremiseStated, latest)
	require.NoError(t, err)
	assert.True(t, tree.IsKindOf(c1, c3))
	assert.ElementsMatch(t, []ir.Nid{c2, c3}, tree.Roots())

	g, ok := s.LogicGraph(c1, ir.PremiseStated, ir.CoordinateAt(ec.Path, t1.Time))
	require.True(t, ok)
	assert.Equal(t, ir.IsAGraph(c2).Key(0), g.Key(0))
}

func TestService_UncommittedEditsStayOutOfTaxonomy(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	isA(t, s, ec, c1, c2)

	assert.Empty(t, parents(s, c1, ir.LatestCoordinate(ec.Path)))
	assert.True(t, s.Coordinator().IsUncommitted(c1))

	n, err := s.Cancel(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, s.Coordinator().IsUncommitted(c1))

	rec := commitAll(t, s, ec)
	assert.True(t, rec.IsEmpty())
}

func TestService_CommitIsAuthorScoped(t *testing.T) {
	s := openService(t)
	a := s.Terms().DefaultEditCoordinate()
	authorB, err := s.Identifiers().NidFor(uuid.NewSHA1(uuid.NameSpaceOID, []byte("author-b")))
	require.NoError(t, err)
	b := a
	b.Author = authorB

	c1 := concept(t, s, a, "C1")
	c2 := concept(t, s, a, "C2")
	c3 := concept(t, s, b, "C3")

	rec := commitAll(t, s, a)
	assert.Equal(t, a.Author, rec.Author)
	assert.True(t, rec.Touches(c1))
	assert.True(t, rec.Touches(c2))
	assert.False(t, rec.Touches(c3))
	assert.True(t, s.Coordinator().IsUncommitted(c3))

	latest := ir.LatestCoordinate(a.Path)
	assert.True(t, s.IsConceptActive(c1, latest))
	assert.False(t, s.IsConceptActive(c3, ir.CoordinateAt(a.Path, rec.Time)))
}

func TestService_RevertingALogicGraphRestoresEdge(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	c3 := concept(t, s, ec, "C3")
	isA(t, s, ec, c1, c2)
	first := commitAll(t, s, ec)
	isA(t, s, ec, c1, c3)
	second := commitAll(t, s, ec)
	isA(t, s, ec, c1, c2)
	commitAll(t, s, ec)

	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.LatestCoordinate(ec.Path)))
	assert.Equal(t, []ir.Nid{c3}, parents(s, c1, ir.CoordinateAt(ec.Path, second.Time)))
	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.CoordinateAt(ec.Path, first.Time)))
}

func TestService_CachedTreeIsDroppedOnCommit(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	latest := ir.LatestCoordinate(ec.Path)

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	c3 := concept(t, s, ec, "C3")
	isA(t, s, ec, c1, c2)
	commitAll(t, s, ec)

	before, err := s.Tree(context.Background(), ir.PremiseStated, latest)
	require.NoError(t, err)
	assert.Equal(t, []ir.Nid{c2}, before.Parents(c1))

	isA(t, s, ec, c1, c3)
	commitAll(t, s, ec)

	after, err := s.Tree(context.Background(), ir.PremiseStated, latest)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Greater(t, after.Generation(), before.Generation())
	assert.Equal(t, []ir.Nid{c3}, after.Parents(c1))
}

func TestService_RetireConcept(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	latest := ir.LatestCoordinate(ec.Path)

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	isA(t, s, ec, c1, c2)
	live := commitAll(t, s, ec)

	edit, err := s.RetireConcept(context.Background(), ec, c1)
	require.NoError(t, err)
	require.NoError(t, edit.Wait(context.Background()))
	commitAll(t, s, ec)

	assert.False(t, s.IsConceptActive(c1, latest))
	assert.Equal(t, []ir.Status{ir.StatusInactive}, s.ConceptStates(c1, latest.WithStatuses(ir.ActiveAndInactive)))
	assert.Empty(t, parents(s, c1, latest))
	assert.Empty(t, s.Snapshot(ir.PremiseStated, latest, snapshot.ModeDirect).Children(c2))

	past := ir.CoordinateAt(ec.Path, live.Time)
	assert.True(t, s.IsConceptActive(c1, past))
	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, past))
}

func TestService_RetireAfterPendingAmend(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	latest := ir.LatestCoordinate(ec.Path)

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	c3 := concept(t, s, ec, "C3")
	isA(t, s, ec, c1, c2)
	live := commitAll(t, s, ec)

	isA(t, s, ec, c1, c2, c3)
	edit, err := s.RetireConcept(context.Background(), ec, c1)
	require.NoError(t, err)
	require.NoError(t, edit.Wait(context.Background()))
	commitAll(t, s, ec)

	assert.False(t, s.IsConceptActive(c1, latest))
	assert.Empty(t, parents(s, c1, latest))
	assert.Empty(t, s.Snapshot(ir.PremiseStated, latest, snapshot.ModeDirect).Children(c3))
	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.CoordinateAt(ec.Path, live.Time)))
}

func TestService_UnsupportedNodeKindSkipsOnlyThatSemantic(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := openService(t, WithMetrics(m))
	ec := s.Terms().DefaultEditCoordinate()
	latest := ir.LatestCoordinate(ec.Path)

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	c3 := concept(t, s, ec, "C3")
	role := concept(t, s, ec, "has-part")

	b := ir.NewGraphBuilder()
	b.Necessary(b.And(b.Concept(c2), b.All(role, b.Concept(c3))))
	edit, err := s.SetLogicGraph(context.Background(), ec, c1, ir.PremiseStated, b.Build())
	require.NoError(t, err)
	require.NoError(t, edit.Wait(context.Background()))
	isA(t, s, ec, c3, c2)

	commitAll(t, s, ec)

	assert.Empty(t, parents(s, c1, latest))
	assert.Equal(t, []ir.Nid{c2}, parents(s, c3, latest))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TaxonomyFailuresTotal))
}

func TestService_InvalidLogicGraphFailsCheck(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	c1 := concept(t, s, ec, "C1")

	edit, err := s.SetLogicGraph(context.Background(), ec, c1, ir.PremiseStated, ir.LogicGraph{})
	require.NoError(t, err)
	err = edit.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, commit.IsCheckFailed(err))

	_, err = s.Commit(context.Background(), ec, "")
	assert.True(t, commit.IsCheckFailed(err))
}

func TestService_OnCommitFromReplaysLog(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()

	concept(t, s, ec, "C1")
	commitAll(t, s, ec)
	concept(t, s, ec, "C2")
	commitAll(t, s, ec)

	var seen []int64
	sub, err := s.OnCommitFrom(context.Background(), 1, func(rec ir.CommitRecord) {
		seen = append(seen, rec.Sequence)
	})
	require.NoError(t, err)
	defer sub.Close()

	concept(t, s, ec, "C3")
	commitAll(t, s, ec)
	require.NoError(t, s.Drain(context.Background()))

	assert.Equal(t, []int64{1, 2, 3}, seen)

	recs, err := s.Commits(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Sequence)
}

func TestService_NamesResolve(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	c1 := concept(t, s, ec, "Heart")

	got, ok := s.Concept("Heart")
	require.True(t, ok)
	assert.Equal(t, c1, got)
	assert.Equal(t, "Heart", s.Name(c1))
}

func TestService_ReopenRestoresState(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			ctx := context.Background()

			s := open(t, cfg)
			ec := s.Terms().DefaultEditCoordinate()
			c1 := concept(t, s, ec, "C1")
			c2 := concept(t, s, ec, "C2")
			isA(t, s, ec, c1, c2)
			first := commitAll(t, s, ec)
			c3 := concept(t, s, ec, "C3")
			require.NoError(t, s.Close(ctx))

			clock := testutil.NewDeterministicClock()
			s = open(t, cfg, WithTimeSource(clock.Next))
			defer s.Close(ctx)

			got, ok := s.Concept("C1")
			require.True(t, ok)
			assert.Equal(t, c1, got)
			assert.Equal(t, first.Sequence, s.Coordinator().Sequence())
			assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.LatestCoordinate(ec.Path)))
			assert.True(t, s.Coordinator().IsUncommitted(c3))

			second := commitAll(t, s, ec)
			assert.Equal(t, first.Sequence+1, second.Sequence)
			assert.Greater(t, second.Time, first.Time)
			assert.True(t, second.Touches(c3))
		})
	}
}

func TestService_MemoryBackend(t *testing.T) {
	s := open(t, testConfig(t, config.BackendMemory))
	defer s.Close(context.Background())
	ec := s.Terms().DefaultEditCoordinate()

	c1 := concept(t, s, ec, "C1")
	c2 := concept(t, s, ec, "C2")
	isA(t, s, ec, c1, c2)
	commitAll(t, s, ec)

	assert.Equal(t, []ir.Nid{c2}, parents(s, c1, ir.LatestCoordinate(ec.Path)))
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "cassandra")
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestService_DefineStagesDefinitions(t *testing.T) {
	s := openService(t)
	ec := s.Terms().DefaultEditCoordinate()
	ctx := context.Background()

	edit, err := s.Define(ctx, ec,
		compiler.Definition{Name: "Organ", Parents: []string{"root"}},
		compiler.Definition{Name: "Heart", Parents: []string{"Organ"}, Roles: []compiler.Role{{Type: "site", Filler: "Thorax"}}},
		compiler.Definition{Name: "Thorax", Parents: []string{"root"}},
		compiler.Definition{Name: "site"},
	)
	require.NoError(t, err)
	require.NoError(t, edit.Wait(ctx))
	commitAll(t, s, ec)

	heart, ok := s.Concept("Heart")
	require.True(t, ok)
	organ, _ := s.Concept("Organ")
	site, _ := s.Concept("site")
	thorax, _ := s.Concept("Thorax")
	latest := ir.LatestCoordinate(ec.Path)

	assert.Equal(t, []ir.Nid{organ}, parents(s, heart, latest))
	assert.Equal(t, []ir.Nid{thorax}, s.Destinations(heart, ir.PremiseStated, site, latest))
	snap := s.Snapshot(ir.PremiseStated, latest, snapshot.ModeDirect)
	assert.True(t, snap.IsKindOf(heart, s.Terms().Root))
	assert.Equal(t, []ir.Nid{s.Terms().Root}, snap.Roots())

	_, err = s.Define(ctx, ec, compiler.Definition{Name: "Valve", Parents: []string{"Missing"}})
	require.Error(t, err)
	_, ok = s.Concept("Valve")
	assert.False(t, ok)
}
