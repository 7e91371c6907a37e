package termstore

import (
	"context"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/notify"
	"github.com/roach88/termgraph/internal/snapshot"
	"github.com/roach88/termgraph/internal/taxonomy"
)

// Snapshot returns a taxonomy view of premise at coord using mode.
func (s *Service) Snapshot(premise ir.PremiseType, coord ir.Coordinate, mode snapshot.Mode) snapshot.Snapshot {
	return s.snapshots.Snapshot(premise, coord, mode)
}

// Tree returns the materialized taxonomy of premise at coord, building it if
// needed.
func (s *Service) Tree(ctx context.Context, premise ir.PremiseType, coord ir.Coordinate) (*snapshot.Tree, error) {
	return s.snapshots.Tree(ctx, premise, coord)
}

// Refresh drops every cached snapshot.
func (s *Service) Refresh(ctx context.Context) {
	s.snapshots.Invalidate(ctx)
}

// Destinations returns the concepts concept points at through roleType
// edges of premise at coord, for example the filler of a role.
func (s *Service) Destinations(concept ir.Nid, premise ir.PremiseType, roleType ir.Nid, coord ir.Coordinate) []ir.Nid {
	rec, ok := s.records.Get(concept)
	if !ok {
		return nil
	}
	return rec.DestinationNidsOfType([]ir.Nid{roleType}, taxonomy.Parents(premise), s.stamps, coord)
}

// IsConceptActive reports whether the concept's status at coord is ACTIVE.
// Concepts without a committed version are not active.
func (s *Service) IsConceptActive(concept ir.Nid, coord ir.Coordinate) bool {
	rec, ok := s.records.Get(concept)
	if !ok {
		return false
	}
	return rec.IsConceptActive(concept, s.terms.ConceptStatus, s.stamps, coord)
}

// ConceptStates returns every status the concept holds at coord. More than
// one status means contradictory edits on different paths or modules.
func (s *Service) ConceptStates(concept ir.Nid, coord ir.Coordinate) []ir.Status {
	rec, ok := s.records.Get(concept)
	if !ok {
		return nil
	}
	return rec.ConceptStates(concept, s.terms.ConceptStatus, s.stamps, coord)
}

// LogicGraph returns the premise logic graph of concept that coord selects.
func (s *Service) LogicGraph(concept ir.Nid, premise ir.PremiseType, coord ir.Coordinate) (ir.LogicGraph, bool) {
	for _, semantic := range s.chronicles.SemanticsFor(concept, s.terms.AssemblageFor(premise)) {
		chron, ok := s.chronicles.Get(semantic)
		if !ok {
			continue
		}
		v, ok := chron.Latest(s.stamps, coord)
		if !ok {
			continue
		}
		if st, ok := s.stamps.Stamp(v.Stamp); ok && coord.AllowsStatus(st.Status) {
			return v.Graph, true
		}
	}
	return ir.LogicGraph{}, false
}

// Concept resolves a display name to a concept nid.
func (s *Service) Concept(name string) (ir.Nid, bool) {
	return s.ids.NidByName(name)
}

// Name returns the display name of nid.
func (s *Service) Name(nid ir.Nid) string {
	return s.ids.Name(nid)
}

// Commits returns every logged commit with sequence >= from.
func (s *Service) Commits(ctx context.Context, from int64) ([]ir.CommitRecord, error) {
	return s.db.ReadCommitRecords(ctx, from)
}

// OnCommit registers fn for every future commit.
func (s *Service) OnCommit(fn func(ir.CommitRecord)) *notify.Subscription[ir.CommitRecord] {
	return s.coordinator.OnCommit(fn)
}

// OnCommitFrom registers fn after replaying logged commits from sequence from.
func (s *Service) OnCommitFrom(ctx context.Context, from int64, fn func(ir.CommitRecord)) (*notify.Subscription[ir.CommitRecord], error) {
	return s.coordinator.OnCommitFrom(ctx, from, fn)
}

// OnRefresh registers fn to run after every snapshot cache invalidation.
func (s *Service) OnRefresh(fn func(generation uint64)) *notify.Subscription[uint64] {
	return s.snapshots.OnRefresh(fn)
}

// Drain waits for scheduled writes and listener deliveries.
func (s *Service) Drain(ctx context.Context) error {
	if err := s.coordinator.Drain(ctx); err != nil {
		return err
	}
	return s.snapshots.Drain(ctx)
}
