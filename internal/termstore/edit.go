package termstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/termgraph/internal/chronicle"
	"github.com/roach88/termgraph/internal/commit"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/workpool"
)

// Edit is the handle of one edit's scheduled writes.
type Edit struct {
	// Nid is the component the edit is about: the concept for NewConcept and
	// RetireConcept, the logic graph semantic for SetLogicGraph.
	Nid     ir.Nid
	futures []*workpool.Future
}

// Wait blocks until every write of the edit has finished and returns their
// errors, including change-check failures.
func (e Edit) Wait(ctx context.Context) error {
	var errs []error
	for _, f := range e.futures {
		if err := f.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewConcept creates the concept identified by id, or opens a new version
// of it if it already exists, as an uncommitted ACTIVE edit of ec. A
// non-empty name becomes the concept's display name.
func (s *Service) NewConcept(ctx context.Context, ec ir.EditCoordinate, id uuid.UUID, name string) (Edit, error) {
	nid, err := s.ids.NidFor(id)
	if err != nil {
		return Edit{}, fmt.Errorf("new concept %s: %w", id, err)
	}
	if _, err := s.ids.Register(nid, s.terms.ConceptAssemblage); err != nil {
		return Edit{}, fmt.Errorf("new concept %s: %w", id, err)
	}
	if name != "" {
		if err := s.ids.SetName(nid, name); err != nil {
			return Edit{}, fmt.Errorf("new concept %s: %w", id, err)
		}
	}
	return s.conceptVersion(ctx, ec, nid, ir.StatusActive)
}

func (s *Service) conceptVersion(ctx context.Context, ec ir.EditCoordinate, concept ir.Nid, status ir.Status) (Edit, error) {
	seq, err := s.stamps.Intern(ec.UncommittedStamp(status))
	if err != nil {
		return Edit{}, fmt.Errorf("concept %d: %w", concept, err)
	}
	s.reserve()
	fut, err := s.coordinator.AddUncommitted(ctx, commit.Unit{
		Chronology: chronicle.Chronology{Nid: concept, Kind: ir.KindConceptChronology, Assemblage: s.terms.ConceptAssemblage},
		Version:    chronicle.Version{Stamp: seq},
	})
	if err != nil {
		return Edit{}, fmt.Errorf("concept %d: %w", concept, err)
	}
	return Edit{Nid: concept, futures: []*workpool.Future{fut}}, nil
}

// semanticFor returns the logic graph semantic of concept for premise. Its
// UUID is derived from the concept's, so the same semantic is found whether
// or not an earlier version has been written yet.
func (s *Service) semanticFor(concept ir.Nid, premise ir.PremiseType) (ir.Nid, error) {
	if a, ok := s.ids.AssemblageOf(concept); !ok || a != s.terms.ConceptAssemblage {
		return ir.NoNid, fmt.Errorf("%d is not a concept", concept)
	}
	conceptID, ok := s.ids.UUIDFor(concept)
	if !ok {
		return ir.NoNid, fmt.Errorf("%d has no uuid", concept)
	}
	assemblage := s.terms.AssemblageFor(premise)
	semantic, err := s.ids.NidFor(uuid.NewSHA1(conceptID, []byte("logic-graph/"+premise.String())))
	if err != nil {
		return ir.NoNid, err
	}
	if _, err := s.ids.Register(semantic, assemblage); err != nil {
		return ir.NoNid, err
	}
	return semantic, nil
}

// SetLogicGraph stages graph as the new premise logic graph of concept.
func (s *Service) SetLogicGraph(ctx context.Context, ec ir.EditCoordinate, concept ir.Nid, premise ir.PremiseType, graph ir.LogicGraph) (Edit, error) {
	semantic, err := s.semanticFor(concept, premise)
	if err != nil {
		return Edit{}, fmt.Errorf("set %s logic graph of %d: %w", premise, concept, err)
	}
	return s.graphVersion(ctx, ec, concept, semantic, premise, graph, ir.StatusActive)
}

func (s *Service) graphVersion(ctx context.Context, ec ir.EditCoordinate, concept, semantic ir.Nid, premise ir.PremiseType, graph ir.LogicGraph, status ir.Status) (Edit, error) {
	seq, err := s.stamps.Intern(ec.UncommittedStamp(status))
	if err != nil {
		return Edit{}, fmt.Errorf("logic graph %d: %w", semantic, err)
	}
	s.reserve()
	fut, err := s.coordinator.AddUncommitted(ctx, commit.Unit{
		Chronology: chronicle.Chronology{
			Nid:        semantic,
			Kind:       ir.KindSemanticChronology,
			Assemblage: s.terms.AssemblageFor(premise),
			Referenced: concept,
		},
		Version: chronicle.Version{Stamp: seq, Graph: graph},
	})
	if err != nil {
		return Edit{}, fmt.Errorf("logic graph %d: %w", semantic, err)
	}
	return Edit{Nid: semantic, futures: []*workpool.Future{fut}}, nil
}

// RetireConcept stages INACTIVE versions of concept and of each of its
// logic graphs. Once committed, every taxonomy edge the concept asserted is
// retired.
func (s *Service) RetireConcept(ctx context.Context, ec ir.EditCoordinate, concept ir.Nid) (Edit, error) {
	edit, err := s.conceptVersion(ctx, ec, concept, ir.StatusInactive)
	if err != nil {
		return Edit{}, fmt.Errorf("retire %d: %w", concept, err)
	}
	coord := ir.LatestCoordinate(ec.Path)
	for _, premise := range []ir.PremiseType{ir.PremiseStated, ir.PremiseInferred} {
		for _, semantic := range s.chronicles.SemanticsFor(concept, s.terms.AssemblageFor(premise)) {
			chron, ok := s.chronicles.Get(semantic)
			if !ok {
				continue
			}
			latest, ok := chron.Latest(s.stamps, coord)
			if !ok {
				continue
			}
			graphEdit, err := s.graphVersion(ctx, ec, concept, semantic, premise, latest.Graph, ir.StatusInactive)
			if err != nil {
				return Edit{}, fmt.Errorf("retire %d: %w", concept, err)
			}
			edit.futures = append(edit.futures, graphEdit.futures...)
		}
	}
	return edit, nil
}

// Commit commits every pending edit of ec's author. Taxonomy records and
// snapshots reflect the commit when Commit returns.
func (s *Service) Commit(ctx context.Context, ec ir.EditCoordinate, comment string) (ir.CommitRecord, error) {
	return s.coordinator.Commit(ctx, ec, comment)
}

// Cancel reverts every pending edit of ec's author.
func (s *Service) Cancel(ctx context.Context, ec ir.EditCoordinate) (int, error) {
	return s.coordinator.Cancel(ctx, ec)
}

// CancelUnit reverts ec's pending edits of one component.
func (s *Service) CancelUnit(ctx context.Context, ec ir.EditCoordinate, nid ir.Nid) (int, error) {
	return s.coordinator.CancelUnit(ctx, ec, nid)
}
