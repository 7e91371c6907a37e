package termstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/termgraph/internal/compiler"
	"github.com/roach88/termgraph/internal/ir"
)

// fixtureNamespace scopes the name-based UUIDs of concepts introduced by
// definitions.
var fixtureNamespace = uuid.MustParse("0b8d4f6e-7a21-5c39-8e4d-93f2a1c6b570")

// ConceptUUID returns the UUID a definition named name creates its concept
// under.
func ConceptUUID(name string) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(name))
}

// Define stages defs as uncommitted edits of ec. Names no concept carries
// yet become new concepts; every definition then replaces the concept's
// stated logic graph. Nothing is staged when validation fails.
func (s *Service) Define(ctx context.Context, ec ir.EditCoordinate, defs ...compiler.Definition) (Edit, error) {
	known := func(name string) bool {
		_, ok := s.Concept(name)
		return ok
	}
	if problems := compiler.Validate(defs, known); len(problems) > 0 {
		errs := make([]error, len(problems))
		for i, p := range problems {
			errs[i] = p
		}
		return Edit{}, fmt.Errorf("define: %w", errors.Join(errs...))
	}

	var all Edit
	for _, d := range defs {
		if _, ok := s.Concept(d.Name); ok {
			continue
		}
		edit, err := s.NewConcept(ctx, ec, ConceptUUID(d.Name), d.Name)
		if err != nil {
			return all, fmt.Errorf("define %s: %w", d.Name, err)
		}
		all.futures = append(all.futures, edit.futures...)
	}
	for _, d := range defs {
		concept, _ := s.Concept(d.Name)
		graph, err := compiler.BuildGraph(d, s.Concept, s.terms.RoleGroup)
		if err != nil {
			return all, fmt.Errorf("define %s: %w", d.Name, err)
		}
		edit, err := s.SetLogicGraph(ctx, ec, concept, ir.PremiseStated, graph)
		if err != nil {
			return all, fmt.Errorf("define %s: %w", d.Name, err)
		}
		all.futures = append(all.futures, edit.futures...)
	}
	s.logger.Debug("definitions staged", "count", len(defs), "author", ec.Author)
	return all, nil
}
