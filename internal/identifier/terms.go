package identifier

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/termgraph/internal/ir"
)

// termNamespace scopes the name-based UUIDs of well-known terms.
var termNamespace = uuid.MustParse("6f3c8a52-2d0e-5b1f-9a7e-4c1d2b8e0f31")

// TermUUID returns the deterministic UUID of a well-known term name.
func TermUUID(name string) uuid.UUID {
	return uuid.NewSHA1(termNamespace, []byte(name))
}

// Well-known term names.
const (
	TermIsA                = "is-a"
	TermRoleGroup          = "role-group"
	TermConceptStatus      = "concept-status"
	TermConceptAssemblage  = "concept-assemblage"
	TermStatedAssemblage   = "stated-assemblage"
	TermInferredAssemblage = "inferred-assemblage"
	TermDevelopmentPath    = "development-path"
	TermCoreModule         = "core-module"
	TermUser               = "user"
	TermRoot               = "root"
)

// bootstrap assigns (or, after Load, finds) the nids of the well-known terms.
// Every term is itself a concept.
func (s *Service) bootstrap() error {
	concepts := TermUUID(TermConceptAssemblage)
	conceptAssemblage, err := s.NidFor(concepts)
	if err != nil {
		return err
	}

	fields := []struct {
		name string
		dst  *ir.Nid
	}{
		{TermConceptAssemblage, &s.terms.ConceptAssemblage},
		{TermIsA, &s.terms.IsA},
		{TermRoleGroup, &s.terms.RoleGroup},
		{TermConceptStatus, &s.terms.ConceptStatus},
		{TermStatedAssemblage, &s.terms.StatedAssemblage},
		{TermInferredAssemblage, &s.terms.InferredAssemblage},
		{TermDevelopmentPath, &s.terms.DevelopmentPath},
		{TermCoreModule, &s.terms.CoreModule},
		{TermUser, &s.terms.User},
		{TermRoot, &s.terms.Root},
	}
	for _, f := range fields {
		nid, err := s.NidFor(TermUUID(f.name))
		if err != nil {
			return fmt.Errorf("term %s: %w", f.name, err)
		}
		if _, err := s.Register(nid, conceptAssemblage); err != nil {
			return fmt.Errorf("term %s: %w", f.name, err)
		}
		if err := s.SetName(nid, f.name); err != nil {
			return fmt.Errorf("term %s: %w", f.name, err)
		}
		*f.dst = nid
	}
	return nil
}
