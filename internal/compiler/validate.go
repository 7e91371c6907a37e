package compiler

import (
	"fmt"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrEmptyName          = "E101" // concept name is blank
	ErrDuplicateConcept   = "E102" // two definitions share a name
	ErrUnknownReference   = "E103" // reference to an undefined concept
	ErrSelfParent         = "E104" // concept lists itself as a parent
	ErrDuplicateParent    = "E105" // parent listed twice
	ErrEmptyGroup         = "E106" // role group without roles
	ErrEmptyDefinition    = "E107" // sufficient definition with nothing in it
	ErrInvalidOperator    = "E108" // unknown feature operator
	ErrParentCycle        = "E109" // parents form a cycle
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Concept string `json:"concept"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Concept, e.Field, e.Message)
}

// Validate checks a set of definitions before they are loaded. A reference
// is satisfied by another definition in the set or by known, which covers
// concepts that already exist in the store. Every problem is returned.
func Validate(defs []Definition, known func(name string) bool) []ValidationError {
	var errs []ValidationError
	defined := make(map[string]bool, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			errs = append(errs, ValidationError{
				Concept: fmt.Sprintf("#%d", i),
				Field:   "name",
				Message: "name is required",
				Code:    ErrEmptyName,
			})
			continue
		}
		if defined[d.Name] {
			errs = append(errs, ValidationError{
				Concept: d.Name,
				Field:   "name",
				Message: "defined more than once",
				Code:    ErrDuplicateConcept,
			})
		}
		defined[d.Name] = true
	}
	resolves := func(name string) bool {
		return defined[name] || (known != nil && known(name))
	}

	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		errs = append(errs, validateDefinition(d, resolves)...)
	}
	for _, w := range AnalyzeCycles(defs) {
		if len(w.Path) == 2 && w.Path[0] == w.Path[1] {
			continue // reported as ErrSelfParent
		}
		errs = append(errs, ValidationError{
			Concept: w.Path[0],
			Field:   "parents",
			Message: w.Message,
			Code:    ErrParentCycle,
		})
	}
	return errs
}

func validateDefinition(d Definition, resolves func(string) bool) []ValidationError {
	var errs []ValidationError
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Concept: d.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	seen := make(map[string]bool)
	for i, p := range d.Parents {
		field := fmt.Sprintf("parents[%d]", i)
		switch {
		case p == d.Name:
			fail(field, ErrSelfParent, "concept cannot be its own parent")
		case seen[p]:
			fail(field, ErrDuplicateParent, "duplicate parent %q", p)
		case !resolves(p):
			fail(field, ErrUnknownReference, "unknown concept %q", p)
		}
		seen[p] = true
	}

	checkRole := func(field string, r Role) {
		if !resolves(r.Type) {
			fail(field+".type", ErrUnknownReference, "unknown role type %q", r.Type)
		}
		if !resolves(r.Filler) {
			fail(field+".filler", ErrUnknownReference, "unknown concept %q", r.Filler)
		}
	}
	for i, r := range d.Roles {
		checkRole(fmt.Sprintf("roles[%d]", i), r)
	}
	for i, g := range d.Groups {
		if len(g) == 0 {
			fail(fmt.Sprintf("groups[%d]", i), ErrEmptyGroup, "role group has no roles")
		}
		for j, r := range g {
			checkRole(fmt.Sprintf("groups[%d][%d]", i, j), r)
		}
	}
	for i, f := range d.Features {
		field := fmt.Sprintf("features[%d]", i)
		if !resolves(f.Type) {
			fail(field+".type", ErrUnknownReference, "unknown feature type %q", f.Type)
		}
		if _, err := ParseOperator(f.Op); err != nil {
			fail(field+".op", ErrInvalidOperator, "%v", err)
		}
	}

	if d.Defined && len(d.Parents)+len(d.Roles)+len(d.Groups)+len(d.Features) == 0 {
		fail("defined", ErrEmptyDefinition, "a defined concept needs at least one parent or restriction")
	}
	return errs
}
