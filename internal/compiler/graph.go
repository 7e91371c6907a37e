package compiler

import (
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// Resolver maps a concept name to its nid.
type Resolver func(name string) (ir.Nid, bool)

// UnresolvedError reports a name no concept carries.
type UnresolvedError struct {
	Concept string
	Name    string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: unknown concept %q", e.Concept, e.Name)
}

// BuildGraph turns def into a logic graph. Parents, roles, role groups and
// features are conjoined under one necessary set, or one sufficient set when
// the definition is Defined. roleGroup is the nid of the role-group type.
func BuildGraph(def Definition, resolve Resolver, roleGroup ir.Nid) (ir.LogicGraph, error) {
	b := ir.NewGraphBuilder()
	lookup := func(name string) (ir.Nid, error) {
		nid, ok := resolve(name)
		if !ok {
			return ir.NoNid, &UnresolvedError{Concept: def.Name, Name: name}
		}
		return nid, nil
	}
	role := func(r Role) (int, error) {
		typ, err := lookup(r.Type)
		if err != nil {
			return 0, err
		}
		filler, err := lookup(r.Filler)
		if err != nil {
			return 0, err
		}
		return b.Some(typ, b.Concept(filler)), nil
	}

	var terms []int
	for _, p := range def.Parents {
		nid, err := lookup(p)
		if err != nil {
			return ir.LogicGraph{}, err
		}
		terms = append(terms, b.Concept(nid))
	}
	for _, r := range def.Roles {
		i, err := role(r)
		if err != nil {
			return ir.LogicGraph{}, err
		}
		terms = append(terms, i)
	}
	for _, g := range def.Groups {
		roles := make([]int, 0, len(g))
		for _, r := range g {
			i, err := role(r)
			if err != nil {
				return ir.LogicGraph{}, err
			}
			roles = append(roles, i)
		}
		terms = append(terms, b.Group(roleGroup, roles...))
	}
	for _, f := range def.Features {
		typ, err := lookup(f.Type)
		if err != nil {
			return ir.LogicGraph{}, err
		}
		op, err := ParseOperator(f.Op)
		if err != nil {
			return ir.LogicGraph{}, fmt.Errorf("%s: %w", def.Name, err)
		}
		terms = append(terms, b.Feature(typ, op, f.Value))
	}

	if def.Defined {
		b.Sufficient(b.And(terms...))
	} else {
		b.Necessary(b.And(terms...))
	}
	return b.Build(), nil
}
