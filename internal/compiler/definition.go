// Package compiler turns concept definitions written in CUE (or decoded from
// YAML) into logic graphs.
//
// A definition file holds a top-level concept struct:
//
//	concept: Heart: {
//		parents: ["Organ"]
//		roles: [{type: "finding-site", filler: "Thorax"}]
//		groups: [[{type: "part-of", filler: "Circulatory-system"}]]
//		features: [{type: "chambers", op: "=", value: 4}]
//		defined: false
//	}
//
// References are concept names and are resolved when the graph is built.
package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/termgraph/internal/ir"
)

// Definition is one concept as written in a fixture.
type Definition struct {
	Name     string    `json:"name" yaml:"name"`
	Parents  []string  `json:"parents,omitempty" yaml:"parents,omitempty"`
	Roles    []Role    `json:"roles,omitempty" yaml:"roles,omitempty"`
	Groups   [][]Role  `json:"groups,omitempty" yaml:"groups,omitempty"`
	Features []Feature `json:"features,omitempty" yaml:"features,omitempty"`

	// Defined makes the definition sufficient instead of primitive.
	Defined bool `json:"defined,omitempty" yaml:"defined,omitempty"`
}

// Role is an existential restriction: some Type whose value is Filler.
type Role struct {
	Type   string `json:"type" yaml:"type"`
	Filler string `json:"filler" yaml:"filler"`
}

// Feature is a concrete-domain restriction.
type Feature struct {
	Type  string `json:"type" yaml:"type"`
	Op    string `json:"op,omitempty" yaml:"op,omitempty"`
	Value string `json:"value" yaml:"value"`
}

// References returns every concept name the definition mentions, sorted and
// without duplicates.
func (d Definition) References() []string {
	refs := slices.Clone(d.Parents)
	for _, r := range d.Roles {
		refs = append(refs, r.Type, r.Filler)
	}
	for _, g := range d.Groups {
		for _, r := range g {
			refs = append(refs, r.Type, r.Filler)
		}
	}
	for _, f := range d.Features {
		refs = append(refs, f.Type)
	}
	slices.Sort(refs)
	return slices.Compact(refs)
}

// CompileFile compiles every definition under the top-level concept field,
// in label order. It keeps going after a bad definition and returns every
// error found.
func CompileFile(v cue.Value) ([]Definition, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	conceptsVal := v.LookupPath(cue.ParsePath("concept"))
	if !conceptsVal.Exists() {
		return nil, nil
	}
	iter, err := conceptsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}
	var (
		defs []Definition
		errs []error
	)
	for iter.Next() {
		def, err := CompileDefinition(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, *def)
	}
	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return defs, errs
}

// CompileDefinition parses one concept struct. The concept's name is the
// struct's label.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`concept: Heart: {parents: ["Organ"]}`)
//	def, err := CompileDefinition(v.LookupPath(cue.ParsePath("concept.Heart")))
func CompileDefinition(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = unquote(labels[len(labels)-1].String())
	}
	if def.Name == "" {
		return nil, &CompileError{Field: "concept", Message: "concept needs a name", Pos: v.Pos()}
	}

	var err error
	if def.Parents, err = stringList(v, "parents"); err != nil {
		return nil, err
	}
	if def.Roles, err = roleList(v.LookupPath(cue.ParsePath("roles")), "roles"); err != nil {
		return nil, err
	}

	groupsVal := v.LookupPath(cue.ParsePath("groups"))
	if groupsVal.Exists() {
		iter, err := groupsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			group, err := roleList(iter.Value(), fmt.Sprintf("groups[%d]", i))
			if err != nil {
				return nil, err
			}
			def.Groups = append(def.Groups, group)
		}
	}

	if def.Features, err = featureList(v); err != nil {
		return nil, err
	}

	definedVal := v.LookupPath(cue.ParsePath("defined"))
	if definedVal.Exists() {
		if def.Defined, err = definedVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return def, nil
}

func unquote(label string) string {
	if s, err := strconv.Unquote(label); err == nil {
		return s
	}
	return label
}

func stringList(v cue.Value, field string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "entries must be concept names", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func roleList(v cue.Value, field string) ([]Role, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Role
	for iter.Next() {
		item := iter.Value()
		typ, err := requiredString(item, "type", field)
		if err != nil {
			return nil, err
		}
		filler, err := requiredString(item, "filler", field)
		if err != nil {
			return nil, err
		}
		out = append(out, Role{Type: typ, Filler: filler})
	}
	return out, nil
}

func featureList(v cue.Value) ([]Feature, error) {
	val := v.LookupPath(cue.ParsePath("features"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Feature
	for iter.Next() {
		item := iter.Value()
		typ, err := requiredString(item, "type", "features")
		if err != nil {
			return nil, err
		}
		f := Feature{Type: typ, Op: "="}
		if opVal := item.LookupPath(cue.ParsePath("op")); opVal.Exists() {
			if f.Op, err = opVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if _, err := ParseOperator(f.Op); err != nil {
			return nil, &CompileError{Field: "features.op", Message: err.Error(), Pos: item.Pos()}
		}
		if f.Value, err = literal(item.LookupPath(cue.ParsePath("value"))); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// literal renders a feature value. Floats are rejected so that literals
// compare exactly.
func literal(v cue.Value) (string, error) {
	if !v.Exists() {
		return "", &CompileError{Field: "features.value", Message: "value is required", Pos: v.Pos()}
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(n, 10), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatBool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{Field: "features.value", Message: "float values are not supported, use a string or int", Pos: v.Pos()}
	default:
		return "", &CompileError{
			Field:   "features.value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func requiredString(v cue.Value, name, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// ParseOperator converts a feature operator symbol.
func ParseOperator(op string) (ir.Operator, error) {
	switch op {
	case "=", "":
		return ir.OpEqual, nil
	case "<":
		return ir.OpLess, nil
	case "<=":
		return ir.OpLessOrEqual, nil
	case ">":
		return ir.OpGreater, nil
	case ">=":
		return ir.OpGreaterOrEqual, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", op)
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
