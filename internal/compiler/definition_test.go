package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileDefinition(t *testing.T) {
	v := compileString(t, `
		concept: Heart: {
			parents: ["Organ", "Muscle"]
			roles: [{type: "finding-site", filler: "Thorax"}]
			groups: [[{type: "part-of", filler: "Circulatory-system"}]]
			features: [{type: "chambers", value: 4}, {type: "shape", op: "=", value: "cone"}]
		}
	`)

	def, err := CompileDefinition(v.LookupPath(cue.ParsePath("concept.Heart")))
	require.NoError(t, err)

	assert.Equal(t, "Heart", def.Name)
	assert.Equal(t, []string{"Organ", "Muscle"}, def.Parents)
	assert.Equal(t, []Role{{Type: "finding-site", Filler: "Thorax"}}, def.Roles)
	assert.Equal(t, [][]Role{{{Type: "part-of", Filler: "Circulatory-system"}}}, def.Groups)
	assert.Equal(t, []Feature{
		{Type: "chambers", Op: "=", Value: "4"},
		{Type: "shape", Op: "=", Value: "cone"},
	}, def.Features)
	assert.False(t, def.Defined)
}

func TestCompileDefinition_QuotedLabel(t *testing.T) {
	v := compileString(t, `concept: "Heart valve": {parents: ["Heart"], defined: true}`)

	defs, errs := CompileFile(v)
	require.Empty(t, errs)
	require.Len(t, defs, 1)
	assert.Equal(t, "Heart valve", defs[0].Name)
	assert.True(t, defs[0].Defined)
}

func TestCompileDefinition_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"role without filler", `concept: A: roles: [{type: "r"}]`, "roles.filler"},
		{"feature without value", `concept: A: features: [{type: "f"}]`, "features.value"},
		{"float feature", `concept: A: features: [{type: "f", value: 1.5}]`, "features.value"},
		{"bad operator", `concept: A: features: [{type: "f", op: "~", value: 1}]`, "features.op"},
		{"non-string parent", `concept: A: parents: [1]`, "parents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compileString(t, tt.src)
			_, err := CompileDefinition(v.LookupPath(cue.ParsePath("concept.A")))
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileFile_CollectsErrorsAndSorts(t *testing.T) {
	v := compileString(t, `
		concept: Zeta: parents: ["Alpha"]
		concept: Bad: roles: [{type: "r"}]
		concept: Alpha: {}
	`)

	defs, errs := CompileFile(v)
	assert.Len(t, errs, 1)
	require.Len(t, defs, 2)
	assert.Equal(t, "Alpha", defs[0].Name)
	assert.Equal(t, "Zeta", defs[1].Name)
}

func TestCompileFile_NoConcepts(t *testing.T) {
	defs, errs := CompileFile(compileString(t, `other: 1`))
	assert.Empty(t, defs)
	assert.Empty(t, errs)
}

func TestDefinition_References(t *testing.T) {
	def := Definition{
		Name:     "Heart",
		Parents:  []string{"Organ"},
		Roles:    []Role{{Type: "site", Filler: "Thorax"}},
		Groups:   [][]Role{{{Type: "site", Filler: "Organ"}}},
		Features: []Feature{{Type: "chambers", Value: "4"}},
	}
	assert.Equal(t, []string{"Organ", "Thorax", "chambers", "site"}, def.References())
}

func TestParseOperator(t *testing.T) {
	for _, op := range []string{"", "=", "<", "<=", ">", ">="} {
		_, err := ParseOperator(op)
		assert.NoError(t, err, op)
	}
	_, err := ParseOperator("!=")
	assert.Error(t, err)
}
