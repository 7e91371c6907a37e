package cli

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/ir"
)

func TestQuery_Relations(t *testing.T) {
	cfg := loaded(t)

	out, err := execute(t, "parents", "--config", cfg, "Heart")
	require.NoError(t, err)
	assert.Equal(t, "Organ\n", out)

	out, err = execute(t, "children", "--config", cfg, "root")
	require.NoError(t, err)
	assert.Equal(t, "Organ\nRegion\nsite\n", out)

	var list ConceptList
	out, err = execute(t, "children", "--config", cfg, "--format", "json", "Region")
	require.NoError(t, err)
	decode(t, out, &list)
	assert.Equal(t, ConceptList{Concept: "Region", Relation: "children", Concepts: []string{"Thorax"}}, list)

	out, err = execute(t, "roots", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "root\n", out)
}

func TestQuery_KindOf(t *testing.T) {
	cfg := loaded(t)

	tests := []struct {
		concept, ancestor string
		want              bool
	}{
		{"Heart", "root", true},
		{"Heart", "Organ", true},
		{"Heart", "Heart", true},
		{"Heart", "Region", false},
		{"root", "Heart", false},
	}
	for _, tt := range tests {
		t.Run(tt.concept+"/"+tt.ancestor, func(t *testing.T) {
			var got KindOfOutput
			out, err := execute(t, "kindof", "--config", cfg, "--format", "json", tt.concept, tt.ancestor)
			require.NoError(t, err)
			decode(t, out, &got)
			assert.Equal(t, tt.want, got.Holds)
		})
	}
}

func TestQuery_Tree(t *testing.T) {
	cfg := loaded(t)

	out, err := execute(t, "tree", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "root\n  Organ\n    Heart\n  Region\n    Thorax\n  site\n", out)
}

func TestQuery_At(t *testing.T) {
	cfg := loaded(t)
	dir := writeDefinitions(t, map[string]string{"move.cue": "package anatomy\nconcept: Heart: parents: [\"Region\"]\n"})
	_, err := execute(t, "load", "--config", cfg, dir)
	require.NoError(t, err)

	var recs []ir.CommitRecord
	out, err := execute(t, "commits", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	decode(t, out, &recs)
	require.Len(t, recs, 2)

	at := func(r ir.CommitRecord) string { return strconv.FormatInt(r.Time, 10) }

	out, err = execute(t, "parents", "--config", cfg, "--at", at(recs[0]), "Heart")
	require.NoError(t, err)
	assert.Equal(t, "Organ\n", out)

	out, err = execute(t, "parents", "--config", cfg, "--at", at(recs[1]), "Heart")
	require.NoError(t, err)
	assert.Equal(t, "Region\n", out)

	out, err = execute(t, "parents", "--config", cfg, "Heart")
	require.NoError(t, err)
	assert.Equal(t, "Region\n", out)

	out, err = execute(t, "commits", "--config", cfg, "--from", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2\t"+at(recs[1])+"\tuser\t")
	assert.NotContains(t, out, "1\t"+at(recs[0]))
}

func TestQuery_Errors(t *testing.T) {
	cfg := loaded(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown concept", []string{"parents", "Spleen"}, ErrCodeUnknown},
		{"unknown ancestor", []string{"kindof", "Heart", "Spleen"}, ErrCodeUnknown},
		{"bad premise", []string{"roots", "--premise", "both"}, ErrCodeBadArgument},
		{"negative time", []string{"tree", "--at=-5"}, ErrCodeBadArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(tt.args, "--config", cfg)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
