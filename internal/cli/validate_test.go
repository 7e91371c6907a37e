package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Offline(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"anatomy.cue": anatomy})

	out, err := execute(t, "validate", "--offline", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 5 definition(s) valid")
}

func TestValidate_ResolvesAgainstStore(t *testing.T) {
	cfg := loaded(t)
	dir := writeDefinitions(t, map[string]string{"lung.cue": "package anatomy\nconcept: Lung: parents: [\"Organ\"]\n"})

	_, err := execute(t, "validate", "--offline", dir)
	require.Error(t, err)

	out, err := execute(t, "validate", "--config", cfg, "--format", "json", dir)
	require.NoError(t, err)
	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.Definitions)
}

func TestValidate_Problems(t *testing.T) {
	dir := writeDefinitions(t, map[string]string{"bad.cue": `
package anatomy

concept: A: parents: ["B"]
concept: B: parents: ["A"]
concept: C: parents: ["Missing"]
`})

	out, err := execute(t, "validate", "--offline", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, `[E103] C.parents[0]: unknown concept "Missing"`)
	assert.Contains(t, out, "[E109]")

	out, err = execute(t, "validate", "--offline", "--format", "json", dir)
	require.Error(t, err)
	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}

func TestValidate_NonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", "--offline", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidate_EmptyDirectory(t *testing.T) {
	_, err := execute(t, "validate", "--offline", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}
