package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const anatomy = `
package anatomy

concept: Organ: parents: ["root"]
concept: Region: parents: ["root"]
concept: Thorax: parents: ["Region"]
concept: site: parents: ["root"]
concept: Heart: {
	parents: ["Organ"]
	roles: [{type: "site", filler: "Thorax"}]
}
`

// writeConfig writes a configuration whose data directory lives in a fresh
// temporary directory and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "termgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: data\nbackend: sqlite\nworkers: 2\nlog_level: error\n"), 0o644))
	return path
}

func writeDefinitions(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// loaded returns a config path whose store holds the anatomy definitions.
func loaded(t *testing.T) string {
	t.Helper()
	cfg := writeConfig(t)
	_, err := execute(t, "load", "--config", cfg, writeDefinitions(t, map[string]string{"anatomy.cue": anatomy}))
	require.NoError(t, err)
	return cfg
}
