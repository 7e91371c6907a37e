package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "termgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: data
backend: badger
spine_size: 4096
tree_mode: direct
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, 4096, cfg.SpineSize)
	assert.Equal(t, "direct", cfg.TreeMode)
	assert.Equal(t, 64, cfg.WritePermits, "unset keys keep their default")
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "data_dirs: x\n"},
		{"unknown backend", "backend: postgres\n"},
		{"spine size not a power of two", "spine_size: 1000\n"},
		{"spine size too small", "spine_size: 32\n"},
		{"no permits", "write_permits: 0\n"},
		{"unknown tree mode", "tree_mode: forest\n"},
		{"unknown log level", "log_level: loud\n"},
		{"empty data dir", "data_dir: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "")
			assert.Error(t, err)
		})
	}
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
