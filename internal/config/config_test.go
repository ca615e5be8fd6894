package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200*time.Millisecond, cfg.Daemon.Debounce.Duration)
	assert.InDelta(t, 1.0, cfg.Hybrid.FuzzyWeight+cfg.Hybrid.SemanticWeight+cfg.Hybrid.SymbolWeight, 1e-9)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvRoot, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Semantic, cfg.Semantic)
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv(EnvRoot, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), FileName)
	content := `
log_level = "debug"

[semantic]
chunk_lines = 20
chunk_overlap = 5

[hybrid]
fuzzy_weight = 0.5
semantic_weight = 0.25
symbol_weight = 0.25

[daemon]
debounce = "50ms"

[index]
max_file_size = 2048
exclude = ["**/*.gen.go"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20, cfg.Semantic.ChunkLines)
	assert.Equal(t, 5, cfg.Semantic.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.Hybrid.FuzzyWeight)
	assert.Equal(t, int64(2048), cfg.Index.MaxFileSize)
	assert.Equal(t, []string{"**/*.gen.go"}, cfg.Index.Exclude)
	assert.Equal(t, 50*time.Millisecond, cfg.Daemon.Debounce.Duration)
	assert.Equal(t, 10*time.Second, cfg.Daemon.WriterLockTimeout.Duration)
	// untouched sections keep defaults
	assert.Equal(t, Default().Smells, cfg.Smells)
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvRoot, root)
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, root, cfg.DefaultRoot)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidOverlap(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[semantic]\nchunk_lines = 10\nchunk_overlap = 10\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveRoot_Precedence(t *testing.T) {
	flagRoot := t.TempDir()
	cfgRoot := t.TempDir()

	cfg := Default()
	cfg.DefaultRoot = cfgRoot

	got, err := cfg.ResolveRoot(flagRoot)
	require.NoError(t, err)
	assert.Equal(t, flagRoot, got)

	got, err = cfg.ResolveRoot("")
	require.NoError(t, err)
	assert.Equal(t, cfgRoot, got)

	cfg.DefaultRoot = ""
	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err = cfg.ResolveRoot("")
	require.NoError(t, err)
	assert.Equal(t, wd, got)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
