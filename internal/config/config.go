// Package config loads codescope configuration from .codescope.toml and the
// environment, and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// FileName is the per-project configuration file looked up in the root
	FileName = ".codescope.toml"

	// Environment overrides
	EnvRoot     = "CODESCOPE_ROOT"
	EnvLogLevel = "CODESCOPE_LOG_LEVEL"
)

// Duration is a time.Duration that decodes from TOML strings such as "200ms"
type Duration struct {
	time.Duration
}

// D wraps a time.Duration
func D(d time.Duration) Duration { return Duration{Duration: d} }

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete codescope configuration
type Config struct {
	DefaultRoot string `toml:"default_root"`
	LogLevel    string `toml:"log_level"`

	Index     IndexConfig     `toml:"index"`
	Search    SearchConfig    `toml:"search"`
	Hybrid    HybridConfig    `toml:"hybrid"`
	Semantic  SemanticConfig  `toml:"semantic"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Git       GitConfig       `toml:"git"`
	Daemon    DaemonConfig    `toml:"daemon"`
	Smells    SmellsConfig    `toml:"smells"`
}

// IndexConfig controls the corpus walker and symbol indexing
type IndexConfig struct {
	MaxFileSize      int64    `toml:"max_file_size"`
	Exclude          []string `toml:"exclude"`
	RespectGitignore bool     `toml:"respect_gitignore"`
	Workers          int      `toml:"workers"`
	BatchSize        int      `toml:"batch_size"`
}

// SearchConfig holds defaults shared by search commands
type SearchConfig struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
}

// HybridConfig holds fusion weights and the per-engine timeout
type HybridConfig struct {
	FuzzyWeight    float64  `toml:"fuzzy_weight"`
	SemanticWeight float64  `toml:"semantic_weight"`
	SymbolWeight   float64  `toml:"symbol_weight"`
	EngineTimeout  Duration `toml:"engine_timeout"`
}

// SemanticConfig controls chunking for embedding
type SemanticConfig struct {
	ChunkLines   int `toml:"chunk_lines"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider  string   `toml:"provider"`
	Model     string   `toml:"model"`
	BaseURL   string   `toml:"base_url"`
	CacheSize int      `toml:"cache_size"`
	StorePath string   `toml:"store_path"`
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"` // requests per second, 0 = unlimited
}

// GitConfig tunes the git backend
type GitConfig struct {
	Binary  string   `toml:"binary"`
	Timeout Duration `toml:"timeout"`
}

// DaemonConfig tunes the long-running server
type DaemonConfig struct {
	Bind              string   `toml:"bind"`
	Debounce          Duration `toml:"debounce"`
	WriterLockTimeout Duration `toml:"writer_lock_timeout"`
	DrainTimeout      Duration `toml:"drain_timeout"`
	MaxRestarts       int      `toml:"max_restarts"`
}

// SmellsConfig holds code smell thresholds
type SmellsConfig struct {
	MaxFunctionLines int `toml:"max_function_lines"`
	MaxParameters    int `toml:"max_parameters"`
	MaxNesting       int `toml:"max_nesting"`
	MaxReturns       int `toml:"max_returns"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Index: IndexConfig{
			MaxFileSize:      1 << 20,
			RespectGitignore: true,
			BatchSize:        32,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     1000,
		},
		Hybrid: HybridConfig{
			FuzzyWeight:    1.0 / 3,
			SemanticWeight: 1.0 / 3,
			SymbolWeight:   1.0 / 3,
			EngineTimeout:  D(30 * time.Second),
		},
		Semantic: SemanticConfig{
			ChunkLines:   40,
			ChunkOverlap: 10,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			Timeout:   D(30 * time.Second),
		},
		Git: GitConfig{
			Binary:  "git",
			Timeout: D(30 * time.Second),
		},
		Daemon: DaemonConfig{
			Bind:              "127.0.0.1:7477",
			Debounce:          D(200 * time.Millisecond),
			WriterLockTimeout: D(10 * time.Second),
			DrainTimeout:      D(5 * time.Second),
			MaxRestarts:       3,
		},
		Smells: SmellsConfig{
			MaxFunctionLines: 60,
			MaxParameters:    5,
			MaxNesting:       4,
			MaxReturns:       6,
		},
	}
}

// Load reads the configuration file at path on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForRoot loads FileName from root when it exists
func LoadForRoot(root string) (*Config, error) {
	if root == "" {
		return Load("")
	}
	return Load(filepath.Join(root, FileName))
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvRoot)); v != "" {
		c.DefaultRoot = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if c.Index.MaxFileSize <= 0 {
		return fmt.Errorf("index.max_file_size must be positive, got %d", c.Index.MaxFileSize)
	}
	if c.Semantic.ChunkLines <= 0 {
		return fmt.Errorf("semantic.chunk_lines must be positive, got %d", c.Semantic.ChunkLines)
	}
	if c.Semantic.ChunkOverlap < 0 || c.Semantic.ChunkOverlap >= c.Semantic.ChunkLines {
		return fmt.Errorf("semantic.chunk_overlap must be in [0, chunk_lines), got %d", c.Semantic.ChunkOverlap)
	}
	w := c.Hybrid
	if w.FuzzyWeight < 0 || w.SemanticWeight < 0 || w.SymbolWeight < 0 {
		return errors.New("hybrid weights must be non-negative")
	}
	if w.FuzzyWeight+w.SemanticWeight+w.SymbolWeight == 0 {
		return errors.New("hybrid weights must not all be zero")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ResolveRoot picks the root directory: explicit flag, then configured
// default, then the current directory. The result is absolute.
func (c *Config) ResolveRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = c.DefaultRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}
	return filepath.Abs(root)
}
