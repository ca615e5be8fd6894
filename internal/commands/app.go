package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dshills/codescope/internal/chunker"
	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/internal/git"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/internal/parser"
	"github.com/dshills/codescope/internal/query"
	"github.com/dshills/codescope/internal/searcher"
	"github.com/dshills/codescope/internal/storage"
	"github.com/dshills/codescope/internal/walker"
	"github.com/dshills/codescope/pkg/types"
)

// Options configures an App
type Options struct {
	Config *config.Config // nil means config.Default()
	Logger *slog.Logger

	// Embedder replaces the provider chosen from the configuration and
	// the environment
	Embedder embedder.Embedder

	// Git replaces the git binary backend
	Git git.Backend

	// CacheQueries memoizes semantic, hybrid and find-similar responses.
	// Long-running servers turn it on.
	CacheQueries bool
}

// App wires the engines, analyzers and indexers behind the commands. It is
// safe for concurrent use.
type App struct {
	cfg *config.Config
	log *slog.Logger

	idx  *indexer.Indexer // walks and parses
	scan *indexer.Indexer // walks only

	text     searcher.Engine
	symbol   searcher.Engine
	fuzzy    searcher.Engine
	semantic searcher.Engine // nil without an embedding provider
	hybrid   searcher.Engine
	similar  searcher.Engine
	query    *query.Executor
	git      *git.Engine

	provider embedder.Embedder
	store    *storage.Store
	embedErr error // why semantic search is unavailable
	caches   []*searcher.CachingEngine
}

// New builds an App. A provider that cannot be created only disables
// semantic search; a vector store that cannot be opened is an error.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	w, err := walker.New(walker.Options{
		MaxFileSize:      cfg.Index.MaxFileSize,
		Exclude:          cfg.Index.Exclude,
		RespectGitignore: cfg.Index.RespectGitignore,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	reg := parser.NewRegistry()
	reg.SetLimits(cfg.Index.Workers, cfg.Index.BatchSize)

	a := &App{cfg: cfg, log: log}
	if a.idx, err = indexer.New(indexer.Config{Walker: w, Registry: reg, Logger: log}); err != nil {
		return nil, err
	}
	if a.scan, err = indexer.New(indexer.Config{Walker: w, Registry: reg, Logger: log, SkipParse: true}); err != nil {
		return nil, err
	}

	a.text = searcher.NewTextEngine()
	a.symbol = searcher.NewSymbolEngine()
	a.fuzzy = searcher.NewFuzzyEngine()

	sem, err := a.semanticEngine(ctx, opts)
	if err != nil {
		return nil, err
	}
	if sem != nil {
		a.semantic = sem
	}
	a.similar = searcher.NewSimilarEngine(sem, log)

	hybrid, err := searcher.NewHybridEngine(searcher.HybridConfig{
		Fuzzy:    a.fuzzy,
		Semantic: a.semantic,
		Symbol:   a.symbol,
		Weights: searcher.Weights{
			Fuzzy:    cfg.Hybrid.FuzzyWeight,
			Semantic: cfg.Hybrid.SemanticWeight,
			Symbol:   cfg.Hybrid.SymbolWeight,
		},
		Timeout: cfg.Hybrid.EngineTimeout.Duration,
		Logger:  log,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.hybrid = hybrid

	if opts.CacheQueries {
		if err := a.cacheEngines(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	backend := opts.Git
	if backend == nil {
		backend = git.NewExecBackend(cfg.Git.Binary, cfg.Git.Timeout.Duration)
	}
	a.git = git.NewEngine(backend, log)

	a.query = query.NewExecutor(query.Engines{
		Text:     a.text,
		Symbol:   a.symbol,
		Fuzzy:    a.fuzzy,
		Semantic: a.semantic,
		Hybrid:   a.hybrid,
		Similar:  a.similar,
		Diff:     a.git.Searcher(""),
	}, log)
	return a, nil
}

// semanticEngine creates the embedding pipeline: provider, LRU cache and,
// when configured, the persistent vector store
func (a *App) semanticEngine(ctx context.Context, opts Options) (*searcher.SemanticEngine, error) {
	cfg := a.cfg.Embedding
	provider := opts.Embedder
	if provider == nil {
		var err error
		provider, err = embedder.NewFromEnv(embedder.Config{
			Provider:  cfg.Provider,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout.Duration,
			RateLimit: cfg.RateLimit,
			Logger:    a.log,
		})
		if err != nil {
			a.log.Warn("semantic search disabled", "error", err)
			a.embedErr = err
			return nil, nil
		}
	}
	a.provider = provider

	var store embedder.VectorStore
	var scorer searcher.HashScorer
	if cfg.StorePath != "" {
		path, err := filepath.Abs(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("%w: store path: %v", types.ErrIO, err)
		}
		st, err := storage.Open(ctx, path)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		a.store = st
		store, scorer = st, st
		a.log.Debug("vector store attached", "path", path)
	}

	resolver := embedder.NewResolver(provider, embedder.NewCache(cfg.CacheSize), store, a.log)
	ch := chunker.New(a.cfg.Semantic.ChunkLines, a.cfg.Semantic.ChunkOverlap)
	return searcher.NewSemanticEngine(ch, resolver, scorer, a.log), nil
}

func (a *App) cacheEngines() error {
	wrap := func(e searcher.Engine) (searcher.Engine, error) {
		if e == nil {
			return nil, nil
		}
		c, err := searcher.NewCachingEngine(e, 0, 0)
		if err != nil {
			return nil, err
		}
		a.caches = append(a.caches, c)
		return c, nil
	}
	var err error
	if a.hybrid, err = wrap(a.hybrid); err != nil {
		return err
	}
	if a.similar, err = wrap(a.similar); err != nil {
		return err
	}
	if a.semantic != nil {
		if a.semantic, err = wrap(a.semantic); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the configuration the App was built with
func (a *App) Config() *config.Config { return a.cfg }

// Indexer returns the parsing indexer
func (a *App) Indexer() *indexer.Indexer { return a.idx }

// Purge drops memoized query responses
func (a *App) Purge() {
	for _, c := range a.caches {
		c.Purge()
	}
}

// Close releases the embedding provider and the vector store
func (a *App) Close() error {
	var errs []error
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// NewDaemon creates a daemon for root that answers every remote command
// from its live index. bind overrides the configured address.
func (a *App) NewDaemon(root, bind string, noWatch bool) (*daemon.Daemon, error) {
	d := a.cfg.Daemon
	if bind == "" {
		bind = d.Bind
	}
	return daemon.New(daemon.Config{
		Root:              root,
		Bind:              bind,
		Debounce:          d.Debounce.Duration,
		WriterLockTimeout: d.WriterLockTimeout.Duration,
		DrainTimeout:      d.DrainTimeout.Duration,
		MaxRestarts:       d.MaxRestarts,
		NoWatch:           noWatch,
		Indexer:           a.idx,
		Handler:           a,
		Logger:            a.log,
		OnReindex: func(gen uint64) {
			a.Purge()
			a.log.Debug("query caches purged", "generation", gen)
		},
	})
}

// limit applies the configured default and ceiling
func (a *App) limit(n int) int {
	if n == 0 {
		n = a.cfg.Search.DefaultLimit
	}
	if ceiling := a.cfg.Search.MaxLimit; ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n
}

func (a *App) semanticUnavailable() error {
	if a.embedErr != nil {
		return fmt.Errorf("%w: no embedding provider: %v", types.ErrEmbedding, a.embedErr)
	}
	return fmt.Errorf("%w: no embedding provider", types.ErrEmbedding)
}
