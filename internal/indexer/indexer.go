package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/codescope/internal/parser"
	"github.com/dshills/codescope/internal/walker"
	"github.com/dshills/codescope/pkg/types"
)

// ErrIndexInProgress is returned when a reindex is requested while another runs
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer coordinates the indexing pipeline: walk -> parse -> apply
type Indexer struct {
	walker   *walker.Walker
	registry *parser.Registry
	log      *slog.Logger
	parse    bool
	lock     IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	Walker    *walker.Walker
	Registry  *parser.Registry // nil means parser.NewRegistry()
	Logger    *slog.Logger
	SkipParse bool // scan files only; snapshots carry no symbols
}

// Statistics contains statistics about an indexing operation
type Statistics struct {
	FilesIndexed     int           `json:"files_indexed"`
	FilesSkipped     int           `json:"files_skipped"`
	FilesRemoved     int           `json:"files_removed"`
	FilesFailed      int           `json:"files_failed"`
	SymbolsExtracted int           `json:"symbols_extracted"`
	Generation       uint64        `json:"generation"`
	Duration         time.Duration `json:"duration_ns"`
	ErrorMessages    []string      `json:"errors,omitempty"`
}

// New creates a new Indexer instance
func New(cfg Config) (*Indexer, error) {
	w := cfg.Walker
	if w == nil {
		var err error
		if w, err = walker.New(walker.Options{Logger: cfg.Logger}); err != nil {
			return nil, err
		}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = parser.NewRegistry()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{walker: w, registry: reg, log: log, parse: !cfg.SkipParse}, nil
}

// Walker returns the walker used to discover files
func (idx *Indexer) Walker() *walker.Walker { return idx.walker }

// Registry returns the parser registry
func (idx *Indexer) Registry() *parser.Registry { return idx.registry }

// Build walks root and parses every file in parallel, returning a fresh State
func (idx *Indexer) Build(ctx context.Context, root string) (*State, *Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	files, err := idx.walker.Files(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	stats := &Statistics{}
	entries, err := idx.entries(ctx, files, stats)
	if err != nil {
		return nil, nil, err
	}

	state := NewState(root, entries)
	stats.Generation = state.Generation()
	stats.Duration = time.Since(start)
	idx.log.Info("index built", "root", root, "files", stats.FilesIndexed,
		"symbols", stats.SymbolsExtracted, "failed", stats.FilesFailed, "duration", stats.Duration)
	return state, stats, nil
}

// Snapshot is Build for one-shot use: it returns the snapshot directly
func (idx *Indexer) Snapshot(ctx context.Context, root string) (*Snapshot, *Statistics, error) {
	state, stats, err := idx.Build(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	return state.Snapshot(), stats, nil
}

// Prepare reads and parses the given relative paths outside any lock and
// returns the batch that brings state up to date for them. Files whose
// fingerprint is unchanged are skipped; files that vanished or became
// ignored are removed.
func (idx *Indexer) Prepare(ctx context.Context, state *State, rels []string) (*Batch, *Statistics, error) {
	stats := &Statistics{}
	batch := &Batch{}
	var changed []types.SourceFile

	seen := make(map[string]struct{}, len(rels))
	for _, rel := range rels {
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}

		old, indexed := state.Fingerprint(rel)
		file, ok := idx.walker.Load(state.Root(), rel)
		if !ok {
			if indexed {
				batch.Removals = append(batch.Removals, rel)
				stats.FilesRemoved++
			}
			continue
		}
		if indexed && old == Fingerprint(file.Content) {
			stats.FilesSkipped++
			continue
		}
		changed = append(changed, file)
	}

	entries, err := idx.entries(ctx, changed, stats)
	if err != nil {
		return nil, nil, err
	}
	batch.Updates = entries
	return batch, stats, nil
}

// Update prepares and applies a batch for rels. timeout bounds the wait for
// the writer lock.
func (idx *Indexer) Update(ctx context.Context, state *State, rels []string, timeout time.Duration) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	batch, stats, err := idx.Prepare(ctx, state, rels)
	if err != nil {
		return nil, err
	}
	gen, err := state.Apply(ctx, batch, timeout)
	if err != nil {
		return nil, err
	}
	stats.Generation = gen
	stats.Duration = time.Since(start)
	if !batch.Empty() {
		idx.log.Info("index updated", "generation", gen, "updated", len(batch.Updates),
			"removed", len(batch.Removals), "duration", stats.Duration)
	}
	return stats, nil
}

// Refresh rescans the whole root and applies whatever changed since the
// state was built, including deletions.
func (idx *Indexer) Refresh(ctx context.Context, state *State, timeout time.Duration) (*Statistics, error) {
	files, err := idx.walker.Files(ctx, state.Root())
	if err != nil {
		return nil, err
	}
	rels := state.Paths()
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	return idx.Update(ctx, state, rels, timeout)
}

// entries parses files (unless parsing is disabled) and wraps them
func (idx *Indexer) entries(ctx context.Context, files []types.SourceFile, stats *Statistics) ([]*Entry, error) {
	entries := make([]*Entry, len(files))
	if !idx.parse {
		for i, f := range files {
			entries[i] = NewEntry(f, nil)
		}
		stats.FilesIndexed += len(files)
		return entries, nil
	}

	results, err := idx.registry.ParseAll(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("parse files: %w", err)
	}
	for i, f := range files {
		res := results[i]
		entries[i] = NewEntry(f, res)
		stats.FilesIndexed++
		stats.SymbolsExtracted += len(res.Symbols)
		if res.HasErrors() {
			stats.FilesFailed++
			for _, e := range res.Errors {
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %s", f.RelPath, e.Message))
			}
		}
	}
	return entries, nil
}
