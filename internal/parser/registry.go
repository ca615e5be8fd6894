package parser

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codescope/pkg/types"
)

// LanguageParser turns one source file into symbols and function facts.
// Syntax errors are reported on the result, not as an error.
type LanguageParser interface {
	Language() string
	Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error)
}

// Registry dispatches files to the parser registered for their language,
// falling back to the heuristic extractor.
type Registry struct {
	parsers  map[string]LanguageParser
	fallback LanguageParser
	workers  int
	batch    int
}

// NewRegistry returns a registry with the Go, Python, JavaScript, TypeScript
// and Rust parsers
func NewRegistry() *Registry {
	r := &Registry{
		parsers:  make(map[string]LanguageParser),
		fallback: NewHeuristicParser(),
		workers:  runtime.GOMAXPROCS(0),
		batch:    defaultBatchSize,
	}
	r.Register(NewGoParser())
	r.Register(NewPythonParser())
	r.Register(NewJavaScriptParser())
	r.Register(NewTypeScriptParser())
	r.Register(NewRustParser())
	return r
}

// SetLimits bounds ParseAll to workers goroutines taking batch files at a
// time. Non-positive values keep the current setting.
func (r *Registry) SetLimits(workers, batch int) {
	if workers > 0 {
		r.workers = workers
	}
	if batch > 0 {
		r.batch = batch
	}
}

// Register adds or replaces the parser for its language
func (r *Registry) Register(p LanguageParser) {
	r.parsers[p.Language()] = p
}

// Structured reports whether language has a registered syntax-aware parser
func (r *Registry) Structured(language string) bool {
	_, ok := r.parsers[language]
	return ok
}

// Parse parses a single file
func (r *Registry) Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error) {
	p, ok := r.parsers[file.Language]
	if !ok {
		p = r.fallback
	}
	result, err := p.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	if result.Language == "" {
		result.Language = file.Language
	}
	return result, nil
}

// defaultBatchSize bounds how many files one worker takes at a time
const defaultBatchSize = 16

// ParseAll parses files in parallel, bounded by the registry limits
// (GOMAXPROCS workers by default), and returns
// results in input order. Cancellation is checked between batches.
func (r *Registry) ParseAll(ctx context.Context, files []types.SourceFile) ([]*types.ParseResult, error) {
	results := make([]*types.ParseResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for start := 0; start < len(files); start += r.batch {
		if err := gctx.Err(); err != nil {
			break
		}
		end := min(start+r.batch, len(files))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := r.Parse(gctx, files[i])
				if err != nil {
					return fmt.Errorf("parse %s: %w", files[i].RelPath, err)
				}
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
