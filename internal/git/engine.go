package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dshills/codescope/internal/searcher"
	"github.com/dshills/codescope/pkg/types"
)

// DefaultRevspec compares the working tree with the last commit
const DefaultRevspec = "HEAD"

// Engine answers blame and diff search queries through a Backend
type Engine struct {
	backend Backend
	log     *slog.Logger
}

// NewEngine creates a git engine. A nil backend uses the git executable.
func NewEngine(backend Backend, log *slog.Logger) *Engine {
	if backend == nil {
		backend = NewExecBackend("", 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{backend: backend, log: log}
}

// Blame resolves the commit and author that last touched line of path.
// path may be absolute or relative to root.
func (e *Engine) Blame(ctx context.Context, root, path string, line int) (*types.BlameRecord, error) {
	if line < 1 {
		return nil, fmt.Errorf("%w: line must be >= 1, got %d", types.ErrInvalidArgument, line)
	}
	rel, err := relativePath(root, path)
	if err != nil {
		return nil, err
	}

	out, err := e.backend.Blame(ctx, root, rel, line)
	if err != nil {
		return nil, err
	}
	rec, err := ParseBlame(out)
	if err != nil {
		return nil, err
	}
	if rec.File == "" {
		rec.File = rel
	}
	return rec, nil
}

// DiffRequest describes a diff search
type DiffRequest struct {
	Revspec         string
	Pattern         string
	Regex           bool
	CaseInsensitive bool
	Limit           int
}

// SearchDiff scans the unified diff of req.Revspec for lines matching the
// pattern. Results are in diff order: file, then hunk, then line.
func (e *Engine) SearchDiff(ctx context.Context, root string, req DiffRequest) ([]types.MatchResult, error) {
	re, err := searcher.CompilePattern(req.Pattern, req.Regex, req.CaseInsensitive)
	if err != nil {
		return nil, err
	}
	revspec := strings.TrimSpace(req.Revspec)
	if revspec == "" {
		revspec = DefaultRevspec
	}
	if strings.HasPrefix(revspec, "-") {
		return nil, fmt.Errorf("%w: revspec must not start with '-': %q", types.ErrInvalidArgument, revspec)
	}

	out, err := e.backend.Diff(ctx, root, revspec)
	if err != nil {
		return nil, err
	}
	diffs, err := ParseDiff(out)
	if err != nil {
		return nil, err
	}
	e.log.Debug("diff parsed", "revspec", revspec, "files", len(diffs))

	var results []types.MatchResult
	for _, fd := range diffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, h := range fd.Hunks {
			for _, dl := range h.Lines {
				loc := re.FindStringIndex(dl.Content)
				if loc == nil || loc[0] == loc[1] {
					continue
				}
				line := dl.Line()
				results = append(results, types.MatchResult{
					File:      fd.Path(),
					Line:      line,
					Column:    loc[0] + 1,
					EndColumn: loc[1],
					Span:      types.Span{StartLine: line, StartCol: loc[0] + 1, EndLine: line, EndCol: loc[1]},
					Text:      strings.TrimSpace(dl.Content),
					Score:     1.0,
					Engine:    types.EngineGit,
					LineType:  string(dl.Type),
				})
				if req.Limit > 0 && len(results) >= req.Limit {
					return results, nil
				}
			}
		}
	}
	return results, nil
}

// Searcher adapts diff search over revspec to the searcher.Engine
// interface. The corpus supplies the repository root.
func (e *Engine) Searcher(revspec string) searcher.Engine {
	return &diffSearcher{engine: e, revspec: revspec}
}

type diffSearcher struct {
	engine  *Engine
	revspec string
}

func (d *diffSearcher) Kind() types.EngineKind { return types.EngineGit }

func (d *diffSearcher) Search(ctx context.Context, c searcher.Corpus, req searcher.Request) ([]types.MatchResult, error) {
	return d.engine.SearchDiff(ctx, c.Root(), DiffRequest{
		Revspec:         d.revspec,
		Pattern:         req.Query,
		Regex:           req.Regex,
		CaseInsensitive: req.CaseInsensitive,
		Limit:           req.Limit,
	})
}

// relativePath turns path into a slash-separated path under root
func relativePath(root, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", types.ErrInvalidArgument)
	}
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s is outside %s", types.ErrInvalidArgument, path, root)
	}
	return filepath.ToSlash(rel), nil
}
