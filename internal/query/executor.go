package query

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codescope/internal/searcher"
	"github.com/dshills/codescope/pkg/types"
)

// Engines are the engines query leaves dispatch to. A nil engine makes any
// leaf that needs it fail with ErrInvalidArgument.
type Engines struct {
	Text     searcher.Engine // text: and regex:
	Symbol   searcher.Engine
	Fuzzy    searcher.Engine
	Semantic searcher.Engine
	Hybrid   searcher.Engine // bare terms
	Similar  searcher.Engine
	Diff     searcher.Engine // diff: lines added or removed since HEAD
}

// Executor evaluates query ASTs against a corpus
type Executor struct {
	engines Engines
	log     *slog.Logger
}

// NewExecutor creates an executor over engines
func NewExecutor(engines Engines, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{engines: engines, log: log}
}

// Run parses expr and executes it
func (x *Executor) Run(ctx context.Context, c searcher.Corpus, expr string, limit int) ([]types.MatchResult, error) {
	n, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return x.Execute(ctx, c, n, limit)
}

// Execute evaluates n and returns at most limit matches (limit <= 0 means
// all), best score first. Leaves run unbounded so set operations see every
// candidate.
func (x *Executor) Execute(ctx context.Context, c searcher.Corpus, n Node, limit int) ([]types.MatchResult, error) {
	if err := checkNot(n, false, nil); err != nil {
		return nil, err
	}
	e := newEnv(c)
	v, err := x.eval(ctx, e, n)
	if err != nil {
		return nil, err
	}
	out := v.matches
	if v.isFilter() {
		out = e.fileMatches(v.pred)
	}
	types.SortByScore(out)
	return types.Truncate(out, limit), nil
}

// predicate tests a match, or the file itself when m is nil
type predicate func(rel string, m *types.MatchResult) bool

// value is the result of evaluating a node: either a match set or, for
// filter-only subtrees, a predicate
type value struct {
	matches []types.MatchResult
	pred    predicate
}

func (v value) isFilter() bool { return v.pred != nil }

func (x *Executor) eval(ctx context.Context, e *env, n Node) (value, error) {
	if err := ctx.Err(); err != nil {
		return value{}, err
	}
	switch n := n.(type) {
	case *Term:
		return x.leaf(ctx, e, "hybrid", n.Value)
	case *Directive:
		return x.leaf(ctx, e, n.Engine, n.Value)
	case *Field:
		if IsFilter(n.Name) {
			p, err := e.filter(n.Name, n.Value)
			return value{pred: p}, err
		}
		return x.leaf(ctx, e, n.Name, n.Value)
	case *And:
		if not, ok := n.Right.(*Not); ok {
			l, r, err := x.evalPair(ctx, e, n.Left, not.Operand)
			if err != nil {
				return value{}, err
			}
			return subtract(e, l, r), nil
		}
		l, r, err := x.evalPair(ctx, e, n.Left, n.Right)
		if err != nil {
			return value{}, err
		}
		return intersect(l, r), nil
	case *Or:
		l, r, err := x.evalPair(ctx, e, n.Left, n.Right)
		if err != nil {
			return value{}, err
		}
		return union(e, l, r), nil
	case *Not:
		return value{}, syntaxError(0, "NOT is only allowed as the right operand of AND")
	}
	return value{}, fmt.Errorf("%w: unknown query node %T", types.ErrInvalidArgument, n)
}

// evalPair evaluates both operands concurrently
func (x *Executor) evalPair(ctx context.Context, e *env, a, b Node) (value, value, error) {
	var va, vb value
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		va, err = x.eval(gctx, e, a)
		return err
	})
	g.Go(func() (err error) {
		vb, err = x.eval(gctx, e, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return value{}, value{}, err
	}
	return va, vb, nil
}

func (x *Executor) leaf(ctx context.Context, e *env, engine, q string) (value, error) {
	req := searcher.Request{Query: q}
	var eng searcher.Engine
	switch engine {
	case "text":
		eng = x.engines.Text
	case "regex":
		eng = x.engines.Text
		req.Regex = true
	case "symbol":
		eng = x.engines.Symbol
	case "fuzzy":
		eng = x.engines.Fuzzy
	case "semantic":
		eng = x.engines.Semantic
	case "hybrid":
		eng = x.engines.Hybrid
	case "similar":
		eng = x.engines.Similar
	case "diff":
		eng = x.engines.Diff
	}
	if eng == nil {
		return value{}, fmt.Errorf("%w: %s engine is not configured", types.ErrInvalidArgument, engine)
	}
	matches, err := eng.Search(ctx, e.corpus, req)
	if err != nil {
		return value{}, fmt.Errorf("%s:%s: %w", engine, q, err)
	}
	x.log.Debug("query leaf", "engine", engine, "query", q, "matches", len(matches))
	return value{matches: matches}, nil
}

// intersect keeps matches present on both sides. A filter side keeps the
// other side's matches that satisfy it.
func intersect(l, r value) value {
	switch {
	case l.isFilter() && r.isFilter():
		lp, rp := l.pred, r.pred
		return value{pred: func(rel string, m *types.MatchResult) bool { return lp(rel, m) && rp(rel, m) }}
	case l.isFilter():
		return value{matches: keep(r.matches, l.pred, true)}
	case r.isFilter():
		return value{matches: keep(l.matches, r.pred, true)}
	}
	right := make(map[types.MatchKey]types.MatchResult, len(r.matches))
	for _, m := range r.matches {
		right[m.Key()] = merge(right[m.Key()], m)
	}
	seen := make(map[types.MatchKey]int)
	var out []types.MatchResult
	for _, m := range l.matches {
		other, ok := right[m.Key()]
		if !ok {
			continue
		}
		if i, dup := seen[m.Key()]; dup {
			out[i] = merge(out[i], m)
			continue
		}
		seen[m.Key()] = len(out)
		out = append(out, merge(m, other))
	}
	return value{matches: out}
}

// union keeps matches from either side with the higher score
func union(e *env, l, r value) value {
	if l.isFilter() && r.isFilter() {
		lp, rp := l.pred, r.pred
		return value{pred: func(rel string, m *types.MatchResult) bool { return lp(rel, m) || rp(rel, m) }}
	}
	lm, rm := e.materialize(l), e.materialize(r)
	index := make(map[types.MatchKey]int, len(lm)+len(rm))
	out := make([]types.MatchResult, 0, len(lm)+len(rm))
	for _, set := range [][]types.MatchResult{lm, rm} {
		for _, m := range set {
			if i, ok := index[m.Key()]; ok {
				out[i] = merge(out[i], m)
				continue
			}
			index[m.Key()] = len(out)
			out = append(out, m)
		}
	}
	return value{matches: out}
}

// subtract removes from base what excluded matches. A file-level match is
// removed when excluded has any match in that file.
func subtract(e *env, base, excluded value) value {
	if base.isFilter() && excluded.isFilter() {
		bp, xp := base.pred, excluded.pred
		return value{pred: func(rel string, m *types.MatchResult) bool { return bp(rel, m) && !xp(rel, m) }}
	}
	matches := e.materialize(base)
	if excluded.isFilter() {
		return value{matches: keep(matches, excluded.pred, false)}
	}
	keys := make(map[types.MatchKey]bool, len(excluded.matches))
	files := make(map[string]bool)
	for _, m := range excluded.matches {
		keys[m.Key()] = true
		files[m.File] = true
	}
	var out []types.MatchResult
	for _, m := range matches {
		if m.Engine == types.EngineFilter && files[m.File] || keys[m.Key()] {
			continue
		}
		out = append(out, m)
	}
	return value{matches: out}
}

// keep returns the matches for which p equals want
func keep(matches []types.MatchResult, p predicate, want bool) []types.MatchResult {
	var out []types.MatchResult
	for i := range matches {
		if p(matches[i].File, &matches[i]) == want {
			out = append(out, matches[i])
		}
	}
	return out
}

// merge combines two records of the same (file, span): the higher score
// wins and a symbol-carrying record is preferred
func merge(a, b types.MatchResult) types.MatchResult {
	if a.File == "" {
		return b
	}
	out := a
	if a.Symbol == nil && b.Symbol != nil {
		out = b
	}
	out.Score = max(a.Score, b.Score)
	return out
}

// env is the per-execution view of the corpus filters test against
type env struct {
	corpus  searcher.Corpus
	files   []types.SourceFile
	lang    map[string]string
	symbols map[string][]types.Symbol
}

func newEnv(c searcher.Corpus) *env {
	e := &env{
		corpus:  c,
		files:   c.Files(),
		lang:    make(map[string]string),
		symbols: make(map[string][]types.Symbol),
	}
	for _, f := range e.files {
		e.lang[f.RelPath] = f.Language
	}
	for _, s := range c.Symbols() {
		e.symbols[s.File] = append(e.symbols[s.File], s)
	}
	return e
}

func (e *env) materialize(v value) []types.MatchResult {
	if v.isFilter() {
		return e.fileMatches(v.pred)
	}
	return v.matches
}

// fileMatches lists one match per corpus file satisfying p
func (e *env) fileMatches(p predicate) []types.MatchResult {
	var out []types.MatchResult
	for _, f := range e.files {
		if !p(f.RelPath, nil) {
			continue
		}
		out = append(out, types.MatchResult{
			File:     f.RelPath,
			Line:     1,
			Column:   1,
			Span:     types.Span{StartLine: 1, StartCol: 1, EndLine: lineCount(f.Content), EndCol: 1},
			Score:    1,
			Engine:   types.EngineFilter,
			Language: f.Language,
		})
	}
	return out
}

func lineCount(content []byte) int {
	n := bytes.Count(content, []byte("\n"))
	if len(content) > 0 && content[len(content)-1] != '\n' {
		n++
	}
	return max(n, 1)
}

// filter builds the predicate of a filter field
func (e *env) filter(name, v string) (predicate, error) {
	switch name {
	case "file":
		if !doublestar.ValidatePattern(v) {
			return nil, fmt.Errorf("%w: file:%s", types.ErrInvalidPattern, v)
		}
		return func(rel string, _ *types.MatchResult) bool {
			if ok, _ := doublestar.Match(v, rel); ok {
				return true
			}
			if strings.Contains(v, "/") {
				return false
			}
			ok, _ := doublestar.Match(v, path.Base(rel))
			return ok
		}, nil
	case "path":
		if !doublestar.ValidatePattern(v) {
			return nil, fmt.Errorf("%w: path:%s", types.ErrInvalidPattern, v)
		}
		if strings.ContainsAny(v, "*?[{") {
			return func(rel string, _ *types.MatchResult) bool {
				ok, _ := doublestar.Match(v, rel)
				return ok
			}, nil
		}
		dir := strings.TrimSuffix(v, "/")
		return func(rel string, _ *types.MatchResult) bool {
			return rel == dir || strings.HasPrefix(rel, dir+"/")
		}, nil
	case "lang":
		return func(rel string, _ *types.MatchResult) bool {
			return strings.EqualFold(e.lang[rel], v)
		}, nil
	case "kind":
		return func(rel string, m *types.MatchResult) bool {
			if m != nil && m.Symbol != nil {
				return strings.EqualFold(string(m.Symbol.Kind), v)
			}
			for _, s := range e.symbols[rel] {
				if !strings.EqualFold(string(s.Kind), v) {
					continue
				}
				if m == nil || s.Span.Contains(m.Line) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, fmt.Errorf("%w: %s is not a filter", types.ErrInvalidArgument, name)
}
