package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/dshills/codescope/internal/analysis"
	"github.com/dshills/codescope/internal/git"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/internal/searcher"
	"github.com/dshills/codescope/pkg/types"
)

type engine = searcher.Engine

func runSearch(ctx context.Context, a *App, src source, p Params) (any, error) {
	sp := p.(*SearchParams)
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := a.text.Search(ctx, snap, searcher.Request{
		Query:           sp.Pattern,
		Regex:           sp.Regex,
		CaseInsensitive: sp.IgnoreCase,
		Limit:           a.limit(sp.Limit),
	})
	return found(matches, err)
}

func runSymbol(ctx context.Context, a *App, src source, p Params) (any, error) {
	qp := p.(*QueryParams)
	e := a.symbol
	if len(qp.Kinds) > 0 {
		kinds := make([]types.SymbolKind, len(qp.Kinds))
		for i, k := range qp.Kinds {
			kinds[i] = types.SymbolKind(k)
		}
		e = searcher.NewSymbolEngine(kinds...)
	}
	return search(ctx, a, e, src, qp)
}

func runSemantic(ctx context.Context, a *App, src source, p Params) (any, error) {
	if a.semantic == nil {
		return nil, a.semanticUnavailable()
	}
	return search(ctx, a, a.semantic, src, p.(*QueryParams))
}

// engineRunner runs the engine pick returns with QueryParams
func engineRunner(pick func(*App) engine) func(context.Context, *App, source, Params) (any, error) {
	return func(ctx context.Context, a *App, src source, p Params) (any, error) {
		return search(ctx, a, pick(a), src, p.(*QueryParams))
	}
}

func search(ctx context.Context, a *App, e engine, src source, qp *QueryParams) (any, error) {
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := e.Search(ctx, snap, searcher.Request{Query: qp.Query, Limit: a.limit(qp.Limit)})
	return found(matches, err)
}

// found keeps "no matches" a JSON array rather than null
func found(matches []types.MatchResult, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []types.MatchResult{}
	}
	return matches, nil
}

func runSearchDiff(ctx context.Context, a *App, src source, p Params) (any, error) {
	dp := p.(*DiffParams)
	matches, err := a.git.SearchDiff(ctx, src.root(), git.DiffRequest{
		Revspec:         dp.Revspec,
		Pattern:         dp.Pattern,
		Regex:           dp.Regex,
		CaseInsensitive: dp.IgnoreCase,
		Limit:           a.limit(dp.Limit),
	})
	return found(matches, err)
}

func runBlame(ctx context.Context, a *App, src source, p Params) (any, error) {
	bp := p.(*BlameParams)
	rec, err := a.git.Blame(ctx, src.root(), bp.Path, bp.Line)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func runCallGraph(ctx context.Context, _ *App, src source, _ Params) (any, error) {
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	g, err := analysis.CallGraph(ctx, snap)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func runDependencyGraph(ctx context.Context, _ *App, src source, p Params) (any, error) {
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	g, err := analysis.DependencyGraph(ctx, snap, analysis.DependencyOptions{ModulePath: p.(*GraphParams).Module})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func runDataFlow(ctx context.Context, _ *App, src source, p Params) (any, error) {
	dp := p.(*DataFlowParams)
	s, err := src.under(ctx, dp.Path)
	if err != nil {
		return nil, err
	}
	parse := s.Parse(dp.Path)
	if len(s.files) != 1 || parse == nil {
		return nil, fmt.Errorf("%w: %s is not a parsed file", types.ErrInvalidArgument, dp.Path)
	}
	if dp.Function != "" && !slices.ContainsFunc(parse.Functions, func(fn types.Function) bool {
		return fn.Name == dp.Function || fn.QualifiedName() == dp.Function
	}) {
		return nil, fmt.Errorf("%w: function %s in %s", types.ErrNotFound, dp.Function, dp.Path)
	}
	return analysis.DataFlow(parse, dp.Function), nil
}

func (a *App) thresholds() analysis.Thresholds {
	th := analysis.DefaultThresholds()
	s := a.cfg.Smells
	if s.MaxFunctionLines > 0 {
		th.MaxFunctionLines = s.MaxFunctionLines
	}
	if s.MaxParameters > 0 {
		th.MaxParameters = s.MaxParameters
	}
	if s.MaxNesting > 0 {
		th.MaxNesting = s.MaxNesting
	}
	if s.MaxReturns > 0 {
		th.MaxReturns = s.MaxReturns
	}
	return th
}

func runSmells(ctx context.Context, a *App, src source, p Params) (any, error) {
	s, err := src.under(ctx, p.(*PathParams).Path)
	if err != nil {
		return nil, err
	}
	findings, err := analysis.DetectSmellsAll(ctx, s, a.thresholds())
	if err != nil {
		return nil, err
	}
	if findings == nil {
		findings = []types.Finding{}
	}
	return findings, nil
}

func runSignatures(ctx context.Context, _ *App, src source, p Params) (any, error) {
	pp := p.(*PathParams)
	s, err := src.under(ctx, pp.Path)
	if err != nil {
		return nil, err
	}
	sigs, err := analysis.ExtractSignaturesAll(ctx, s, pp.IncludePrivate)
	if err != nil {
		return nil, err
	}
	if sigs == nil {
		sigs = []types.Signature{}
	}
	return sigs, nil
}

func runIndex(ctx context.Context, a *App, src source, _ Params) (any, error) {
	if l, ok := src.(*local); ok {
		_, stats, err := a.idx.Build(ctx, l.dir)
		if err != nil {
			return nil, err
		}
		return stats, nil
	}
	// a live snapshot is already indexed; report what it holds
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	st := snap.Stats()
	return &indexer.Statistics{
		FilesIndexed:     st.Files,
		SymbolsExtracted: st.Symbols,
		Generation:       st.Generation,
	}, nil
}

func runQuery(ctx context.Context, a *App, src source, p Params) (any, error) {
	ep := p.(*ExprParams)
	snap, err := src.all(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := a.query.Run(ctx, snap, ep.Expr, a.limit(ep.Limit))
	return found(matches, err)
}
