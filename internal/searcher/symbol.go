package searcher

import (
	"context"
	"sort"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// match tiers, best first
const (
	tierExact = iota
	tierPrefix
	tierSubstring
)

var tierScores = [...]float64{tierExact: 1.0, tierPrefix: 0.75, tierSubstring: 0.5}

// kindPenalty is subtracted per kind priority step so callables and
// types outrank values within a tier
const kindPenalty = 0.02

// foldPenalty separates a case-folded match from a case-exact one
const foldPenalty = 0.01

// SymbolEngine matches the query against symbol names
type SymbolEngine struct {
	kinds map[types.SymbolKind]struct{}
}

// NewSymbolEngine creates a symbol engine. When kinds is non-empty only
// symbols of those kinds are considered.
func NewSymbolEngine(kinds ...types.SymbolKind) *SymbolEngine {
	e := &SymbolEngine{}
	if len(kinds) > 0 {
		e.kinds = make(map[types.SymbolKind]struct{}, len(kinds))
		for _, k := range kinds {
			e.kinds[k] = struct{}{}
		}
	}
	return e
}

// Kind implements Engine
func (e *SymbolEngine) Kind() types.EngineKind { return types.EngineSymbol }

type symbolHit struct {
	sym   *types.Symbol
	tier  int
	exact bool // case-exact
	score float64
}

// Search ranks exact > prefix > substring matches (case-insensitive), then
// case-exact before case-folded, then kind priority, then file and line.
// A query containing a dot is matched against Parent.Name.
func (e *SymbolEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	if err := requireQuery(req); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	qualified := strings.Contains(query, ".")
	lowerQuery := strings.ToLower(query)

	syms := c.Symbols()
	var hits []symbolHit
	for i := range syms {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		s := &syms[i]
		if e.kinds != nil {
			if _, ok := e.kinds[s.Kind]; !ok {
				continue
			}
		}
		name := s.Name
		if qualified {
			name = s.QualifiedName()
		}
		tier, exact, ok := classify(name, query, lowerQuery)
		if !ok {
			continue
		}
		score := tierScores[tier] - kindPenalty*float64(s.Kind.Priority())
		if !exact {
			score -= foldPenalty
		}
		hits = append(hits, symbolHit{sym: s, tier: tier, exact: exact, score: max(score, 0)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.exact != b.exact {
			return a.exact
		}
		if pa, pb := a.sym.Kind.Priority(), b.sym.Kind.Priority(); pa != pb {
			return pa < pb
		}
		if a.sym.File != b.sym.File {
			return a.sym.File < b.sym.File
		}
		if a.sym.Span.StartLine != b.sym.Span.StartLine {
			return a.sym.Span.StartLine < b.sym.Span.StartLine
		}
		return a.sym.Span.StartCol < b.sym.Span.StartCol
	})

	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	out := make([]types.MatchResult, len(hits))
	for i, h := range hits {
		out[i] = SymbolMatch(*h.sym, h.score, types.EngineSymbol)
	}
	return out, nil
}

// classify reports the match tier of name against query and whether the
// match holds without case folding
func classify(name, query, lowerQuery string) (tier int, exact bool, ok bool) {
	lowerName := strings.ToLower(name)
	switch {
	case lowerName == lowerQuery:
		return tierExact, name == query, true
	case strings.HasPrefix(lowerName, lowerQuery):
		return tierPrefix, strings.HasPrefix(name, query), true
	case strings.Contains(lowerName, lowerQuery):
		return tierSubstring, strings.Contains(name, query), true
	}
	return 0, false, false
}

// SymbolMatch converts a symbol record into a match result
func SymbolMatch(s types.Symbol, score float64, engine types.EngineKind) types.MatchResult {
	text := s.Signature
	if text == "" {
		text = string(s.Kind) + " " + s.QualifiedName()
	}
	sym := s
	return types.MatchResult{
		File:      s.File,
		Line:      s.Span.StartLine,
		Column:    s.Span.StartCol,
		EndColumn: s.Span.EndCol,
		Span:      s.Span,
		Text:      text,
		Score:     score,
		Engine:    engine,
		Symbol:    &sym,
		Language:  s.Language,
	}
}
