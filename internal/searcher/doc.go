// Package searcher implements the search engines. Every engine satisfies
// one interface:
//
//	type Engine interface {
//	    Kind() types.EngineKind
//	    Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error)
//	}
//
// and searches a Corpus, the immutable view of an index (*indexer.Snapshot).
//
// # Engines
//
//   - TextEngine: literal substring (case-sensitive by default) or regular
//     expression, compiled once. Ordered by file, line, column.
//   - SymbolEngine: exact > prefix > substring over symbol names, then kind
//     priority, then location.
//   - FuzzyEngine: subsequence scoring (github.com/sahilm/fuzzy) over paths
//     and lines. An exact basename match scores 1.0.
//   - SemanticEngine: overlapping chunks embedded through an
//     embedder.Resolver, ranked by cosine similarity.
//   - HybridEngine: fuzzy, semantic and symbol run concurrently, each under
//     a timeout; scores are min-max normalized per engine and combined with
//     weights. Survives partial failure.
//   - SimilarEngine: Jaro-Winkler name similarity (github.com/hbollon/go-edlib)
//     blended with chunk similarity.
//
// CachingEngine wraps any engine with an LRU of responses keyed by request
// and corpus generation.
//
// # Example
//
//	hybrid, err := searcher.NewHybridEngine(searcher.HybridConfig{
//	    Fuzzy:    searcher.NewFuzzyEngine(),
//	    Semantic: searcher.NewSemanticEngine(ch, resolver, store, log),
//	    Symbol:   searcher.NewSymbolEngine(),
//	})
//	results, err := hybrid.Search(ctx, snapshot, searcher.Request{Query: "parse config", Limit: 10})
package searcher
