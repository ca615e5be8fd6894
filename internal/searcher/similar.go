package searcher

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/dshills/codescope/pkg/types"
)

const (
	// DefaultSimilarThreshold drops weak candidates
	DefaultSimilarThreshold = 0.6

	// nameWeight is the share of the name similarity in the blended score
	nameWeight = 0.6
)

// SimilarEngine finds symbols similar to a query: Jaro-Winkler similarity
// of names, blended with the semantic similarity of the chunk that holds
// the symbol when an embedder is available.
type SimilarEngine struct {
	semantic  *SemanticEngine
	threshold float64
	log       *slog.Logger
}

// NewSimilarEngine creates the find-similar engine. semantic may be nil.
func NewSimilarEngine(semantic *SemanticEngine, log *slog.Logger) *SimilarEngine {
	if log == nil {
		log = slog.Default()
	}
	return &SimilarEngine{semantic: semantic, threshold: DefaultSimilarThreshold, log: log}
}

// Kind implements Engine
func (e *SimilarEngine) Kind() types.EngineKind { return types.EngineSimilar }

// Search implements Engine. Semantic failures degrade to name similarity.
func (e *SimilarEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	if err := requireQuery(req); err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(req.Query))

	chunkScores := e.chunkScores(ctx, c, req.Query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type hit struct {
		sym   *types.Symbol
		score float64
	}
	var hits []hit
	syms := c.Symbols()
	for i := range syms {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		s := &syms[i]
		name := max(NameSimilarity(query, strings.ToLower(s.Name)),
			NameSimilarity(query, strings.ToLower(s.QualifiedName())))
		score := name
		if chunkScores != nil {
			score = nameWeight*name + (1-nameWeight)*chunkScores.at(s.File, s.Span.StartLine)
		}
		if score >= e.threshold {
			hits = append(hits, hit{sym: s, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.sym.File != b.sym.File {
			return a.sym.File < b.sym.File
		}
		return a.sym.Span.StartLine < b.sym.Span.StartLine
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	out := make([]types.MatchResult, len(hits))
	for i, h := range hits {
		out[i] = SymbolMatch(*h.sym, h.score, types.EngineSimilar)
	}
	return out, nil
}

// NameSimilarity is the Jaro-Winkler similarity of two names in [0, 1]
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

// fileChunks maps a file to its scored chunks
type fileChunks map[string][]ScoredChunk

// at returns the best non-negative similarity among chunks of file that
// contain line
func (fc fileChunks) at(file string, line int) float64 {
	var best float64
	for _, sc := range fc[file] {
		if line >= sc.Chunk.StartLine && line <= sc.Chunk.EndLine {
			best = max(best, sc.Similarity)
		}
	}
	return best
}

func (e *SimilarEngine) chunkScores(ctx context.Context, c Corpus, query string) fileChunks {
	if e.semantic == nil {
		return nil
	}
	ranked, err := e.semantic.Rank(ctx, c, query)
	if err != nil {
		e.log.Warn("semantic scoring unavailable for find-similar", "error", err)
		return nil
	}
	fc := make(fileChunks)
	for _, sc := range ranked {
		fc[sc.Chunk.File] = append(fc[sc.Chunk.File], sc)
	}
	return fc
}
