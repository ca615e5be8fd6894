package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/codescope/internal/chunker"
	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/pkg/types"
)

// HashScorer scores stored vectors against a query by content hash.
// *storage.Store implements it.
type HashScorer interface {
	ScoreHashes(ctx context.Context, provider, model string, query []float32, hashes []string) (map[string]float64, error)
}

// SemanticEngine embeds overlapping chunks of every file and ranks them by
// cosine similarity to the embedded query
type SemanticEngine struct {
	chunker  *chunker.Chunker
	resolver *embedder.Resolver
	scorer   HashScorer
	log      *slog.Logger
}

// NewSemanticEngine creates a semantic engine. scorer may be nil, in which
// case similarity is computed in memory.
func NewSemanticEngine(ch *chunker.Chunker, resolver *embedder.Resolver, scorer HashScorer, log *slog.Logger) *SemanticEngine {
	if ch == nil {
		ch = chunker.New(0, 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &SemanticEngine{chunker: ch, resolver: resolver, scorer: scorer, log: log}
}

// Kind implements Engine
func (e *SemanticEngine) Kind() types.EngineKind { return types.EngineSemantic }

// ScoredChunk is a chunk with its similarity to a query
type ScoredChunk struct {
	Chunk      *chunker.Chunk
	Similarity float64
}

// Search implements Engine. Embedding failures surface as ErrEmbedding;
// there is no fallback to another engine.
func (e *SemanticEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	scored, err := e.Rank(ctx, c, req.Query)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	out := make([]types.MatchResult, len(scored))
	for i, sc := range scored {
		out[i] = chunkMatch(sc)
	}
	return out, nil
}

// Rank scores every chunk of the corpus against query, best first. Ties
// are broken by file path then start line.
func (e *SemanticEngine) Rank(ctx context.Context, c Corpus, query string) ([]ScoredChunk, error) {
	if err := requireQuery(Request{Query: query}); err != nil {
		return nil, err
	}
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", types.ErrEmbedding)
	}

	var chunks []*chunker.Chunk
	for i, f := range c.Files() {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		chunks = append(chunks, e.chunker.ChunkFile(f, c.Parse(f.RelPath))...)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	qvec, err := e.resolver.EmbedOne(ctx, query)
	if err != nil {
		return nil, embeddingError(err)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.EmbedText()
	}
	vecs, err := e.resolver.Embed(ctx, texts)
	if err != nil {
		return nil, embeddingError(err)
	}

	stored := e.storedScores(ctx, qvec, chunks)
	scored := make([]ScoredChunk, len(chunks))
	for i, ch := range chunks {
		sim, ok := stored[ch.Hash]
		if !ok {
			sim = embedder.CosineSimilarity(qvec, vecs[i])
		}
		scored[i] = ScoredChunk{Chunk: ch, Similarity: sim}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Chunk.File != b.Chunk.File {
			return a.Chunk.File < b.Chunk.File
		}
		return a.Chunk.StartLine < b.Chunk.StartLine
	})
	return scored, nil
}

// storedScores asks the attached store to score the chunk vectors it
// already holds. Failures fall back to in-memory scoring.
func (e *SemanticEngine) storedScores(ctx context.Context, qvec []float32, chunks []*chunker.Chunk) map[string]float64 {
	if e.scorer == nil {
		return nil
	}
	hashes := make([]string, len(chunks))
	for i, ch := range chunks {
		hashes[i] = ch.Hash
	}
	p := e.resolver.Provider()
	scores, err := e.scorer.ScoreHashes(ctx, p.Provider(), p.Model(), qvec, hashes)
	if err != nil {
		e.log.Warn("stored vector scoring failed", "error", err)
		return nil
	}
	return scores
}

func embeddingError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrEmbedding, err)
}

func chunkMatch(sc ScoredChunk) types.MatchResult {
	ch := sc.Chunk
	return types.MatchResult{
		File:     ch.File,
		Line:     ch.StartLine,
		Column:   1,
		Span:     ch.Span(),
		Text:     firstNonBlank(ch.Content),
		Score:    max(sc.Similarity, 0),
		Engine:   types.EngineSemantic,
		Language: ch.Language,
	}
}

func firstNonBlank(content string) string {
	for line := range strings.SplitSeq(content, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
