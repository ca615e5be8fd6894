package searcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/internal/parser"
	"github.com/dshills/codescope/internal/walker"
	"github.com/dshills/codescope/pkg/types"
)

// newCorpus parses in-memory files into a snapshot
func newCorpus(t *testing.T, files map[string]string) *indexer.Snapshot {
	t.Helper()
	reg := parser.NewRegistry()
	var entries []*indexer.Entry
	for rel, content := range files {
		f := types.SourceFile{
			Path:     "/src/" + rel,
			RelPath:  rel,
			Language: walker.LanguageFor(rel),
			Content:  []byte(content),
		}
		res, err := reg.Parse(context.Background(), f)
		require.NoError(t, err)
		entries = append(entries, indexer.NewEntry(f, res))
	}
	return indexer.NewSnapshot("/src", entries)
}

func files(results []types.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.File
	}
	return out
}

// fakeEngine returns canned results after an optional delay
type fakeEngine struct {
	kind    types.EngineKind
	results []types.MatchResult
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeEngine) Kind() types.EngineKind { return f.kind }

func (f *fakeEngine) Search(ctx context.Context, _ Corpus, _ Request) ([]types.MatchResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.MatchResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

func hit(file string, line int, score float64) types.MatchResult {
	return types.MatchResult{
		File:  file,
		Line:  line,
		Span:  types.Span{StartLine: line, StartCol: 1, EndLine: line, EndCol: 1},
		Score: score,
	}
}

// failingEmbedder always fails
type failingEmbedder struct{}

var errProviderDown = errors.New("provider down")

func (failingEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errProviderDown
}

func (failingEmbedder) GenerateBatch(context.Context, embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errProviderDown
}

func (failingEmbedder) Dimension() int   { return 4 }
func (failingEmbedder) Provider() string { return "failing" }
func (failingEmbedder) Model() string    { return "none" }
func (failingEmbedder) Close() error     { return nil }

func localResolver() *embedder.Resolver {
	return embedder.NewResolver(embedder.NewLocalProvider(), embedder.NewCache(100), nil, nil)
}
