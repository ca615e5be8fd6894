package searcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/chunker"
	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/pkg/types"
)

var semanticCorpus = map[string]string{
	"config/load.go": `package config

// parseConfig reads the config file at path
func parseConfig(path string) (*Config, error) {
	return readConfigFile(path)
}
`,
	"server/http.go": `package server

// serveRequests accepts connections and handles each request
func serveRequests(listener net.Listener) {
	for {
		conn, _ := listener.Accept()
		go handle(conn)
	}
}
`,
}

type fakeScorer struct {
	scores   map[string]float64
	err      error
	provider string
	calls    int
}

func (f *fakeScorer) ScoreHashes(_ context.Context, provider, _ string, _ []float32, _ []string) (map[string]float64, error) {
	f.calls++
	f.provider = provider
	return f.scores, f.err
}

func TestSemanticSearchRanksRelevantChunk(t *testing.T) {
	c := newCorpus(t, semanticCorpus)
	e := NewSemanticEngine(chunker.New(0, 0), localResolver(), nil, nil)

	res, err := e.Search(context.Background(), c, Request{Query: "parse config file path"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "config/load.go", res[0].File)
	assert.Greater(t, res[0].Score, res[1].Score)
	assert.Equal(t, types.EngineSemantic, res[0].Engine)
	assert.Equal(t, 1, res[0].Span.StartLine)
	assert.Equal(t, "package config", res[0].Text)

	res, err = e.Search(context.Background(), c, Request{Query: "accept connections listener", Limit: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "server/http.go", res[0].File)
}

func TestSemanticSearchEmbeddingFailure(t *testing.T) {
	c := newCorpus(t, semanticCorpus)
	r := embedder.NewResolver(failingEmbedder{}, nil, nil, nil)
	e := NewSemanticEngine(nil, r, nil, nil)

	_, err := e.Search(context.Background(), c, Request{Query: "config"})
	assert.ErrorIs(t, err, types.ErrEmbedding)
	assert.ErrorIs(t, err, errProviderDown)
}

func TestSemanticSearchWithoutProvider(t *testing.T) {
	c := newCorpus(t, semanticCorpus)
	_, err := NewSemanticEngine(nil, nil, nil, nil).Search(context.Background(), c, Request{Query: "config"})
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestSemanticSearchUsesStoredScores(t *testing.T) {
	c := newCorpus(t, semanticCorpus)
	ch := chunker.New(0, 0)

	f, _ := c.File("server/http.go")
	serverHash := ch.ChunkFile(f, c.Parse(f.RelPath))[0].Hash

	scorer := &fakeScorer{scores: map[string]float64{serverHash: 0.99}}
	e := NewSemanticEngine(ch, localResolver(), scorer, nil)

	res, err := e.Search(context.Background(), c, Request{Query: "parse config file path"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "server/http.go", res[0].File)
	assert.InDelta(t, 0.99, res[0].Score, 1e-9)
	assert.Equal(t, 1, scorer.calls)
	assert.Equal(t, embedder.ProviderLocal, scorer.provider)
}

func TestSemanticSearchScorerFailureFallsBack(t *testing.T) {
	c := newCorpus(t, semanticCorpus)
	scorer := &fakeScorer{err: errors.New("db locked")}
	e := NewSemanticEngine(nil, localResolver(), scorer, nil)

	res, err := e.Search(context.Background(), c, Request{Query: "parse config file path"})
	require.NoError(t, err)
	assert.Equal(t, "config/load.go", res[0].File)
}

func TestSemanticEmptyCorpus(t *testing.T) {
	c := newCorpus(t, map[string]string{})
	res, err := NewSemanticEngine(nil, localResolver(), nil, nil).Search(context.Background(), c, Request{Query: "x"})
	require.NoError(t, err)
	assert.Empty(t, res)
}
