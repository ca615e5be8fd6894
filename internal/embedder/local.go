package embedder

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/surgebase/porter2"
)

// LocalProvider produces deterministic embeddings without a network call.
// Text is split into identifier-aware tokens, stemmed, and feature-hashed
// into a fixed-size vector with a signed hashing trick. Texts that share
// vocabulary land close together, which is enough for offline use and tests.
type LocalProvider struct {
	model string
}

// NewLocalProvider creates a local embedder
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{model: "local-hashed-porter2"}
}

// GenerateEmbedding implements Embedder
func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, l, req)
}

// GenerateBatch implements Embedder
func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = &Embedding{
			Vector:    l.vector(text),
			Dimension: LocalDimension,
			Provider:  ProviderLocal,
			Model:     l.model,
			Hash:      ComputeHash(text),
		}
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: ProviderLocal, Model: l.model}, nil
}

func (l *LocalProvider) vector(text string) []float32 {
	v := make([]float32, LocalDimension)
	terms := Terms(text)
	for i, term := range terms {
		addFeature(v, term, 1)
		if i > 0 {
			addFeature(v, terms[i-1]+" "+term, 0.5)
		}
	}
	return NormalizeVector(v)
}

func addFeature(v []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(len(v))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// Terms splits text into lower-cased, stemmed tokens. Identifiers are split
// on case changes, digits and underscores so parseConfig and parse_config
// yield the same terms.
func Terms(text string) []string {
	var terms []string
	for _, word := range splitIdentifiers(text) {
		if len(word) < 2 {
			continue
		}
		terms = append(terms, porter2.Stem(strings.ToLower(word)))
	}
	return terms
}

func splitIdentifiers(text string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && len(cur) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return words
}

// Dimension implements Embedder
func (l *LocalProvider) Dimension() int { return LocalDimension }

// Provider implements Embedder
func (l *LocalProvider) Provider() string { return ProviderLocal }

// Model implements Embedder
func (l *LocalProvider) Model() string { return l.model }

// Close implements Embedder
func (l *LocalProvider) Close() error { return nil }
