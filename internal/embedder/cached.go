package embedder

import (
	"context"
	"fmt"
	"log/slog"
)

// VectorStore persists embeddings by content hash across runs
type VectorStore interface {
	GetEmbeddings(ctx context.Context, provider, model string, hashes []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, embeddings []*Embedding) error
}

// Resolver embeds texts, looking each one up in the LRU cache, then the
// persistent store (if attached), and only then calling the provider in
// batches. It is safe for concurrent use.
type Resolver struct {
	provider Embedder
	cache    *Cache
	store    VectorStore
	log      *slog.Logger
}

// NewResolver wraps provider. store may be nil.
func NewResolver(provider Embedder, cache *Cache, store VectorStore, log *slog.Logger) *Resolver {
	if cache == nil {
		cache = NewCache(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{provider: provider, cache: cache, store: store, log: log}
}

// Provider returns the underlying embedder
func (r *Resolver) Provider() Embedder { return r.provider }

// Embed returns one vector per text, in order
func (r *Resolver) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))

	// hash -> indices still missing
	missing := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
		h := ComputeHash(text)
		hashes[i] = h
		if emb, ok := r.cache.Get(h); ok {
			out[i] = emb.Vector
			continue
		}
		if _, seen := missing[h]; !seen {
			order = append(order, h)
		}
		missing[h] = append(missing[h], i)
	}
	if len(order) == 0 {
		return out, nil
	}

	if r.store != nil {
		found, err := r.store.GetEmbeddings(ctx, r.provider.Provider(), r.provider.Model(), order)
		if err != nil {
			r.log.Warn("vector store lookup failed", "error", err)
		}
		remaining := order[:0:0]
		for _, h := range order {
			v, ok := found[h]
			if !ok {
				remaining = append(remaining, h)
				continue
			}
			r.cache.Set(h, &Embedding{Vector: v, Dimension: len(v), Provider: r.provider.Provider(), Model: r.provider.Model(), Hash: h})
			for _, i := range missing[h] {
				out[i] = v
			}
		}
		order = remaining
	}

	for start := 0; start < len(order); start += DefaultBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := order[start:min(start+DefaultBatchSize, len(order))]
		batchTexts := make([]string, len(batch))
		for j, h := range batch {
			batchTexts[j] = texts[missing[h][0]]
		}

		resp, err := r.provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: batchTexts})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(batch), len(resp.Embeddings))
		}
		for j, emb := range resp.Embeddings {
			h := batch[j]
			emb.Hash = h
			r.cache.Set(h, emb)
			for _, i := range missing[h] {
				out[i] = emb.Vector
			}
		}
		if r.store != nil {
			if err := r.store.PutEmbeddings(ctx, resp.Embeddings); err != nil {
				r.log.Warn("vector store write failed", "error", err)
			}
		}
	}
	return out, nil
}

// EmbedOne embeds a single text
func (r *Resolver) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vs, err := r.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// CacheSize reports the number of cached embeddings
func (r *Resolver) CacheSize() int { return r.cache.Size() }

// Close closes the provider
func (r *Resolver) Close() error { return r.provider.Close() }
