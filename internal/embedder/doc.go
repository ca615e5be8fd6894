// Package embedder turns text into vectors for semantic search.
//
// Four providers implement the Embedder interface:
//
//   - jina and openai call an OpenAI-compatible /v1/embeddings endpoint
//   - ollama calls a local Ollama instance's /api/embed endpoint
//   - local hashes stemmed identifier tokens into a 384-dimension vector,
//     needing no network access
//
// Network providers are rate limited (golang.org/x/time/rate) and retried
// with exponential backoff. Every retry is logged at warn level; 4xx
// responses other than 429 are not retried. Failures wrap types.ErrEmbedding.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv(embedder.Config{Logger: log})
//	if err != nil {
//	    return err
//	}
//	res := embedder.NewResolver(emb, embedder.NewCache(10000), store, log)
//	defer res.Close()
//
//	vectors, err := res.Embed(ctx, texts)
//
// # Provider Selection
//
//  1. An explicit Config.Provider, else CODESCOPE_EMBEDDING_PROVIDER
//  2. Else JINA_API_KEY set → jina
//  3. Else OPENAI_API_KEY set → openai
//  4. Else → local
//
// OLLAMA_HOST sets the Ollama endpoint when the ollama provider is chosen.
//
// # Caching
//
// The Resolver looks every text up by SHA-256 content hash, first in an LRU
// cache (hashicorp/golang-lru), then in an optional persistent VectorStore,
// and sends only the remaining texts to the provider in batches of
// DefaultBatchSize. Keys are content-addressed, so cached vectors never go
// stale.
package embedder
