package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// OllamaProvider calls a local Ollama instance's /api/embed endpoint
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	log        *slog.Logger
}

// NewOllamaProvider creates an Ollama embedder. BaseURL defaults to
// $OLLAMA_HOST and then http://localhost:11434.
func NewOllamaProvider(opts ProviderOptions) *OllamaProvider {
	base := opts.BaseURL
	if base == "" {
		base = DefaultOllamaHost
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	model := opts.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(base, "/"),
		model:      model,
		httpClient: opts.client(),
		limiter:    opts.limiter(),
		retry:      opts.retry(),
		log:        opts.logger().With("provider", ProviderOllama),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// GenerateEmbedding implements Embedder
func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, o, req)
}

// GenerateBatch implements Embedder
func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = o.model
	}

	vectors, err := retryWithBackoff(ctx, o.log, o.retry, func() ([][]float32, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return o.embed(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, ProviderOllama, err)
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  ProviderOllama,
			Model:     model,
			Hash:      ComputeHash(req.Texts[i]),
		}
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: ProviderOllama, Model: model}, nil
}

func (o *OllamaProvider) embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal embed request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := statusError(resp); err != nil {
		return nil, err
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// Dimension implements Embedder. The real size depends on the model.
func (o *OllamaProvider) Dimension() int { return OllamaDimension }

// Provider implements Embedder
func (o *OllamaProvider) Provider() string { return ProviderOllama }

// Model implements Embedder
func (o *OllamaProvider) Model() string { return o.model }

// Close implements Embedder
func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
