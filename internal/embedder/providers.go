package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"

	// Default endpoints
	DefaultJinaURL    = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL  = "https://api.openai.com/v1/embeddings"
	DefaultOllamaHost = "http://localhost:11434"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// ProviderOptions are shared by the network providers
type ProviderOptions struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	Retry     *RetryConfig
	Logger    *slog.Logger
}

func (o ProviderOptions) client() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o ProviderOptions) limiter() *rate.Limiter {
	if o.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(o.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RateLimit), burst)
}

func (o ProviderOptions) retry() RetryConfig {
	if o.Retry != nil {
		return *o.Retry
	}
	return DefaultRetryConfig()
}

func (o ProviderOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// APIProvider implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint. Jina and OpenAI share the wire format.
type APIProvider struct {
	name       string
	url        string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	log        *slog.Logger
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(opts ProviderOptions) (*APIProvider, error) {
	return newAPIProvider(ProviderJina, DefaultJinaURL, DefaultJinaModel, JinaDimension, EnvJinaAPIKey, opts)
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(opts ProviderOptions) (*APIProvider, error) {
	return newAPIProvider(ProviderOpenAI, DefaultOpenAIURL, DefaultOpenAIModel, OpenAIDimension, EnvOpenAIAPIKey, opts)
}

func newAPIProvider(name, url, model string, dim int, keyEnv string, opts ProviderOptions) (*APIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}
	if opts.BaseURL != "" {
		url = opts.BaseURL
	}
	if opts.Model != "" {
		model = opts.Model
	}
	return &APIProvider{
		name:       name,
		url:        url,
		apiKey:     opts.APIKey,
		model:      model,
		dimension:  dim,
		httpClient: opts.client(),
		limiter:    opts.limiter(),
		retry:      opts.retry(),
		log:        opts.logger().With("provider", name),
	}, nil
}

// GenerateEmbedding implements Embedder
func (p *APIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, p, req)
}

// GenerateBatch implements Embedder
func (p *APIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings, err := retryWithBackoff(ctx, p.log, p.retry, func() ([]*Embedding, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
	}
	for i, emb := range embeddings {
		emb.Hash = ComputeHash(req.Texts[i])
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: p.name, Model: model}, nil
}

func (p *APIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	// the API may return entries out of order
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}
	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     respModel,
		}
	}
	return embeddings, nil
}

// Dimension implements Embedder
func (p *APIProvider) Dimension() int { return p.dimension }

// Provider implements Embedder
func (p *APIProvider) Provider() string { return p.name }

// Model implements Embedder
func (p *APIProvider) Model() string { return p.model }

// Close implements Embedder
func (p *APIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// statusError converts a non-200 response into an error. 4xx other than
// 429 are permanent.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return permanent(err)
	}
	return err
}

// generateOne embeds a single text through the provider's batch path
func generateOne(ctx context.Context, e Embedder, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}
