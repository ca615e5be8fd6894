package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider     = "CODESCOPE_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Logger    *slog.Logger
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	opts := ProviderOptions{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Logger:    cfg.Logger,
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderOllama:
		return NewOllamaProvider(opts), nil
	case ProviderLocal, "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv fills the provider and credentials of cfg from the environment
// and creates the embedder. Priority:
//  1. cfg.Provider, then CODESCOPE_EMBEDDING_PROVIDER
//  2. JINA_API_KEY, then OPENAI_API_KEY
//  3. the local provider
func NewFromEnv(cfg Config) (Embedder, error) {
	cfg.Provider = DetectProvider(cfg.Provider)
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderJina:
			cfg.APIKey = os.Getenv(EnvJinaAPIKey)
		case ProviderOpenAI:
			cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
	}
	if cfg.Provider == ProviderOllama && cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(EnvOllamaHost)
	}
	return New(cfg)
}

// DetectProvider returns the provider that would be used given an explicit
// choice (possibly empty) and the current environment
func DetectProvider(explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
