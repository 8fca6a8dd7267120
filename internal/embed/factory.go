package embed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai"
	ProviderStatic ProviderType = "static"
)

// Options selects and tunes the query embedder built by New.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Timeout    time.Duration

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	// CacheSize <= 0 uses DefaultEmbeddingCacheSize.
	CacheSize int

	// MaxFailures and ResetTimeout configure the circuit breaker.
	MaxFailures  int
	ResetTimeout time.Duration

	Logger *slog.Logger
}

// New builds the embedder stack for opts:
//
//	CachedEmbedder -> GuardedEmbedder -> provider
//
// Cache hits never touch the breaker; only real backend calls count.
func New(opts Options) (Embedder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var base Embedder
	switch ProviderType(strings.ToLower(string(opts.Provider))) {
	case ProviderOllama, "":
		base = NewOllamaEmbedder(OllamaConfig{
			Host:       opts.OllamaHost,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
			Logger:     logger,
		})
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
		base = e
	case ProviderStatic:
		// Local and deterministic; a breaker would never trip.
		return NewCachedEmbedder(NewStaticEmbedder(opts.Dimensions), opts.CacheSize), nil
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", opts.Provider), nil).
			WithSuggestion("use one of: ollama, openai, static")
	}

	breakerOpts := []rerrors.CircuitBreakerOption{rerrors.WithMaxFailures(opts.MaxFailures)}
	if opts.ResetTimeout > 0 {
		breakerOpts = append(breakerOpts, rerrors.WithResetTimeout(opts.ResetTimeout))
	}
	breaker := rerrors.NewCircuitBreaker("embedder:"+base.ModelName(), breakerOpts...)

	logger.Debug("embedder_configured",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", base.ModelName()))

	return NewCachedEmbedder(NewGuardedEmbedder(base, breaker, logger), opts.CacheSize), nil
}
