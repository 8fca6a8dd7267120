package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server. Empty uses api.openai.com.
	BaseURL string
	Model   string
	// Dimensions requests shortened embeddings from text-embedding-3 models (0 = model default).
	Dimensions int
	Timeout    time.Duration
	Retry      rerrors.RetryConfig
}

// OpenAIEmbedder calls the /embeddings endpoint through go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. An API key is required
// unless BaseURL points at a local server.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, rerrors.ConfigError("OPENAI_API_KEY is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or add it to .env")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = rerrors.DefaultRetryConfig()
	}
	cfg.Retry.ShouldRetry = rerrors.IsRetryable

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed returns the unit-normalized embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if strings.TrimSpace(text) == "" {
		return nil, rerrors.New(rerrors.ErrCodeQueryEmpty, "cannot embed empty text", nil)
	}

	vec, err := rerrors.RetryWithResult(ctx, e.config.Retry, func() ([]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(attemptCtx, text)
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vec)
	}
	dims := e.dims
	e.mu.Unlock()

	if len(vec) != dims {
		return nil, rerrors.New(rerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("openai returned %d dimensions, expected %d", len(vec), dims), nil)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.config.Model),
		Input:      []string{text},
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "no embedding data returned from API", nil)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	copy(vec, resp.Data[0].Embedding)
	return normalizeVector(vec), nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	if ctx.Err() != nil {
		return rerrors.New(rerrors.ErrCodeNetworkTimeout, "openai request timed out", err)
	}
	return rerrors.NetworkError("openai unreachable", err)
}

// Dimensions returns the configured or detected size, 0 before the first call.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the model can be retrieved with the configured key.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	_, err := e.client.GetModel(ctx, e.config.Model)
	return err == nil
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
