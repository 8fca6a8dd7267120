package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a small general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides auto-detection (0 = detect on first call).
	Dimensions int

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	Retry rerrors.RetryConfig

	Logger *slog.Logger
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:    DefaultOllamaHost,
		Model:   DefaultOllamaModel,
		Timeout: DefaultTimeout,
		Retry:   rerrors.DefaultRetryConfig(),
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. No request is made until
// the first Embed or Available call.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = rerrors.DefaultRetryConfig()
	}
	cfg.Retry.ShouldRetry = rerrors.IsRetryable

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-level timeout: each attempt gets its own context deadline.
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		logger:    logger,
		dims:      cfg.Dimensions,
	}
}

// Embed returns the unit-normalized embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
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
			fmt.Sprintf("ollama returned %d dimensions, expected %d", len(vec), dims), nil)
	}
	return vec, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rerrors.New(rerrors.ErrCodeNetworkTimeout, "ollama request timed out", err)
		}
		return nil, rerrors.NetworkError("ollama unreachable", err).
			WithDetail("host", e.config.Host).
			WithSuggestion("start Ollama with `ollama serve` or set embeddings.provider: static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, statusError("ollama", resp.StatusCode, string(msg))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "failed to decode ollama response", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "ollama returned no embedding", nil)
	}

	vec := make([]float32, len(out.Embeddings[0]))
	for i, v := range out.Embeddings[0] {
		vec[i] = float32(v)
	}
	return normalizeVector(vec), nil
}

// statusError maps an HTTP status to a RecallError. 429 and 5xx are retryable.
func statusError(backend string, status int, body string) error {
	msg := fmt.Sprintf("%s embedding failed with status %d: %s", backend, status, strings.TrimSpace(body))
	if status == http.StatusTooManyRequests || status >= 500 {
		return rerrors.NetworkError(msg, nil)
	}
	return rerrors.New(rerrors.ErrCodeBackendRejected, msg, nil)
}

// Dimensions returns the configured or detected size, 0 before the first call.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether Ollama is running and has the model pulled.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	// Ollama reports "nomic-embed-text:latest" for a model pulled as "nomic-embed-text".
	want := strings.ToLower(e.config.Model)
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.TrimSuffix(name, ":latest") == want {
			return true
		}
	}
	e.logger.Debug("ollama_model_missing", slog.String("model", e.config.Model))
	return false
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
