package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
)

func fastRetry() rerrors.RetryConfig {
	return rerrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	// Given: a fake Ollama returning a non-normalized vector
	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Model: gotReq.Model, Embeddings: [][]float64{{3, 4}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text", Retry: fastRetry()})
	defer e.Close()

	// When: embedding a query
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the vector is normalized and dimensions are learned
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "hello", gotReq.Input)
	assert.Equal(t, "nomic-embed-text", gotReq.Model)
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{1, 0}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Retry: fastRetry()})
	vec, err := e.Embed(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOllamaEmbedder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Retry: fastRetry()})
	_, err := e.Embed(context.Background(), "q")

	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeBackendRejected, rerrors.GetCode(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{1, 0, 0}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 2, Retry: fastRetry()})
	_, err := e.Embed(context.Background(), "q")

	assert.Equal(t, rerrors.ErrCodeDimensionMismatch, rerrors.GetCode(err))
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: host, Retry: fastRetry()})
	_, err := e.Embed(context.Background(), "q")

	require.Error(t, err)
	assert.True(t, rerrors.IsRetryable(err))
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"},{"name":"llama3:8b"}]}`))
	}))
	defer srv.Close()

	assert.True(t, NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"}).Available(context.Background()))
	assert.False(t, NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"}).Available(context.Background()))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	// Given: an OpenAI-compatible server
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0,2]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
	require.NoError(t, err)

	// When: embedding
	vec, err := e.Embed(context.Background(), "what did I plant last spring")

	// Then: the unit vector is returned and the request names the model
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
	assert.Equal(t, DefaultOpenAIModel, body["model"])
	assert.Equal(t, 2, e.Dimensions())
}

func TestOpenAIEmbedder_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int64
		wantCode  string
	}{
		{"rate limited is retried", http.StatusTooManyRequests, 2, rerrors.ErrCodeNetworkUnavailable},
		{"server error is retried", http.StatusInternalServerError, 2, rerrors.ErrCodeNetworkUnavailable},
		{"bad key is not retried", http.StatusUnauthorized, 1, rerrors.ErrCodeBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test_error"}}`))
			}))
			defer srv.Close()

			e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), "q")

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, rerrors.GetCode(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestOpenAIEmbedder_RequiresKeyOrBaseURL(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)

	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: "http://localhost:8080/v1"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "  ")
	assert.Equal(t, rerrors.ErrCodeQueryEmpty, rerrors.GetCode(err))
}
