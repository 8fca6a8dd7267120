// Package embed turns query text into embedding vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultTimeout bounds one embedding request.
	DefaultTimeout = 5 * time.Second

	// StaticDimensions is the vector size of the static embedder.
	StaticDimensions = 256

	// DefaultEmbeddingCacheSize is the number of query embeddings kept in memory.
	DefaultEmbeddingCacheSize = 1000
)

// Embedder generates vector embeddings for text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding size, 0 when not yet known.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backend answers.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
