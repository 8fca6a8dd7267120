package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder hashes words and character trigrams into a fixed-size
// vector. It needs no network or model and is deterministic, so it serves
// offline use and tests. Similarity reflects shared vocabulary only.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder. dims <= 0 uses StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns a unit vector for text, or the zero vector for blank text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	vector := make([]float32, e.dims)
	if trimmed == "" {
		return vector, nil
	}

	for _, word := range words(trimmed) {
		vector[hashToIndex(word, e.dims)] += tokenWeight
	}
	for _, gram := range ngrams(strings.ToLower(trimmed), ngramSize) {
		vector[hashToIndex(gram, e.dims)] += ngramWeight
	}
	return normalizeVector(vector), nil
}

// Dimensions returns the vector size.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns "static".
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports true until closed.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// words lowercases text and splits it on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ngrams returns the rune n-grams of each word in text.
func ngrams(text string, n int) []string {
	var out []string
	for _, w := range words(text) {
		runes := []rune(w)
		if len(runes) < n {
			out = append(out, w)
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}
