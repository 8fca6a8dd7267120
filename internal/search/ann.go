package search

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW graph parameters.
const (
	DefaultHNSWM        = 16
	DefaultHNSWEfSearch = 20
	hnswLevelFactor     = 0.25
)

// HNSWScanner answers similarity scans from an approximate nearest
// neighbour graph built from the cache snapshot. The graph is rebuilt
// whenever the snapshot generation or the query dimensionality changes,
// so it never outlives the snapshot it was built from. Candidates are
// re-scored with exact cosine similarity.
//
// Scans are serialized; the graph is not shared across goroutines.
type HNSWScanner struct {
	m        int
	efSearch int
	logger   *slog.Logger

	mu         sync.Mutex
	graph      *hnsw.Graph[int64]
	generation uint64
	dims       int
}

var _ SemanticScanner = (*HNSWScanner)(nil)

// HNSWOption configures an HNSWScanner.
type HNSWOption func(*HNSWScanner)

// WithHNSWParams sets the graph degree and search breadth. Values <= 0 keep defaults.
func WithHNSWParams(m, efSearch int) HNSWOption {
	return func(h *HNSWScanner) {
		if m > 0 {
			h.m = m
		}
		if efSearch > 0 {
			h.efSearch = efSearch
		}
	}
}

// WithHNSWLogger sets the logger for rebuild events.
func WithHNSWLogger(l *slog.Logger) HNSWOption {
	return func(h *HNSWScanner) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHNSWScanner creates a scanner with no graph; the first scan builds it.
func NewHNSWScanner(opts ...HNSWOption) *HNSWScanner {
	h := &HNSWScanner{
		m:        DefaultHNSWM,
		efSearch: DefaultHNSWEfSearch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scan returns up to k approximate nearest neighbours of query.
func (h *HNSWScanner) Scan(ctx context.Context, query []float32, snap Snapshot, k int) ([]ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, ok := unitCopy(query, len(query))
	if !ok {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil || h.generation != snap.Generation || h.dims != len(query) {
		h.rebuild(snap, len(query))
	}
	if h.graph.Len() == 0 {
		return nil, nil
	}

	h.graph.EfSearch = max(h.efSearch, k)
	nodes := h.graph.Search(q, k)

	scored := make([]ScoredID, 0, len(nodes))
	for _, node := range nodes {
		sim, ok := cosine(query, node.Value)
		if !ok {
			continue
		}
		scored = append(scored, ScoredID{ID: node.Key, Similarity: sim})
	}
	return topK(scored, k), nil
}

// must hold h.mu
func (h *HNSWScanner) rebuild(snap Snapshot, dims int) {
	start := time.Now()

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = h.m
	graph.EfSearch = h.efSearch
	graph.Ml = hnswLevelFactor

	skipped := 0
	for _, entry := range snap.Entries {
		vec, ok := unitCopy(entry.Embedding, dims)
		if !ok {
			skipped++
			continue
		}
		graph.Add(hnsw.MakeNode(entry.FragmentID, vec))
	}

	h.graph = graph
	h.generation = snap.Generation
	h.dims = dims

	h.logger.Debug("hnsw_graph_rebuilt",
		slog.Int("nodes", graph.Len()),
		slog.Int("skipped", skipped),
		slog.Int("dims", dims),
		slog.Uint64("generation", snap.Generation),
		slog.Duration("duration", time.Since(start)))
}

// unitCopy returns v scaled to unit length. Vectors of the wrong size or
// zero norm cannot be compared and are rejected.
func unitCopy(v []float32, dims int) ([]float32, bool) {
	if len(v) != dims {
		return nil, false
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
