package search

import (
	"context"
	"sort"
)

// scanCheckInterval is how many vectors the linear scan compares between
// context checks.
const scanCheckInterval = 4096

// ScoredID is a fragment id with its cosine similarity to the query.
type ScoredID struct {
	ID         int64
	Similarity float64
}

// SemanticScanner ranks the entries of a snapshot against a query vector,
// most similar first, returning at most k ids. Entries that cannot be
// compared with the query are left out.
type SemanticScanner interface {
	Scan(ctx context.Context, query []float32, snap Snapshot, k int) ([]ScoredID, error)
}

// LinearScanner compares the query with every cached vector. Exact, and
// fast enough for corpora up to roughly 1e5 vectors.
type LinearScanner struct{}

var _ SemanticScanner = LinearScanner{}

// Scan scores every entry. Entries of another dimensionality or with a
// zero norm are skipped. Ties keep snapshot order.
func (LinearScanner) Scan(ctx context.Context, query []float32, snap Snapshot, k int) ([]ScoredID, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	scored := make([]ScoredID, 0, min(k, len(snap.Entries)))
	for i, entry := range snap.Entries {
		if i%scanCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sim, ok := cosine(query, entry.Embedding)
		if !ok {
			continue
		}
		scored = append(scored, ScoredID{ID: entry.FragmentID, Similarity: sim})
	}

	return topK(scored, k), nil
}

// topK stable-sorts by descending similarity and truncates to k.
func topK(scored []ScoredID, k int) []ScoredID {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
