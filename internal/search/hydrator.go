package search

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanrecall/internal/store"
)

// Hydrator turns fused ids into full results with one batch read.
type Hydrator struct {
	reader store.FragmentReader
}

// NewHydrator creates a hydrator over reader.
func NewHydrator(reader store.FragmentReader) *Hydrator {
	return &Hydrator{reader: reader}
}

// Resolve loads the fragments for ranked and returns them in ranked order
// with their fused scores. Ids the store no longer has are dropped, so the
// result may be shorter than ranked. Store errors are returned as-is.
func (h *Hydrator) Resolve(ctx context.Context, ranked []Fused) ([]*SearchResult, error) {
	if len(ranked) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}

	frags, err := h.reader.GetFragments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate %d fragments: %w", len(ids), err)
	}

	byID := make(map[int64]*store.Fragment, len(frags))
	for _, f := range frags {
		if f != nil {
			byID[f.ID] = f
		}
	}

	results := make([]*SearchResult, 0, len(ranked))
	for _, r := range ranked {
		f, ok := byID[r.ID]
		if !ok {
			continue
		}
		results = append(results, &SearchResult{
			ID:        f.ID,
			Content:   f.Content,
			FilePath:  f.SourceFile,
			StartLine: f.StartLine,
			EndLine:   f.EndLine,
			Score:     r.Score,
		})
	}
	return results, nil
}
