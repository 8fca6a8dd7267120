package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrecall/internal/store"
)

func snapshotOf(gen uint64, entries ...store.VectorEntry) Snapshot {
	return Snapshot{Entries: entries, Generation: gen}
}

func entry(id int64, v ...float32) store.VectorEntry {
	return store.VectorEntry{FragmentID: id, Embedding: v}
}

func scoredIDs(s []ScoredID) []int64 {
	out := make([]int64, len(s))
	for i, x := range s {
		out[i] = x.ID
	}
	return out
}

func TestLinearScanner_RanksBySimilarity(t *testing.T) {
	snap := snapshotOf(1,
		entry(1, 0, 1),
		entry(2, 1, 0),
		entry(3, 1, 1),
	)

	got, err := LinearScanner{}.Scan(context.Background(), []float32{1, 0}, snap, 10)

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, scoredIDs(got))
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.0, got[2].Similarity, 1e-6)
}

func TestLinearScanner_SkipsIncomparable(t *testing.T) {
	snap := snapshotOf(1,
		entry(1, 1, 0, 0), // other model
		entry(2, 0, 0),    // zero norm
		entry(3, 1, 0),
	)

	got, err := LinearScanner{}.Scan(context.Background(), []float32{1, 0}, snap, 10)

	require.NoError(t, err)
	assert.Equal(t, []int64{3}, scoredIDs(got))
}

func TestLinearScanner_TruncatesAndKeepsTieOrder(t *testing.T) {
	snap := snapshotOf(1,
		entry(5, 1, 0),
		entry(6, 1, 0),
		entry(7, 1, 0),
	)

	got, err := LinearScanner{}.Scan(context.Background(), []float32{2, 0}, snap, 2)

	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, scoredIDs(got))
}

func TestLinearScanner_EmptyQuery(t *testing.T) {
	got, err := LinearScanner{}.Scan(context.Background(), nil, snapshotOf(1, entry(1, 1)), 5)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLinearScanner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LinearScanner{}.Scan(ctx, []float32{1}, snapshotOf(1, entry(1, 1)), 5)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestHNSWScanner_FindsNearest(t *testing.T) {
	// Given: a small corpus in a few directions
	snap := snapshotOf(1,
		entry(1, 1, 0, 0),
		entry(2, 0, 1, 0),
		entry(3, 0, 0, 1),
		entry(4, 0.9, 0.1, 0),
		entry(5, 0, 0),    // wrong dimensionality
		entry(6, 0, 0, 0), // zero norm
	)
	h := NewHNSWScanner()

	// When: scanning for the x axis
	got, err := h.Scan(context.Background(), []float32{1, 0, 0}, snap, 2)

	// Then: the two closest come back, exact similarity first
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 4}, scoredIDs(got))
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestHNSWScanner_RebuildsOnNewGeneration(t *testing.T) {
	h := NewHNSWScanner(WithHNSWParams(8, 16))
	ctx := context.Background()

	first, err := h.Scan(ctx, []float32{1, 0}, snapshotOf(1, entry(1, 1, 0)), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, scoredIDs(first))

	second, err := h.Scan(ctx, []float32{1, 0}, snapshotOf(2, entry(2, 1, 0)), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, scoredIDs(second))
}

func TestHNSWScanner_EmptyAndZeroQuery(t *testing.T) {
	h := NewHNSWScanner()
	ctx := context.Background()

	got, err := h.Scan(ctx, []float32{1, 0}, snapshotOf(1), 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = h.Scan(ctx, []float32{0, 0}, snapshotOf(1, entry(1, 1, 0)), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
