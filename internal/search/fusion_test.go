package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(fused []Fused) []int64 {
	out := make([]int64, len(fused))
	for i, f := range fused {
		out[i] = f.ID
	}
	return out
}

func TestRankFuser_AgreementScoresTwice(t *testing.T) {
	f := NewRankFuser(60)

	got := f.Merge([]int64{10, 20}, []int64{10, 20}, 5)

	require.Len(t, got, 2)
	assert.Equal(t, []int64{10, 20}, ids(got))
	assert.InDelta(t, 2.0/61, got[0].Score, 1e-12)
	assert.InDelta(t, 2.0/62, got[1].Score, 1e-12)
	assert.Equal(t, 1, got[0].LexicalRank)
	assert.Equal(t, 1, got[0].SemanticRank)
}

func TestRankFuser_SingleSourceKeepsOrder(t *testing.T) {
	f := NewRankFuser(60)

	tests := []struct {
		name              string
		lexical, semantic []int64
		want              []int64
	}{
		{"semantic only", nil, []int64{7, 3, 9}, []int64{7, 3, 9}},
		{"lexical only", []int64{4, 1, 8, 2}, []int64{}, []int64{4, 1, 8, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(f.Merge(tt.lexical, tt.semantic, 10)))
		})
	}
}

func TestRankFuser_TiesKeepFirstAppearance(t *testing.T) {
	// Given: 1 and 2 each appear once at rank 1, 3 and 4 once at rank 2
	f := NewRankFuser(60)

	got := f.Merge([]int64{1, 3}, []int64{2, 4}, 0)

	// Then: equal scores keep construction order, lexical first
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(got))
}

func TestRankFuser_Deterministic(t *testing.T) {
	f := NewRankFuser(60)
	lex := []int64{5, 6, 7, 8, 9}
	sem := []int64{9, 8, 7, 6, 5}

	first := f.Merge(lex, sem, 0)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, f.Merge(lex, sem, 0))
	}
}

func TestRankFuser_Truncates(t *testing.T) {
	f := NewRankFuser(60)

	got := f.Merge([]int64{1, 2, 3, 4}, []int64{5, 6, 7, 8}, 3)

	assert.Len(t, got, 3)
}

func TestRankFuser_BothEmpty(t *testing.T) {
	got := NewRankFuser(60).Merge(nil, nil, 5)

	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestRankFuser_DuplicateWithinListKeepsBestRank(t *testing.T) {
	got := NewRankFuser(60).Merge([]int64{1, 2, 1}, nil, 0)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].LexicalRank)
	assert.InDelta(t, 1.0/61, got[0].Score, 1e-12)
}

func TestNewRankFuser_DefaultK(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRankFuser(0).K())
	assert.Equal(t, 10, NewRankFuser(10).K())
}
