package search

import "sort"

// DefaultRRFConstant is the RRF smoothing constant k.
const DefaultRRFConstant = 60

// Fused is one id after Reciprocal Rank Fusion.
type Fused struct {
	ID    int64
	Score float64
	// LexicalRank and SemanticRank are 1-based, 0 when absent from that list.
	LexicalRank  int
	SemanticRank int
}

// RankFuser merges two ranked id lists with Reciprocal Rank Fusion:
//
//	score(id) = sum over lists of 1 / (k + rank)
//
// Only ranks matter, so the lexical and semantic scores never need to share
// a scale. Ids found by both paths collect two contributions.
type RankFuser struct {
	k int
}

// NewRankFuser creates a fuser. k <= 0 uses DefaultRRFConstant.
func NewRankFuser(k int) *RankFuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RankFuser{k: k}
}

// K returns the smoothing constant.
func (f *RankFuser) K() int {
	return f.k
}

// Merge fuses lexical and semantic rankings, best first, truncated to limit
// when limit > 0. Equal scores keep first-appearance order, lexical list
// first. A repeated id within one list keeps its best rank.
func (f *RankFuser) Merge(lexical, semantic []int64, limit int) []Fused {
	fused := make([]*Fused, 0, len(lexical)+len(semantic))
	byID := make(map[int64]*Fused, len(lexical)+len(semantic))

	entry := func(id int64) *Fused {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &Fused{ID: id}
		byID[id] = r
		fused = append(fused, r)
		return r
	}

	for i, id := range lexical {
		r := entry(id)
		if r.LexicalRank != 0 {
			continue
		}
		r.LexicalRank = i + 1
		r.Score += f.contribution(i + 1)
	}
	for i, id := range semantic {
		r := entry(id)
		if r.SemanticRank != 0 {
			continue
		}
		r.SemanticRank = i + 1
		r.Score += f.contribution(i + 1)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}

	out := make([]Fused, len(fused))
	for i, r := range fused {
		out[i] = *r
	}
	return out
}

func (f *RankFuser) contribution(rank int) float64 {
	return 1.0 / float64(f.k+rank)
}
