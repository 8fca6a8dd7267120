package search

import "math"

// CosineSimilarity returns dot(a,b) / (|a|*|b|). Vectors of different
// length, empty vectors and zero vectors score 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	sim, _ := cosine(a, b)
	return sim
}

// cosine also reports whether a and b are comparable at all. A pair that
// is not comparable is a non-match, unlike a comparable pair that merely
// scores 0.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, false
	}
	return sim, true
}
