package embedder

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the normalized dot product of two vectors in
// [-1, 1]. Vectors of different dimensionality are a contract violation and
// fail rather than being silently truncated. A zero-magnitude vector on
// either side yields 0.0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedder: vector dimension mismatch (%d vs %d)", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// ZeroVector returns the documented sentinel substituted for chunks whose
// embedding call failed.
func ZeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for i := range v {
		if v[i] != 0 {
			return false
		}
	}
	return true
}
