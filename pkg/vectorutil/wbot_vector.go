// Package vectorutil provides similarity math for embedding vectors.
package vectorutil

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of two equal-length vectors.
// A length mismatch is a programming error and panics. If either vector has
// a zero norm the similarity is 0 by convention, never a match.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vectorutil: dimension mismatch %d != %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether every component of v is exactly zero.
func IsZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
