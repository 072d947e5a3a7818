// Package rank scores candidates against a query vector and selects the top k
// under a cooperative deadline.
package rank

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
//
// Components are rescaled by one exact power of two so that the largest
// magnitude lands in [0.5, 1) before squaring, which keeps vectors with
// components near 1e300 or 1e-300 from overflowing or underflowing. Missing
// components of the shorter vector count as zero. A zero or non-finite input
// yields 0.
func Cosine(a, b []float64) float64 {
	maxAbs := 0.0
	for _, x := range a {
		maxAbs = max(maxAbs, math.Abs(x))
	}
	for _, x := range b {
		maxAbs = max(maxAbs, math.Abs(x))
	}
	if maxAbs == 0 || math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
		return 0
	}

	_, exp := math.Frexp(maxAbs)
	shift := -exp

	var dot, normA, normB float64
	for i := range max(len(a), len(b)) {
		var x, y float64
		if i < len(a) {
			x = math.Ldexp(a[i], shift)
		}
		if i < len(b) {
			y = math.Ldexp(b[i], shift)
		}
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return min(max(sim, -1), 1)
}
