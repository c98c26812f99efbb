package geom

import "math"

// L2Normalize normalizes v in place and returns it. A zero (or
// non-positive-norm) vector is left as the zero vector — the spec's
// "if norm <= 0 the normalizer substitutes 1" rule (§4.1).
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm <= 0 {
		norm = 1
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return v
}

// CosineNormalized computes the cosine similarity of two already
// L2-normalized vectors — a plain dot product (spec §4.3 "Matching").
func CosineNormalized(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// CosineRaw computes cosine similarity between two possibly-unnormalized raw
// descriptors using the pairwise multiply-accumulate form spec §4.3
// describes for "raw byte-level descriptors".
func CosineRaw(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, sumA, sumB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		sumA += float64(a[i]) * float64(a[i])
		sumB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(sumA) * math.Sqrt(sumB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
