// Package vector holds the small amount of float math shared by the classifier,
// the isolation pipeline and the in-memory index.
package vector

import (
	"errors"
	"math"
)

// ErrZeroVector is returned when a vector with no magnitude is normalized.
var ErrZeroVector = errors.New("vector has zero length")

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

// Dot returns the dot product of a and b. Extra components of the longer vector are ignored.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, 0 if either has no magnitude.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Softmax returns exp(scale*x_i) / sum_j exp(scale*x_j), computed with the max subtracted.
func Softmax(xs []float64, scale float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	maxv := math.Inf(-1)
	for _, x := range xs {
		maxv = math.Max(maxv, scale*x)
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(scale*x - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax returns the index of the largest element, the first one on ties. -1 for an empty slice.
func ArgMax(xs []float64) int {
	best := -1
	for i, x := range xs {
		if best < 0 || x > xs[best] {
			best = i
		}
	}
	return best
}
