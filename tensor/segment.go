// Package tensor provides segmented (per-group) reductions over flat tensors.
// A flat atom-indexed tensor plus a group-id tensor stands in for K independent
// per-system tensors; every reduction here computes K results in one pass.
package tensor

import (
	"math"

	"golang.org/x/exp/constraints"
)

// SumByKey computes per-group sums of vals. keys[i] is the group of vals[i];
// groups numbers the result slice, so keys must lie in [0, groups).
func SumByKey[T constraints.Float](vals []T, keys []int, groups int) []T {
	out := make([]T, groups)
	for i, v := range vals {
		out[keys[i]] += v
	}
	return out
}

// MaxByKey computes per-group maxima of vals. Empty groups yield -Inf.
func MaxByKey(vals []float64, keys []int, groups int) []float64 {
	out := make([]float64, groups)
	for i := range out {
		out[i] = math.Inf(-1)
	}
	for i, v := range vals {
		if v > out[keys[i]] {
			out[keys[i]] = v
		}
	}
	return out
}

// DotByKey computes a per-group dot product of two flat row tensors: rows of
// width dim, row i belonging to group keys[i]. This is the segmented analogue
// of a scalar dot product, one value per independent system.
func DotByKey(x, y []float64, keys []int, dim, groups int) []float64 {
	out := make([]float64, groups)
	for i, k := range keys {
		for d := 0; d < dim; d++ {
			out[k] += x[dim*i+d] * y[dim*i+d]
		}
	}
	return out
}

// Gather broadcasts per-group values back to per-row shape: out[i] =
// vals[keys[i]].
func Gather(vals []float64, keys []int) []float64 {
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = vals[k]
	}
	return out
}

// RowNorms computes the Euclidean norm of each width-dim row of a flat tensor.
func RowNorms(x []float64, dim int) []float64 {
	out := make([]float64, len(x)/dim)
	for i := range out {
		var s float64
		for d := 0; d < dim; d++ {
			v := x[dim*i+d]
			s += v * v
		}
		out[i] = math.Sqrt(s)
	}
	return out
}
