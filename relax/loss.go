package relax

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Force-field training losses over flat 3-vector tensors (one row per atom).

type Reduction int

const (
	ReduceMean Reduction = iota
	ReduceSum
)

// LossFunc computes a scalar loss between two flat row tensors.
type LossFunc func(pred, target []float64, r Reduction) float64

func reduce(vals []float64, r Reduction) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := floats.Sum(vals)
	if r == ReduceMean {
		return sum / float64(len(vals))
	}
	return sum
}

// L2MAE is the per-row Euclidean distance between prediction and target.
func L2MAE(pred, target []float64, r Reduction) float64 {
	dists := make([]float64, len(pred)/3)
	for i := range dists {
		d := []float64{
			pred[3*i] - target[3*i],
			pred[3*i+1] - target[3*i+1],
			pred[3*i+2] - target[3*i+2],
		}
		dists[i] = floats.Norm(d, 2)
	}
	return reduce(dists, r)
}

// NormL2MAE normalizes each row to unit length first, clamping tiny norms at
// minNorm so near-zero vectors do not blow up the division.
func NormL2MAE(minNorm float64) LossFunc {
	if minNorm == 0 {
		minNorm = 1e-3
	}
	return func(pred, target []float64, r Reduction) float64 {
		dists := make([]float64, len(pred)/3)
		for i := range dists {
			p := pred[3*i : 3*i+3]
			t := target[3*i : 3*i+3]
			pn := math.Max(floats.Norm(p, 2), minNorm)
			tn := math.Max(floats.Norm(t, 2), minNorm)
			var s float64
			for d := 0; d < 3; d++ {
				v := p[d]/pn - t[d]/tn
				s += v * v
			}
			dists[i] = math.Sqrt(s)
		}
		return reduce(dists, r)
	}
}

// CosineLoss is the negated per-row cosine similarity.
func CosineLoss(pred, target []float64, r Reduction) float64 {
	vals := make([]float64, len(pred)/3)
	for i := range vals {
		p := pred[3*i : 3*i+3]
		t := target[3*i : 3*i+3]
		den := floats.Norm(p, 2) * floats.Norm(t, 2)
		if den == 0 {
			den = 1.0
		}
		vals[i] = -floats.Dot(p, t) / den
	}
	return reduce(vals, r)
}

// WeightedLoss pairs a loss with its weight in a combined objective.
type WeightedLoss struct {
	Fn     LossFunc
	Weight float64
}

// Combined sums weighted losses into one LossFunc.
func Combined(losses ...WeightedLoss) LossFunc {
	return func(pred, target []float64, r Reduction) float64 {
		var total float64
		for _, wl := range losses {
			total += wl.Weight * wl.Fn(pred, target, r)
		}
		return total
	}
}
