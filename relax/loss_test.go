package relax

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2MAE(t *testing.T) {
	pred := []float64{3, 4, 0, 0, 0, 0}
	target := []float64{0, 0, 0, 0, 0, 2}
	// Row distances 5 and 2.
	assert.InDelta(t, 3.5, L2MAE(pred, target, ReduceMean), 1e-12)
	assert.InDelta(t, 7.0, L2MAE(pred, target, ReduceSum), 1e-12)
}

func TestNormL2MAE(t *testing.T) {
	fn := NormL2MAE(0) // default clamp 1e-3
	pred := []float64{2, 0, 0}
	target := []float64{4, 0, 0}
	// Same direction, different magnitude: zero after normalization.
	assert.InDelta(t, 0.0, fn(pred, target, ReduceMean), 1e-12)

	opposite := []float64{-1, 0, 0}
	assert.InDelta(t, 2.0, fn(pred, opposite, ReduceMean), 1e-12)
}

func TestCosineLoss(t *testing.T) {
	pred := []float64{1, 0, 0, 0, 1, 0}
	same := []float64{2, 0, 0, 0, 3, 0}
	assert.InDelta(t, -1.0, CosineLoss(pred, same, ReduceMean), 1e-12)

	ortho := []float64{0, 1, 0, 1, 0, 0}
	assert.InDelta(t, 0.0, CosineLoss(pred, ortho, ReduceMean), 1e-12)
}

func TestCombinedLoss(t *testing.T) {
	pred := []float64{3, 4, 0}
	target := []float64{0, 0, 0}
	fn := Combined(
		WeightedLoss{Fn: L2MAE, Weight: 2.0},
		WeightedLoss{Fn: CosineLoss, Weight: 1.0},
	)
	want := 2.0*5.0 + 1.0*(-0.0)
	got := fn(pred, target, ReduceMean)
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, want, got, 1e-12)
}
