package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsoluteAndSquaredError(t *testing.T) {
	m := absoluteError([]float64{1, 2}, []float64{2, 4})
	assert.Equal(t, 3.0, m.Total)
	assert.Equal(t, 2, m.Numel)
	assert.InDelta(t, 1.5, m.Metric, 1e-12)

	m = squaredError([]float64{1, 2}, []float64{2, 4})
	assert.Equal(t, 5.0, m.Total)
	assert.InDelta(t, 2.5, m.Metric, 1e-12)
}

func TestMagnitudeError(t *testing.T) {
	// |(3,4,0)| = 5 vs |(0,0,1)| = 1.
	m := magnitudeError([]float64{3, 4, 0}, []float64{0, 0, 1})
	assert.Equal(t, 1, m.Numel)
	assert.InDelta(t, 4.0, m.Metric, 1e-12)
}

func TestMinDiffPeriodicWrap(t *testing.T) {
	cell := []float64{10, 0, 0, 0, 10, 0, 0, 0, 10}
	target := []float64{1, 1, 1}
	// 9.95 along x is 0.05 away once wrapped through the periodic boundary.
	pred := []float64{10.95, 1, 1}
	diff := minDiff(pred, target, cell, [3]bool{true, true, true})
	assert.InDelta(t, -0.05, diff[0], 1e-9)
	assert.InDelta(t, 0.0, diff[1], 1e-9)
}

func TestMinDiffNonPeriodicAxis(t *testing.T) {
	cell := []float64{10, 0, 0, 0, 10, 0, 0, 0, 10}
	target := []float64{0, 0, 0}
	pred := []float64{3, 0, 0}
	// Without periodicity on x the difference stays 3 (0.3 fractional, no
	// wrap applies below 0.5).
	diff := minDiff(pred, target, cell, [3]bool{false, true, true})
	assert.InDelta(t, 3.0, diff[0], 1e-9)
}

func TestAverageDistanceWithinThreshold(t *testing.T) {
	e, err := NewEvaluator(TaskIS2RS)
	require.NoError(t, err)

	target := &Values{
		Positions: []float64{1, 1, 1, 2, 2, 2},
		Natoms:    []int{2},
		Cells:     []float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
		PBC:       [3]bool{true, true, true},
	}
	pred := &Values{
		Positions: []float64{1.05, 1, 1, 2.05, 2, 2},
		Natoms:    []int{2},
		Cells:     []float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
		PBC:       [3]bool{true, true, true},
	}
	metrics, err := e.Eval(pred, target, nil, nil)
	require.NoError(t, err)

	// Mean displacement 0.05; thresholds 0.051..0.499 succeed: 449 of 490.
	m := metrics["average_distance_within_threshold"]
	assert.Equal(t, 449.0, m.Total)
	assert.Equal(t, 490, m.Numel)
	assert.InDelta(t, 449.0/490.0, m.Metric, 1e-12)
}

func TestKindNamesComplete(t *testing.T) {
	for k := EnergyMAE; k <= AverageDistanceWithinThreshold; k++ {
		assert.NotEmpty(t, k.String(), "kind %d unnamed", int(k))
		assert.NotEmpty(t, k.requires(), "kind %d requires nothing", int(k))
	}
}
