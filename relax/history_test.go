package relax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryRing(t *testing.T) {
	h := newHistory(3)
	assert.Equal(t, 0, h.Len())

	for i := 1; i <= 5; i++ {
		v := []float64{float64(i)}
		h.Push(v, v, v)
	}
	// Capacity 3: entries 3, 4, 5 survive, oldest first.
	assert.Equal(t, 3, h.Len())
	for i := 0; i < 3; i++ {
		s, y, rho := h.At(i)
		want := float64(i + 3)
		assert.Equal(t, want, s[0])
		assert.Equal(t, want, y[0])
		assert.Equal(t, want, rho[0])
	}
}

func TestHistoryPartialFill(t *testing.T) {
	h := newHistory(4)
	h.Push([]float64{1}, []float64{1}, []float64{1})
	h.Push([]float64{2}, []float64{2}, []float64{2})
	assert.Equal(t, 2, h.Len())
	s, _, _ := h.At(0)
	assert.Equal(t, 1.0, s[0])
	s, _, _ = h.At(1)
	assert.Equal(t, 2.0, s[0])
}
