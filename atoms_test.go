package cgcnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSystem(id string, natoms int) *AtomicSystem {
	s := &AtomicSystem{
		SystemID:      id,
		Natoms:        natoms,
		Positions:     make([]float64, 3*natoms),
		AtomicNumbers: make([]int, natoms),
		Cell:          [9]float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
		PBC:           [3]bool{true, true, true},
		Fixed:         make([]bool, natoms),
	}
	for i := 0; i < natoms; i++ {
		s.Positions[3*i] = float64(i)
		s.AtomicNumbers[i] = 1 + i%8
	}
	return s
}

func TestCollate(t *testing.T) {
	a := makeSystem("sysA", 2)
	b := makeSystem("sysB", 3)
	batch, err := Collate([]*AtomicSystem{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.NumSystems())
	assert.Equal(t, 5, batch.NumAtoms())
	assert.Equal(t, []int{2, 3}, batch.Natoms)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, batch.BatchIndices)
	assert.NoError(t, batch.Validate())
}

func TestCollateEmpty(t *testing.T) {
	_, err := Collate(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestCollateRejectsBadSystem(t *testing.T) {
	bad := makeSystem("bad", 2)
	bad.Positions = bad.Positions[:3]
	_, err := Collate([]*AtomicSystem{bad})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestValidateCatchesBrokenPartition(t *testing.T) {
	batch, err := Collate([]*AtomicSystem{makeSystem("a", 2), makeSystem("b", 2)})
	require.NoError(t, err)
	batch.BatchIndices[1] = 1
	assert.ErrorIs(t, batch.Validate(), ErrBatchInvalid)
}

func TestSystemsRoundTrip(t *testing.T) {
	a := makeSystem("sysA", 2)
	a.Forces = []float64{1, 0, 0, 0, 1, 0}
	a.Energy = -3.5
	b := makeSystem("sysB", 3)
	b.Forces = make([]float64, 9)
	batch, err := Collate([]*AtomicSystem{a, b})
	require.NoError(t, err)

	split := batch.Systems()
	require.Len(t, split, 2)
	assert.Equal(t, a.SystemID, split[0].SystemID)
	assert.Equal(t, a.Positions, split[0].Positions)
	assert.Equal(t, a.Forces, split[0].Forces)
	assert.Equal(t, a.Energy, split[0].Energy)
	assert.Equal(t, b.Positions, split[1].Positions)

	// Snapshots must not alias the batch tensors.
	batch.Positions[0] = 42.0
	assert.NotEqual(t, 42.0, split[0].Positions[0])
}
