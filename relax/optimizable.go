package relax

import (
	"math"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/Open-Catalyst-Project/cgcnn/tensor"
)

// Optimizable is the collaborator the optimizer drives: a batch of systems
// plus a model that predicts energies and forces for it. The optimizer never
// builds one itself; the model-integration layer supplies it.
type Optimizable interface {
	Positions() []float64
	SetPositions(pos []float64)
	Forces(applyConstraint bool) []float64
	PotentialEnergies() []float64
	// MaxForces returns, per system, the largest force magnitude over that
	// system's free atoms.
	MaxForces() []float64
	BatchIndices() []int
	NumSystems() int
	NumAtoms() int
	// UpdateGraph rebuilds the connectivity graph after a position change.
	// OnTheFlyGraph reports whether the model does this itself.
	UpdateGraph()
	OnTheFlyGraph() bool
	Batch() *cgcnn.Batch
}

// Calculator predicts per-system energies and per-atom forces for a batch.
type Calculator interface {
	Predict(b *cgcnn.Batch) (energies, forces []float64)
	OnTheFlyGraph() bool
}

// BatchOptimizable is the reference Optimizable over a Batch and a
// Calculator. Predictions are cached until the positions change.
type BatchOptimizable struct {
	batch *cgcnn.Batch
	calc  Calculator

	energies []float64
	forces   []float64
	stale    bool

	graphUpdates int
}

func NewBatchOptimizable(b *cgcnn.Batch, calc Calculator) *BatchOptimizable {
	return &BatchOptimizable{batch: b, calc: calc, stale: true}
}

func (o *BatchOptimizable) predict() {
	if o.stale {
		o.energies, o.forces = o.calc.Predict(o.batch)
		o.stale = false
	}
}

func (o *BatchOptimizable) Positions() []float64 {
	return append([]float64(nil), o.batch.Positions...)
}

func (o *BatchOptimizable) SetPositions(pos []float64) {
	copy(o.batch.Positions, pos)
	o.stale = true
}

// Forces returns predicted forces; with applyConstraint the forces on fixed
// atoms are zeroed so they never move and never count toward convergence.
func (o *BatchOptimizable) Forces(applyConstraint bool) []float64 {
	o.predict()
	out := append([]float64(nil), o.forces...)
	if applyConstraint {
		for i, fixed := range o.batch.Fixed {
			if fixed {
				out[3*i], out[3*i+1], out[3*i+2] = 0, 0, 0
			}
		}
	}
	return out
}

func (o *BatchOptimizable) PotentialEnergies() []float64 {
	o.predict()
	return append([]float64(nil), o.energies...)
}

func (o *BatchOptimizable) MaxForces() []float64 {
	norms := tensor.RowNorms(o.Forces(true), 3)
	for i, fixed := range o.batch.Fixed {
		if fixed {
			norms[i] = math.Inf(-1)
		}
	}
	return tensor.MaxByKey(norms, o.batch.BatchIndices, o.batch.NumSystems())
}

func (o *BatchOptimizable) BatchIndices() []int { return o.batch.BatchIndices }

func (o *BatchOptimizable) NumSystems() int { return o.batch.NumSystems() }

func (o *BatchOptimizable) NumAtoms() int { return o.batch.NumAtoms() }

func (o *BatchOptimizable) UpdateGraph() { o.graphUpdates++ }

func (o *BatchOptimizable) OnTheFlyGraph() bool { return o.calc.OnTheFlyGraph() }

func (o *BatchOptimizable) Batch() *cgcnn.Batch { return o.batch }

// GraphUpdates reports how many times the connectivity graph was rebuilt.
func (o *BatchOptimizable) GraphUpdates() int { return o.graphUpdates }
