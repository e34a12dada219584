// Package eval computes per-task accuracy metrics with streaming accumulation:
// every metric is a running (total, count) pair, so results from successive
// mini-batches or relaxation outputs merge without re-scanning history and
// without the uneven-batch bias that averaging means would introduce.
package eval

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownTask       = errors.New("eval: unknown task")
	ErrMissingAttribute  = errors.New("eval: required attribute missing")
	ErrShapeMismatch     = errors.New("eval: prediction and target shapes differ")
	ErrUnsupportedMetric = errors.New("eval: metric not available for task")
)

type Task string

const (
	TaskS2EF  Task = "s2ef"
	TaskIS2RS Task = "is2rs"
	TaskIS2RE Task = "is2re"
)

// Attr identifies a tensor attribute of a Values mapping.
type Attr int

const (
	AttrEnergy Attr = iota
	AttrForces
	AttrPositions
	AttrNatoms
	AttrCell
)

var attrNames = map[Attr]string{
	AttrEnergy:    "energy",
	AttrForces:    "forces",
	AttrPositions: "positions",
	AttrNatoms:    "natoms",
	AttrCell:      "cell",
}

// Values carries prediction or target tensors. Energy is per structure,
// Forces and Positions are flat per-atom 3-vectors, Cells is 9 values per
// structure.
type Values struct {
	Energy    []float64
	Forces    []float64
	Positions []float64
	Natoms    []int
	Cells     []float64
	PBC       [3]bool
}

func (v *Values) has(a Attr) bool {
	switch a {
	case AttrEnergy:
		return v.Energy != nil
	case AttrForces:
		return v.Forces != nil
	case AttrPositions:
		return v.Positions != nil
	case AttrNatoms:
		return v.Natoms != nil
	case AttrCell:
		return v.Cells != nil
	}
	return false
}

func (v *Values) dim(a Attr) int {
	switch a {
	case AttrEnergy:
		return len(v.Energy)
	case AttrForces:
		return len(v.Forces)
	case AttrPositions:
		return len(v.Positions)
	case AttrNatoms:
		return len(v.Natoms)
	case AttrCell:
		return len(v.Cells)
	}
	return 0
}

var taskMetrics = map[Task][]Kind{
	TaskS2EF: {
		ForcesXMAE, ForcesYMAE, ForcesZMAE,
		ForcesMAE, ForcesCos, ForcesMagnitude,
		EnergyMAE, EnergyForceWithinThreshold,
	},
	TaskIS2RS: {AverageDistanceWithinThreshold, PositionsMAE, PositionsMSE},
	TaskIS2RE: {EnergyMAE, EnergyMSE, EnergyWithinThreshold},
}

var taskAttributes = map[Task][]Attr{
	TaskS2EF:  {AttrEnergy, AttrForces, AttrNatoms},
	TaskIS2RS: {AttrPositions, AttrCell, AttrNatoms},
	TaskIS2RE: {AttrEnergy},
}

var taskPrimary = map[Task]Kind{
	TaskS2EF:  EnergyForceWithinThreshold,
	TaskIS2RS: AverageDistanceWithinThreshold,
	TaskIS2RE: EnergyMAE,
}

// Atom-wise breakdowns default to the force metrics of s2ef; the other tasks
// track none.
var taskAtomwise = map[Task][]Kind{
	TaskS2EF:  {ForcesMAE, ForcesCos},
	TaskIS2RS: {},
	TaskIS2RE: {},
}

// Evaluator computes the fixed metric set of one task.
type Evaluator struct {
	task     Task
	kinds    []Kind
	attrs    []Attr
	atomwise map[Kind]bool
	trackedZ []int
}

// Option tweaks evaluator construction.
type Option func(*Evaluator)

// WithAtomwiseAtoms selects the atomic numbers broken out per-element.
func WithAtomwiseAtoms(atomicNumbers ...int) Option {
	return func(e *Evaluator) { e.trackedZ = atomicNumbers }
}

// WithAtomwiseMetrics overrides which metrics get per-element breakdowns.
func WithAtomwiseMetrics(kinds ...Kind) Option {
	return func(e *Evaluator) {
		e.atomwise = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			e.atomwise[k] = true
		}
	}
}

// NewEvaluator builds the evaluator for a task. Every metric kind's attribute
// requirements are checked against the task's attribute list here, once, so
// Eval can assume a consistent configuration.
func NewEvaluator(task Task, opts ...Option) (*Evaluator, error) {
	kinds, ok := taskMetrics[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	e := &Evaluator{
		task:     task,
		kinds:    kinds,
		attrs:    taskAttributes[task],
		atomwise: make(map[Kind]bool),
	}
	for _, k := range taskAtomwise[task] {
		e.atomwise[k] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	have := make(map[Attr]bool, len(e.attrs))
	for _, a := range e.attrs {
		have[a] = true
	}
	for _, k := range e.kinds {
		for _, a := range k.requires() {
			// PBC rides along with cells, not a checked attribute.
			if !have[a] {
				return nil, fmt.Errorf("%w: %s needs %s", ErrUnsupportedMetric, k, attrNames[a])
			}
		}
	}
	for k := range e.atomwise {
		if !have[k.field()] {
			return nil, fmt.Errorf("%w: atomwise %s needs %s", ErrUnsupportedMetric, k, attrNames[k.field()])
		}
	}
	return e, nil
}

func (e *Evaluator) Task() Task { return e.task }

// Primary names the task's headline metric.
func (e *Evaluator) Primary() Kind { return taskPrimary[e.task] }

// Eval computes every configured metric over one (prediction, target) pair
// and merges the results into prev (which may be nil). Missing required
// attributes or shape mismatches are caller bugs and fail immediately.
// atomicNumbers, when given, enables the per-element breakdowns.
func (e *Evaluator) Eval(prediction, target *Values, prev Metrics, atomicNumbers []int) (Metrics, error) {
	for _, a := range e.attrs {
		if !prediction.has(a) || !target.has(a) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, attrNames[a])
		}
		if prediction.dim(a) != target.dim(a) {
			return nil, fmt.Errorf("%w: %s %d vs %d", ErrShapeMismatch, attrNames[a], prediction.dim(a), target.dim(a))
		}
	}
	if err := crossCheck(target); err != nil {
		return nil, err
	}

	metrics := prev
	if metrics == nil {
		metrics = make(Metrics)
	}
	for _, k := range e.kinds {
		update(metrics, k.String(), k.eval(prediction, target))
		if atomicNumbers != nil && e.atomwise[k] {
			e.evalAtomwise(metrics, k, prediction, target, atomicNumbers)
		}
	}
	return metrics, nil
}

// crossCheck verifies the per-atom tensors agree with the natoms partition
// and the per-structure tensors with its length. Prediction shapes already
// matched target shapes attribute by attribute, so checking target suffices.
func crossCheck(target *Values) error {
	if !target.has(AttrNatoms) {
		return nil
	}
	atoms := 0
	for _, n := range target.Natoms {
		atoms += n
	}
	if target.has(AttrEnergy) && len(target.Energy) != len(target.Natoms) {
		return fmt.Errorf("%w: %d structures in natoms vs %d energies", ErrShapeMismatch, len(target.Natoms), len(target.Energy))
	}
	if target.has(AttrForces) && len(target.Forces) != 3*atoms {
		return fmt.Errorf("%w: natoms sum %d atoms vs %d force values", ErrShapeMismatch, atoms, len(target.Forces))
	}
	if target.has(AttrPositions) && len(target.Positions) != 3*atoms {
		return fmt.Errorf("%w: natoms sum %d atoms vs %d position values", ErrShapeMismatch, atoms, len(target.Positions))
	}
	if target.has(AttrCell) && len(target.Cells) != 9*len(target.Natoms) {
		return fmt.Errorf("%w: %d structures in natoms vs %d cell values", ErrShapeMismatch, len(target.Natoms), len(target.Cells))
	}
	return nil
}

// evalAtomwise repeats one metric once per tracked atomic number, zeroing the
// contribution of every other atom first. The element count is scaled by the
// spatial dimensionality (3) times the number of matching atoms.
func (e *Evaluator) evalAtomwise(metrics Metrics, k Kind, prediction, target *Values, atomicNumbers []int) {
	for _, z := range e.trackedZ {
		count := 0
		for _, zi := range atomicNumbers {
			if zi == z {
				count++
			}
		}
		p := maskValues(prediction, k.field(), atomicNumbers, z)
		t := maskValues(target, k.field(), atomicNumbers, z)
		m := k.eval(p, t)
		m.Numel = 3 * count
		if m.Numel > 0 {
			m.Metric = m.Total / float64(m.Numel)
		}
		update(metrics, "atomwise_"+ElementLabel(z)+"_"+k.String(), m)
	}
}

// maskValues shallow-copies v with the measured field cloned and rows of
// non-matching atoms zeroed, leaving the caller's tensors untouched.
func maskValues(v *Values, field Attr, atomicNumbers []int, z int) *Values {
	out := *v
	if field == AttrForces {
		out.Forces = append([]float64(nil), v.Forces...)
		for i, zi := range atomicNumbers {
			if zi != z {
				out.Forces[3*i], out.Forces[3*i+1], out.Forces[3*i+2] = 0, 0, 0
			}
		}
	} else {
		out.Energy = append([]float64(nil), v.Energy...)
		for i, zi := range atomicNumbers {
			if zi != z && i < len(out.Energy) {
				out.Energy[i] = 0
			}
		}
	}
	return &out
}

func update(metrics Metrics, key string, m Metric) {
	cur := metrics[key]
	cur.Total += m.Total
	cur.Numel += m.Numel
	if cur.Numel > 0 {
		cur.Metric = cur.Total / float64(cur.Numel)
	}
	metrics[key] = cur
}

// ElementLabel is the chemical symbol for an atomic number, or the number
// itself when unknown.
func ElementLabel(z int) string {
	if z >= 1 && z <= len(elementSymbols) {
		return elementSymbols[z-1]
	}
	return strconv.Itoa(z)
}
