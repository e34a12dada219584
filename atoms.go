package cgcnn

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBatch     = errors.New("cgcnn: collating an empty system list")
	ErrBatchInvalid   = errors.New("cgcnn: batch invariant violated")
	ErrLengthMismatch = errors.New("cgcnn: tensor length does not match atom count")
)

// AtomicSystem is one independent atomic structure. Positions and Forces are
// flat row-major tensors of length 3*Natoms. Immutable once loaded, except
// positions which a relaxation run updates in place.
type AtomicSystem struct {
	SystemID      string
	Natoms        int
	Positions     []float64
	AtomicNumbers []int
	Cell          [9]float64
	PBC           [3]bool
	Fixed         []bool
	Energy        float64
	Forces        []float64
}

func (a *AtomicSystem) Validate() error {
	if len(a.Positions) != 3*a.Natoms {
		return fmt.Errorf("%w: positions %d, natoms %d", ErrLengthMismatch, len(a.Positions), a.Natoms)
	}
	if len(a.AtomicNumbers) != a.Natoms {
		return fmt.Errorf("%w: atomic numbers %d, natoms %d", ErrLengthMismatch, len(a.AtomicNumbers), a.Natoms)
	}
	if a.Fixed != nil && len(a.Fixed) != a.Natoms {
		return fmt.Errorf("%w: fixed mask %d, natoms %d", ErrLengthMismatch, len(a.Fixed), a.Natoms)
	}
	if a.Forces != nil && len(a.Forces) != 3*a.Natoms {
		return fmt.Errorf("%w: forces %d, natoms %d", ErrLengthMismatch, len(a.Forces), a.Natoms)
	}
	return nil
}

// Batch is a contiguous concatenation of K systems' atoms into flat tensors.
// BatchIndices maps every atom to its owning system; it is monotonically
// non-decreasing and partitions atoms by system. One relaxation run owns a
// Batch exclusively and mutates positions, energy and forces in place.
type Batch struct {
	SystemIDs     []string
	Natoms        []int
	BatchIndices  []int
	Positions     []float64
	AtomicNumbers []int
	Fixed         []bool
	Cells         []float64 // 9 per system, row-major
	PBC           [3]bool
	Energy        []float64 // per system
	Forces        []float64 // per atom
}

func (b *Batch) NumSystems() int { return len(b.Natoms) }

func (b *Batch) NumAtoms() int { return len(b.BatchIndices) }

// Validate checks the batch partition invariant: sum(Natoms) equals the total
// atom count and BatchIndices walks systems 0..K-1 in order.
func (b *Batch) Validate() error {
	total := 0
	for _, n := range b.Natoms {
		total += n
	}
	if total != len(b.BatchIndices) {
		return fmt.Errorf("%w: natoms sum %d, batch indices %d", ErrBatchInvalid, total, len(b.BatchIndices))
	}
	if len(b.Positions) != 3*total {
		return fmt.Errorf("%w: positions %d, atoms %d", ErrBatchInvalid, len(b.Positions), total)
	}
	at := 0
	for sys, n := range b.Natoms {
		for i := 0; i < n; i++ {
			if b.BatchIndices[at] != sys {
				return fmt.Errorf("%w: atom %d owned by %d, want %d", ErrBatchInvalid, at, b.BatchIndices[at], sys)
			}
			at++
		}
	}
	return nil
}

// Collate packs independent systems into one Batch. Per-axis periodicity must
// agree across the batch; the first system's flags win, mixed batches are a
// caller bug the same way mismatched shapes are.
func Collate(systems []*AtomicSystem) (*Batch, error) {
	if len(systems) == 0 {
		return nil, ErrEmptyBatch
	}
	total := 0
	for _, s := range systems {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		total += s.Natoms
	}
	b := &Batch{
		SystemIDs:     make([]string, 0, len(systems)),
		Natoms:        make([]int, 0, len(systems)),
		BatchIndices:  make([]int, 0, total),
		Positions:     make([]float64, 0, 3*total),
		AtomicNumbers: make([]int, 0, total),
		Fixed:         make([]bool, 0, total),
		Cells:         make([]float64, 0, 9*len(systems)),
		PBC:           systems[0].PBC,
		Energy:        make([]float64, 0, len(systems)),
		Forces:        make([]float64, 0, 3*total),
	}
	for sys, s := range systems {
		b.SystemIDs = append(b.SystemIDs, s.SystemID)
		b.Natoms = append(b.Natoms, s.Natoms)
		for i := 0; i < s.Natoms; i++ {
			b.BatchIndices = append(b.BatchIndices, sys)
		}
		b.Positions = append(b.Positions, s.Positions...)
		b.AtomicNumbers = append(b.AtomicNumbers, s.AtomicNumbers...)
		if s.Fixed != nil {
			b.Fixed = append(b.Fixed, s.Fixed...)
		} else {
			b.Fixed = append(b.Fixed, make([]bool, s.Natoms)...)
		}
		b.Cells = append(b.Cells, s.Cell[:]...)
		b.Energy = append(b.Energy, s.Energy)
		if s.Forces != nil {
			b.Forces = append(b.Forces, s.Forces...)
		} else {
			b.Forces = append(b.Forces, make([]float64, 3*s.Natoms)...)
		}
	}
	return b, nil
}

// Systems splits the batch back into per-system structures. The returned
// systems copy their tensors, so trajectory snapshots stay stable while the
// batch keeps mutating.
func (b *Batch) Systems() []*AtomicSystem {
	out := make([]*AtomicSystem, 0, b.NumSystems())
	at := 0
	for sys, n := range b.Natoms {
		s := &AtomicSystem{
			Natoms:        n,
			Positions:     append([]float64(nil), b.Positions[3*at:3*(at+n)]...),
			AtomicNumbers: append([]int(nil), b.AtomicNumbers[at:at+n]...),
			PBC:           b.PBC,
			Fixed:         append([]bool(nil), b.Fixed[at:at+n]...),
		}
		if len(b.SystemIDs) == b.NumSystems() {
			s.SystemID = b.SystemIDs[sys]
		}
		copy(s.Cell[:], b.Cells[9*sys:9*sys+9])
		if len(b.Energy) == b.NumSystems() {
			s.Energy = b.Energy[sys]
		}
		if len(b.Forces) == len(b.Positions) {
			s.Forces = append([]float64(nil), b.Forces[3*at:3*(at+n)]...)
		}
		out = append(out, s)
		at += n
	}
	return out
}
