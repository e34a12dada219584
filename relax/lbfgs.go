// Package relax implements batched structural relaxation: a limited-memory
// quasi-Newton (L-BFGS) search run in parallel over many independent atomic
// systems packed into one flat batch. Every dot product and scale factor of
// the classic two-loop recursion becomes a per-system value computed by
// segmented reduction, so K independent optimization problems advance inside
// one tensorized update.
package relax

import (
	"errors"
	"fmt"
	"math"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/Open-Catalyst-Project/cgcnn/tensor"
	"github.com/Open-Catalyst-Project/cgcnn/utils"
)

var ErrTrajNames = errors.New("relax: trajectory names must be specified to save trajectories")

// epsStep is the degenerate-step guard: a proposed displacement whose largest
// component is below this is treated as a no-op (stalled or restarted
// trajectory), not applied.
const epsStep = 1e-7

// Options configure an LBFGS run. Zero numeric fields get defaults from
// SetDefaults; DefaultOptions returns the full stock configuration.
type Options struct {
	Maxstep float64 // longest allowed per-atom displacement within a system
	Memory  int     // history entries kept
	Damping float64 // final step scale, < 1
	Alpha   float64 // initial Hessian guess, H0 = 1/Alpha

	// SaveFullTraj writes a snapshot every iteration; otherwise only the
	// first, last and newly-converged frames are written.
	SaveFullTraj bool
	// MaskConverged freezes positions of systems that already hit fmax, even
	// if later noisy predictions suggest a nonzero displacement.
	MaskConverged bool

	TrajDir   string
	TrajNames []string

	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Maxstep == 0 {
		o.Maxstep = 0.01
	}
	if o.Memory == 0 {
		o.Memory = 100
	}
	if o.Damping == 0 {
		o.Damping = 0.25
	}
	if o.Alpha == 0 {
		o.Alpha = 100.0
	}
	if o.Logger == nil {
		o.Logger = utils.NewNopLogger()
	}
}

func DefaultOptions() Options {
	o := Options{SaveFullTraj: true, MaskConverged: true}
	o.SetDefaults()
	return o
}

// LBFGS drives one Optimizable batch to force equilibrium.
type LBFGS struct {
	optimizable Optimizable
	opts        Options
	h0          float64

	fmax  float64
	steps int

	hist   *history
	r0, f0 []float64

	trajs []*TrajectoryWriter
	stats *RunStats
}

func NewLBFGS(opt Optimizable, opts Options) (*LBFGS, error) {
	opts.SetDefaults()
	if opts.TrajDir != "" && len(opts.TrajNames) != opt.NumSystems() {
		return nil, ErrTrajNames
	}
	l := &LBFGS{
		optimizable: opt,
		opts:        opts,
		h0:          1.0 / opts.Alpha,
		stats:       &RunStats{},
	}
	if !opt.OnTheFlyGraph() {
		opt.UpdateGraph()
	}
	return l, nil
}

// Stats exposes run counters, e.g. for a prometheus Collector.
func (l *LBFGS) Stats() *RunStats { return l.stats }

// Run iterates until every system's max free-atom force drops below fmax or
// the step budget is exhausted, whichever comes first. The batch comes back
// with final positions, per-system energies and per-atom forces. Converged
// systems are frozen for the rest of the run.
func (l *LBFGS) Run(fmax float64, steps int) (*cgcnn.Batch, error) {
	l.fmax = fmax
	l.steps = steps
	l.hist = newHistory(l.opts.Memory)
	l.r0, l.f0 = nil, nil
	l.stats.Runs.Add(1)

	if err := l.openTrajectories(); err != nil {
		return nil, err
	}
	defer l.closeTrajectories()

	nsys := l.optimizable.NumSystems()
	convergedMask := make([]bool, nsys)
	l.opts.Logger.Info("step fmax(eV/A)")

	var energy, forces []float64
	iteration := 0
	for {
		var below []bool
		below, energy, forces = l.checkConvergence(iteration)
		converged := true
		for i := range convergedMask {
			// Models can have random noise in their predictions; once a
			// system hits the convergence criteria it stays converged.
			convergedMask[i] = convergedMask[i] || below[i]
			converged = converged && convergedMask[i]
		}

		if l.trajs != nil && (l.opts.SaveFullTraj || converged || iteration == l.steps-1 || iteration == 0) {
			l.writeFrames(energy, forces, convergedMask)
		}

		if converged || iteration >= l.steps-1 {
			break
		}
		l.step(iteration, forces, convergedMask)
		l.stats.Iterations.Add(1)
		iteration++
	}

	for _, c := range convergedMask {
		if c {
			l.stats.Converged.Add(1)
		}
	}

	b := l.optimizable.Batch()
	b.Energy = energy
	b.Forces = forces
	return b, nil
}

func (l *LBFGS) checkConvergence(iteration int) (below []bool, energy, forces []float64) {
	energy = l.optimizable.PotentialEnergies()
	forces = l.optimizable.Forces(true)
	maxForces := l.optimizable.MaxForces()

	msg := fmt.Sprintf("%d", iteration)
	for _, f := range maxForces {
		msg += fmt.Sprintf(" %0.3f", f)
	}
	l.opts.Logger.Info(msg)

	below = make([]bool, len(maxForces))
	for i, f := range maxForces {
		below[i] = f < l.fmax
	}
	return below, energy, forces
}

// step performs one masked L-BFGS update: the two-loop recursion with all
// dot products and scale factors computed per system by segmented reduction,
// then a per-system maxstep clamp, damping, and the degenerate-step guard.
func (l *LBFGS) step(iteration int, forces []float64, convergedMask []bool) {
	ind := l.optimizable.BatchIndices()
	nsys := l.optimizable.NumSystems()
	r := l.optimizable.Positions()

	if iteration > 0 && l.r0 != nil {
		s0 := make([]float64, len(r))
		y0 := make([]float64, len(r))
		for i := range r {
			s0[i] = r[i] - l.r0[i]
			y0[i] = -(forces[i] - l.f0[i])
		}
		den := tensor.DotByKey(y0, s0, ind, 3, nsys)
		rho0 := make([]float64, nsys)
		for i, d := range den {
			if d == 0 {
				// Neutral denominator instead of a non-finite curvature.
				d = 1.0
			}
			rho0[i] = 1.0 / d
		}
		l.hist.Push(s0, y0, rho0)
	}

	loopmax := l.hist.Len()
	alpha := make([][]float64, loopmax)

	q := make([]float64, len(forces))
	for i := range q {
		q[i] = -forces[i]
	}
	for i := loopmax - 1; i >= 0; i-- {
		s, y, rho := l.hist.At(i)
		a := tensor.DotByKey(s, q, ind, 3, nsys)
		for k := range a {
			a[k] *= rho[k]
		}
		alpha[i] = a
		for at, k := range ind {
			for d := 0; d < 3; d++ {
				q[3*at+d] -= a[k] * y[3*at+d]
			}
		}
	}

	z := make([]float64, len(q))
	for i := range z {
		z[i] = l.h0 * q[i]
	}
	for i := 0; i < loopmax; i++ {
		s, y, rho := l.hist.At(i)
		beta := tensor.DotByKey(y, z, ind, 3, nsys)
		for at, k := range ind {
			c := alpha[i][k] - rho[k]*beta[k]
			for d := 0; d < 3; d++ {
				z[3*at+d] += s[3*at+d] * c
			}
		}
	}

	// Descent direction.
	dr := make([]float64, len(z))
	for i := range z {
		dr[i] = -z[i]
	}
	l.determineStep(dr)

	drMax := 0.0
	for _, v := range dr {
		if a := math.Abs(v); a > drMax {
			drMax = a
		}
	}
	if drMax < epsStep {
		// Same configuration again (maybe a restart).
		l.stats.DegenerateSteps.Add(1)
		return
	}

	if l.opts.MaskConverged {
		for at, k := range ind {
			if convergedMask[k] {
				dr[3*at], dr[3*at+1], dr[3*at+2] = 0, 0, 0
			}
		}
	}
	prev := append([]float64(nil), r...)
	for i := range r {
		r[i] += dr[i]
	}
	l.optimizable.SetPositions(r)
	if !l.optimizable.OnTheFlyGraph() {
		l.optimizable.UpdateGraph()
	}

	l.r0 = prev
	l.f0 = forces
}

// determineStep rescales dr in place so that the longest atomic displacement
// within each system does not exceed Maxstep, then applies damping. The clamp
// is per system: one system's oversized step never shrinks another's.
func (l *LBFGS) determineStep(dr []float64) {
	ind := l.optimizable.BatchIndices()
	steplengths := tensor.RowNorms(dr, 3)
	longest := tensor.MaxByKey(steplengths, ind, l.optimizable.NumSystems())
	for at, k := range ind {
		scale := math.Min(longest[k], l.opts.Maxstep) / (longest[k] + epsStep)
		for d := 0; d < 3; d++ {
			dr[3*at+d] *= scale * l.opts.Damping
		}
	}
}
