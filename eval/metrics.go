package eval

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Metric is one accumulated statistic: Metric is always Total/Numel, so
// merging across mini-batches is just adding totals and counts. For
// threshold metrics Total is a success count and Numel a structure count;
// callers treat both shapes uniformly.
type Metric struct {
	Metric float64
	Total  float64
	Numel  int
}

type Metrics map[string]Metric

// Kind is the closed set of metric functions. Each kind evaluates to a
// (mean, total, count) triple over a (prediction, target) pair.
type Kind int

const (
	EnergyMAE Kind = iota
	EnergyMSE
	ForcesXMAE
	ForcesYMAE
	ForcesZMAE
	ForcesMAE
	ForcesCos
	ForcesMagnitude
	PositionsMAE
	PositionsMSE
	EnergyForceWithinThreshold
	EnergyWithinThreshold
	AverageDistanceWithinThreshold
)

const (
	energyThreshold = 0.02
	forcesThreshold = 0.03
)

var kindNames = map[Kind]string{
	EnergyMAE:                      "energy_mae",
	EnergyMSE:                      "energy_mse",
	ForcesXMAE:                     "forcesx_mae",
	ForcesYMAE:                     "forcesy_mae",
	ForcesZMAE:                     "forcesz_mae",
	ForcesMAE:                      "forces_mae",
	ForcesCos:                      "forces_cos",
	ForcesMagnitude:                "forces_magnitude",
	PositionsMAE:                   "positions_mae",
	PositionsMSE:                   "positions_mse",
	EnergyForceWithinThreshold:     "energy_force_within_threshold",
	EnergyWithinThreshold:          "energy_within_threshold",
	AverageDistanceWithinThreshold: "average_distance_within_threshold",
}

func (k Kind) String() string { return kindNames[k] }

// requires lists the attributes a kind reads from both prediction and target.
func (k Kind) requires() []Attr {
	switch k {
	case EnergyMAE, EnergyMSE, EnergyWithinThreshold:
		return []Attr{AttrEnergy}
	case ForcesXMAE, ForcesYMAE, ForcesZMAE, ForcesMAE, ForcesCos, ForcesMagnitude:
		return []Attr{AttrForces}
	case PositionsMAE, PositionsMSE:
		return []Attr{AttrPositions}
	case EnergyForceWithinThreshold:
		return []Attr{AttrEnergy, AttrForces, AttrNatoms}
	case AverageDistanceWithinThreshold:
		return []Attr{AttrPositions, AttrNatoms, AttrCell}
	}
	return nil
}

// field names the tensor a kind measures, for atom-wise masking.
func (k Kind) field() Attr {
	switch k {
	case ForcesXMAE, ForcesYMAE, ForcesZMAE, ForcesMAE, ForcesCos, ForcesMagnitude:
		return AttrForces
	default:
		return AttrEnergy
	}
}

func (k Kind) eval(prediction, target *Values) Metric {
	switch k {
	case EnergyMAE:
		return absoluteError(prediction.Energy, target.Energy)
	case EnergyMSE:
		return squaredError(prediction.Energy, target.Energy)
	case ForcesXMAE:
		return absoluteError(column(prediction.Forces, 0), column(target.Forces, 0))
	case ForcesYMAE:
		return absoluteError(column(prediction.Forces, 1), column(target.Forces, 1))
	case ForcesZMAE:
		return absoluteError(column(prediction.Forces, 2), column(target.Forces, 2))
	case ForcesMAE:
		return absoluteError(prediction.Forces, target.Forces)
	case ForcesCos:
		return cosineSimilarity(prediction.Forces, target.Forces)
	case ForcesMagnitude:
		return magnitudeError(prediction.Forces, target.Forces)
	case PositionsMAE:
		return absoluteError(prediction.Positions, target.Positions)
	case PositionsMSE:
		return squaredError(prediction.Positions, target.Positions)
	case EnergyForceWithinThreshold:
		return energyForceWithinThreshold(prediction, target)
	case EnergyWithinThreshold:
		return energyWithinThreshold(prediction, target)
	case AverageDistanceWithinThreshold:
		return averageDistanceWithinThreshold(prediction, target)
	}
	return Metric{}
}

func column(flat []float64, d int) []float64 {
	out := make([]float64, len(flat)/3)
	for i := range out {
		out[i] = flat[3*i+d]
	}
	return out
}

func absoluteError(prediction, target []float64) Metric {
	var total float64
	for i := range prediction {
		total += math.Abs(target[i] - prediction[i])
	}
	return Metric{Metric: total / float64(len(prediction)), Total: total, Numel: len(prediction)}
}

func squaredError(prediction, target []float64) Metric {
	var total float64
	for i := range prediction {
		d := target[i] - prediction[i]
		total += d * d
	}
	return Metric{Metric: total / float64(len(prediction)), Total: total, Numel: len(prediction)}
}

func cosineSimilarity(prediction, target []float64) Metric {
	n := len(prediction) / 3
	var total float64
	for i := 0; i < n; i++ {
		p := prediction[3*i : 3*i+3]
		t := target[3*i : 3*i+3]
		den := floats.Norm(p, 2) * floats.Norm(t, 2)
		if den == 0 {
			den = 1.0
		}
		total += floats.Dot(p, t) / den
	}
	return Metric{Metric: total / float64(n), Total: total, Numel: n}
}

func magnitudeError(prediction, target []float64) Metric {
	n := len(prediction) / 3
	var total float64
	for i := 0; i < n; i++ {
		total += math.Abs(floats.Norm(prediction[3*i:3*i+3], 2) - floats.Norm(target[3*i:3*i+3], 2))
	}
	return Metric{Metric: total / float64(n), Total: total, Numel: n}
}

// energyForceWithinThreshold counts structures whose energy error is below
// 0.02 and whose largest per-atom force error is below 0.03. The metric is a
// success rate over structures, not a mean error.
func energyForceWithinThreshold(prediction, target *Values) Metric {
	success, total := 0, len(target.Natoms)
	at := 0
	for i, n := range target.Natoms {
		maxForceErr := 0.0
		for j := 3 * at; j < 3*(at+n); j++ {
			if e := math.Abs(target.Forces[j] - prediction.Forces[j]); e > maxForceErr {
				maxForceErr = e
			}
		}
		if math.Abs(target.Energy[i]-prediction.Energy[i]) < energyThreshold && maxForceErr < forcesThreshold {
			success++
		}
		at += n
	}
	return Metric{Metric: float64(success) / float64(total), Total: float64(success), Numel: total}
}

func energyWithinThreshold(prediction, target *Values) Metric {
	success, total := 0, len(target.Energy)
	for i := range target.Energy {
		if math.Abs(target.Energy[i]-prediction.Energy[i]) < energyThreshold {
			success++
		}
	}
	return Metric{Metric: float64(success) / float64(total), Total: float64(success), Numel: total}
}

// averageDistanceWithinThreshold sweeps distance thresholds 0.01..0.5 in
// 0.001 steps and counts (structure, threshold) pairs where the mean per-atom
// displacement, under the periodic minimum-image convention, is below the
// threshold.
func averageDistanceWithinThreshold(prediction, target *Values) Metric {
	meanDistance := make([]float64, 0, len(target.Natoms))
	at := 0
	for i, n := range target.Natoms {
		diff := minDiff(
			prediction.Positions[3*at:3*(at+n)],
			target.Positions[3*at:3*(at+n)],
			target.Cells[9*i:9*i+9],
			target.PBC,
		)
		var sum float64
		for j := 0; j < n; j++ {
			sum += floats.Norm(diff[3*j:3*j+3], 2)
		}
		meanDistance = append(meanDistance, sum/float64(n))
		at += n
	}

	success, total := 0, 0
	for t := 10; t < 500; t++ {
		thresh := float64(t) / 1000.0
		for _, d := range meanDistance {
			if d < thresh {
				success++
			}
			total++
		}
	}
	return Metric{Metric: float64(success) / float64(total), Total: float64(success), Numel: total}
}

// minDiff maps position differences into the cell under the minimum-image
// convention: solve for fractional coordinates, wrap periodic axes into
// [-0.5, 0.5), convert back to cartesian.
func minDiff(predPos, targetPos, cell []float64, pbc [3]bool) []float64 {
	n := len(predPos) / 3
	diff := mat.NewDense(3, n, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < 3; d++ {
			diff.Set(d, i, predPos[3*i+d]-targetPos[3*i+d])
		}
	}
	cellT := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			cellT.Set(r, c, cell[3*c+r])
		}
	}
	var frac mat.Dense
	if err := frac.Solve(cellT, diff); err != nil {
		// Singular cell: fall back to the raw cartesian difference.
		return floats.SubTo(make([]float64, len(predPos)), predPos, targetPos)
	}
	for d := 0; d < 3; d++ {
		if !pbc[d] {
			continue
		}
		for i := 0; i < n; i++ {
			v := math.Mod(frac.At(d, i), 1.0)
			if v < 0 {
				v += 1.0
			}
			frac.Set(d, i, v)
		}
	}
	out := make([]float64, 3*n)
	for i := 0; i < n; i++ {
		f := [3]float64{frac.At(0, i), frac.At(1, i), frac.At(2, i)}
		for d := 0; d < 3; d++ {
			if f[d] > 0.5 {
				f[d] -= 1.0
			}
		}
		for d := 0; d < 3; d++ {
			out[3*i+d] = f[0]*cell[d] + f[1]*cell[3+d] + f[2]*cell[6+d]
		}
	}
	return out
}
