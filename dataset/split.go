package dataset

import (
	"math"

	"github.com/cespare/xxhash"
)

type Split int

const (
	SplitTrain Split = iota
	SplitVal
	SplitTest
)

// AssignSplit deterministically places a physical system into a split by
// hashing its id. Every sample of a system lands in the same split, on every
// machine, for any shard layout.
func AssignSplit(systemID string, valFrac, testFrac float64) Split {
	u := float64(xxhash.Sum64([]byte(systemID))) / float64(math.MaxUint64)
	switch {
	case u < valFrac:
		return SplitVal
	case u < valFrac+testFrac:
		return SplitTest
	default:
		return SplitTrain
	}
}

// SplitIndices partitions the dataset's global sample indices by system,
// using AssignSplit. Requires manifests; returns nils without them.
func (d *Dataset) SplitIndices(valFrac, testFrac float64) (train, val, test []int) {
	if d.systems == nil {
		return nil, nil, nil
	}
	for _, id := range d.sysOrder {
		samples := d.systems[id]
		switch AssignSplit(id, valFrac, testFrac) {
		case SplitVal:
			val = append(val, samples...)
		case SplitTest:
			test = append(test, samples...)
		default:
			train = append(train, samples...)
		}
	}
	return train, val, test
}
