package cgcnn

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/learn-decentralized-systems/toytlv"
)

var ErrBadRecord = errors.New("cgcnn: bad sample record")

// Stored sample wire format, ToyTLV records inside one 'A' envelope:
//
//	A { I system-id, P positions, Z atomic numbers, C cell,
//	    B pbc flags, X fixed mask, E energy, F forces }
//
// Float tensors are packed little-endian float64, atomic numbers as uint16.
// F is omitted when the sample carries no forces.

func appendFloats(into []byte, vals []float64) []byte {
	for _, v := range vals {
		into = binary.LittleEndian.AppendUint64(into, math.Float64bits(v))
	}
	return into
}

func takeFloats(body []byte) ([]float64, bool) {
	if len(body)%8 != 0 {
		return nil, false
	}
	out := make([]float64, len(body)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*i:]))
	}
	return out, true
}

func packBools(flags []bool) []byte {
	out := make([]byte, (len(flags)+7)/8)
	for i, f := range flags {
		if f {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBools(body []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		if i/8 < len(body) && body[i/8]&(1<<(i%8)) != 0 {
			out[i] = true
		}
	}
	return out
}

// EncodeSystem serializes a system into one TLV record suitable for shard
// storage or trajectory frames.
func EncodeSystem(a *AtomicSystem) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	zs := make([]byte, 2*len(a.AtomicNumbers))
	for i, z := range a.AtomicNumbers {
		binary.LittleEndian.PutUint16(zs[2*i:], uint16(z))
	}
	fixed := a.Fixed
	if fixed == nil {
		fixed = make([]bool, a.Natoms)
	}
	body := toytlv.Concat(
		toytlv.Record('I', []byte(a.SystemID)),
		toytlv.Record('P', appendFloats(nil, a.Positions)),
		toytlv.Record('Z', zs),
		toytlv.Record('C', appendFloats(nil, a.Cell[:])),
		toytlv.Record('B', packBools(a.PBC[:])),
		toytlv.Record('X', packBools(fixed)),
		toytlv.Record('E', binary.LittleEndian.AppendUint64(nil, math.Float64bits(a.Energy))),
	)
	if a.Forces != nil {
		body = append(body, toytlv.Record('F', appendFloats(nil, a.Forces))...)
	}
	return toytlv.Record('A', body), nil
}

// DecodeSystem parses a record produced by EncodeSystem.
func DecodeSystem(data []byte) (*AtomicSystem, error) {
	body, _ := toytlv.Take('A', data)
	if body == nil {
		return nil, ErrBadRecord
	}
	return decodeBody(body)
}

// DecodeStream parses a concatenation of EncodeSystem records, e.g. a
// trajectory file.
func DecodeStream(data []byte) ([]*AtomicSystem, error) {
	var out []*AtomicSystem
	for len(data) > 0 {
		body, rest := toytlv.Take('A', data)
		if body == nil {
			return nil, ErrBadRecord
		}
		a, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		data = rest
	}
	return out, nil
}

func decodeBody(body []byte) (*AtomicSystem, error) {
	id, rest := toytlv.Take('I', body)
	pos, rest := toytlv.Take('P', rest)
	zs, rest := toytlv.Take('Z', rest)
	cell, rest := toytlv.Take('C', rest)
	pbc, rest := toytlv.Take('B', rest)
	fixed, rest := toytlv.Take('X', rest)
	energy, rest := toytlv.Take('E', rest)
	if pos == nil || zs == nil || cell == nil || pbc == nil || fixed == nil || energy == nil {
		return nil, ErrBadRecord
	}
	positions, ok := takeFloats(pos)
	if !ok || len(zs)%2 != 0 || len(zs)/2 != len(positions)/3 {
		return nil, ErrBadRecord
	}
	cellVals, ok := takeFloats(cell)
	if !ok || len(cellVals) != 9 || len(energy) != 8 {
		return nil, ErrBadRecord
	}
	a := &AtomicSystem{
		SystemID:      string(id),
		Natoms:        len(positions) / 3,
		Positions:     positions,
		AtomicNumbers: make([]int, len(zs)/2),
		Energy:        math.Float64frombits(binary.LittleEndian.Uint64(energy)),
	}
	copy(a.Cell[:], cellVals)
	copy(a.PBC[:], unpackBools(pbc, 3))
	a.Fixed = unpackBools(fixed, a.Natoms)
	for i := range a.AtomicNumbers {
		a.AtomicNumbers[i] = int(binary.LittleEndian.Uint16(zs[2*i:]))
	}
	if forces, _ := toytlv.Take('F', rest); forces != nil {
		fs, ok := takeFloats(forces)
		if !ok || len(fs) != 3*a.Natoms {
			return nil, ErrBadRecord
		}
		a.Forces = fs
	}
	return a, a.Validate()
}
