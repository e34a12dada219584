package cgcnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	sys := makeSystem("mp-1234", 4)
	sys.Energy = -12.75
	sys.Forces = make([]float64, 12)
	sys.Forces[0] = 0.5
	sys.Fixed[3] = true

	rec, err := EncodeSystem(sys)
	require.NoError(t, err)

	got, err := DecodeSystem(rec)
	require.NoError(t, err)
	assert.Equal(t, sys, got)
}

func TestCodecNoForces(t *testing.T) {
	sys := makeSystem("bare", 2)
	rec, err := EncodeSystem(sys)
	require.NoError(t, err)

	got, err := DecodeSystem(rec)
	require.NoError(t, err)
	assert.Nil(t, got.Forces)
	assert.Equal(t, sys.Positions, got.Positions)
}

func TestDecodeStream(t *testing.T) {
	var buf []byte
	for i := 1; i <= 3; i++ {
		rec, err := EncodeSystem(makeSystem("traj", i))
		require.NoError(t, err)
		buf = append(buf, rec...)
	}
	frames, err := DecodeStream(buf)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, 2, frames[1].Natoms)
}

func TestDecodeBadRecord(t *testing.T) {
	_, err := DecodeSystem([]byte("not a record"))
	assert.ErrorIs(t, err, ErrBadRecord)

	_, err = DecodeStream([]byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrBadRecord)
}
