package dataset

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(z int, natoms int) *cgcnn.AtomicSystem {
	s := &cgcnn.AtomicSystem{
		Natoms:        natoms,
		Positions:     make([]float64, 3*natoms),
		AtomicNumbers: make([]int, natoms),
		Cell:          [9]float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
		Energy:        float64(z),
	}
	for i := range s.AtomicNumbers {
		s.AtomicNumbers[i] = z
		s.Positions[3*i] = float64(z) + 0.1*float64(i)
	}
	return s
}

// buildShards writes shardSizes[i] samples into shard i; each sample's energy
// encodes its global index so reads can be verified. Manifest lines cycle
// through two systems per shard.
func buildShards(t *testing.T, dir string, shardSizes ...int) {
	t.Helper()
	global := 0
	for si, n := range shardSizes {
		w, err := NewWriter(filepath.Join(dir, fmt.Sprintf("data.%04d%s", si, ShardSuffix)))
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			s := sample(1+global%5, 2)
			s.Energy = float64(global)
			src := fmt.Sprintf("traj/sys%d-%d.extxyz", si, i%2)
			require.NoError(t, w.Append(s, src, "frame"))
			global++
		}
		require.NoError(t, w.Close())
	}
}

func TestOpenNoShards(t *testing.T) {
	_, err := Open(t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrNoShards)
}

func TestLenAndResolveBijection(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 3, 1, 4)

	d, err := Open(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 8, d.Len())
	assert.Equal(t, 3, d.NumShards())

	seen := map[[2]int]bool{}
	for i := 0; i < d.Len(); i++ {
		shard, local, err := d.Resolve(i)
		require.NoError(t, err)
		require.Less(t, shard, 3)
		require.GreaterOrEqual(t, local, 0)
		pair := [2]int{shard, local}
		assert.False(t, seen[pair], "pair %v resolved twice", pair)
		seen[pair] = true
	}
	assert.Len(t, seen, d.Len())

	_, _, err = d.Resolve(8)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, _, err = d.Resolve(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestGetReadsEverySample(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 2, 3)

	d, err := Open(dir, Options{})
	require.NoError(t, err)
	for i := 0; i < d.Len(); i++ {
		s, err := d.Get(i)
		require.NoError(t, err)
		assert.Equal(t, float64(i), s.Energy, "sample %d", i)
	}
}

func TestGetIdempotent(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 2)

	d, err := Open(dir, Options{})
	require.NoError(t, err)
	first, err := d.Get(1)
	require.NoError(t, err)
	for r := 0; r < 3; r++ {
		again, err := d.Get(1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestConcurrentReads(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 4)

	d, err := Open(dir, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < d.Len(); i++ {
				if _, err := d.Get(i); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestTransform(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 1)

	d, err := Open(dir, Options{Transform: func(s *cgcnn.AtomicSystem) *cgcnn.AtomicSystem {
		s.Energy += 100
		return s
	}})
	require.NoError(t, err)
	s, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Energy)
}

func TestRecordCache(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 3)

	d, err := Open(dir, Options{CacheSize: 8})
	require.NoError(t, err)
	first, err := d.Get(2)
	require.NoError(t, err)
	cached, err := d.Get(2)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.EqualValues(t, 1, d.cacheHits.Value())
}

func TestSystemSamples(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 4)

	d, err := Open(dir, Options{})
	require.NoError(t, err)
	systems := d.SystemSamples()
	require.NotNil(t, systems)
	// Manifest alternates sys0-0, sys0-1 within the single shard.
	assert.Equal(t, []int{0, 2}, systems["sys0-0"])
	assert.Equal(t, []int{1, 3}, systems["sys0-1"])
	assert.Equal(t, []string{"sys0-0", "sys0-1"}, d.SystemIDs())
}

func TestSplitIndicesKeepSystemsTogether(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 4, 4)

	d, err := Open(dir, Options{})
	require.NoError(t, err)
	train, val, test := d.SplitIndices(0.3, 0.3)
	assert.Len(t, append(append(train, val...), test...), d.Len())

	// Every sample of a system must land in a single split.
	place := map[int]int{}
	for _, i := range train {
		place[i] = 0
	}
	for _, i := range val {
		place[i] = 1
	}
	for _, i := range test {
		place[i] = 2
	}
	for id, samples := range d.SystemSamples() {
		for _, i := range samples[1:] {
			assert.Equal(t, place[samples[0]], place[i], "system %s split apart", id)
		}
	}
}

func TestAssignSplitDeterministic(t *testing.T) {
	a := AssignSplit("random-1234", 0.1, 0.1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a, AssignSplit("random-1234", 0.1, 0.1))
	}
}
