package dataset

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	dir := t.TempDir()
	buildShards(t, dir, 2, 3)

	d, err := Open(dir, Options{CacheSize: 4})
	require.NoError(t, err)
	_, err = d.Get(0)
	require.NoError(t, err)
	_, err = d.Get(0)
	require.NoError(t, err)
	c := NewCollector(d)

	assert.Equal(t, 4, testutil.CollectAndCount(c))

	expected := `
# HELP dataset_samples Total number of samples across all shards
# TYPE dataset_samples gauge
dataset_samples 5
# HELP dataset_reads_total Total number of sample reads
# TYPE dataset_reads_total counter
dataset_reads_total 2
# HELP dataset_cache_hits_total Sample reads served from the record cache
# TYPE dataset_cache_hits_total counter
dataset_cache_hits_total 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dataset_samples", "dataset_reads_total", "dataset_cache_hits_total"))
}
