// Package dataset presents one logical, randomly indexable dataset over many
// read-only key-value shards. Each shard is a pebble store holding a
// contiguous slice of serialized samples; a cumulative-count index resolves a
// global sample index to a (shard, local) pair. Shard handles are opened per
// access and closed before returning, so independent data-loading workers can
// read concurrently without shared state.
package dataset

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/Open-Catalyst-Project/cgcnn/utils"
	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrNoShards   = errors.New("dataset: no shards found")
	ErrOutOfRange = errors.New("dataset: sample index out of range")
	ErrNoLength   = errors.New("dataset: shard is missing its length record")
)

const (
	ShardSuffix    = ".shard"
	ManifestSuffix = ".txt"
)

// LKey addresses the reserved per-shard sample-count record; SKey addresses
// the sample at a local index. Same 1-byte-prefix key scheme as everywhere
// else in this codebase.
func LKey() []byte { return []byte{'L'} }

func SKey(local uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{'S'}, local)
}

// Transform post-processes a decoded sample before it is returned.
type Transform func(*cgcnn.AtomicSystem) *cgcnn.AtomicSystem

type Options struct {
	Transform Transform
	// CacheSize > 0 keeps that many raw sample records in an LRU cache,
	// skipping the shard open on a hit. Records are decoded per access either
	// way, so transforms never alias cached state.
	CacheSize int
	Logger    utils.Logger
}

// Dataset is the sharded index. Read-only after Open; safe for concurrent use.
type Dataset struct {
	shards     []string
	lengths    []int
	cumulative []int

	systems  map[string][]int
	sysOrder []string

	transform Transform
	cache     *lru.Cache[int, []byte]
	logger    utils.Logger

	// pebble holds a directory lock while a handle is open, so per-shard
	// access is serialized; reads on different shards still run in parallel
	// and callers never see shared mutable state.
	locks []sync.Mutex

	reads     *xsync.Counter
	cacheHits *xsync.Counter
}

// Open scans dir for *.shard stores and optional *.txt manifests and builds
// the index by reading each shard's stored length record. Fails if the
// directory holds no shards.
func Open(dir string, opts Options) (*Dataset, error) {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	shards, err := filepath.Glob(filepath.Join(dir, "*"+ShardSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(shards)
	if len(shards) == 0 {
		return nil, errors.Wrap(ErrNoShards, dir)
	}

	d := &Dataset{
		shards:    shards,
		locks:     make([]sync.Mutex, len(shards)),
		lengths:   make([]int, len(shards)),
		transform: opts.Transform,
		logger:    opts.Logger,
		reads:     xsync.NewCounter(),
		cacheHits: xsync.NewCounter(),
	}
	for i, path := range shards {
		n, err := readShardLength(path)
		if err != nil {
			return nil, errors.Wrapf(err, "shard %s", path)
		}
		d.lengths[i] = n
	}
	d.cumulative = make([]int, len(d.lengths))
	total := 0
	for i, n := range d.lengths {
		total += n
		d.cumulative[i] = total
	}

	if err := d.loadManifests(dir); err != nil {
		return nil, err
	}

	if opts.CacheSize > 0 {
		d.cache, _ = lru.New[int, []byte](opts.CacheSize)
	}
	opts.Logger.Info("dataset open", "dir", dir, "shards", len(shards), "samples", total)
	return d, nil
}

func openShard(path string) (*pebble.DB, error) {
	// Per-access, read-only, no locking between readers: concurrent workers
	// each hold their own short-lived handle.
	return pebble.Open(path, &pebble.Options{ReadOnly: true})
}

func readShardLength(path string) (int, error) {
	db, err := openShard(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	val, closer, err := db.Get(LKey())
	if err == pebble.ErrNotFound {
		return 0, ErrNoLength
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, ErrNoLength
	}
	return int(binary.BigEndian.Uint64(val)), nil
}

// Len is the total sample count across all shards.
func (d *Dataset) Len() int {
	if len(d.cumulative) == 0 {
		return 0
	}
	return d.cumulative[len(d.cumulative)-1]
}

// NumShards reports how many shards back the dataset.
func (d *Dataset) NumShards() int { return len(d.shards) }

// Resolve maps a global sample index to its (shard, local) pair: the first
// shard whose cumulative count exceeds idx owns it.
func (d *Dataset) Resolve(idx int) (shard, local int, err error) {
	if idx < 0 || idx >= d.Len() {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrOutOfRange, idx, d.Len())
	}
	shard = sort.SearchInts(d.cumulative, idx+1)
	local = idx
	if shard > 0 {
		local = idx - d.cumulative[shard-1]
	}
	return shard, local, nil
}

// Get fetches and decodes the sample at a global index, applying the
// configured transform. The shard handle is opened read-only for this single
// lookup and closed before returning.
func (d *Dataset) Get(idx int) (*cgcnn.AtomicSystem, error) {
	raw, err := d.raw(idx)
	if err != nil {
		return nil, err
	}
	sys, err := cgcnn.DecodeSystem(raw)
	if err != nil {
		return nil, err
	}
	if d.transform != nil {
		sys = d.transform(sys)
	}
	return sys, nil
}

func (d *Dataset) raw(idx int) ([]byte, error) {
	d.reads.Inc()
	if d.cache != nil {
		if raw, ok := d.cache.Get(idx); ok {
			d.cacheHits.Inc()
			return raw, nil
		}
	}
	shard, local, err := d.Resolve(idx)
	if err != nil {
		return nil, err
	}
	d.locks[shard].Lock()
	defer d.locks[shard].Unlock()
	db, err := openShard(d.shards[shard])
	if err != nil {
		return nil, errors.Wrapf(err, "shard %s", d.shards[shard])
	}
	defer db.Close()
	val, closer, err := db.Get(SKey(uint64(local)))
	if err != nil {
		return nil, errors.Wrapf(err, "sample %d (shard %d, local %d)", idx, shard, local)
	}
	raw := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Add(idx, raw)
	}
	return raw, nil
}

// SystemSamples returns the mapping from physical-system id to the global
// sample indices of its trajectory, in manifest order. Nil when the dataset
// had no manifests. The map is shared; treat it as read-only.
func (d *Dataset) SystemSamples() map[string][]int { return d.systems }

// SystemIDs lists system ids in first-encountered manifest order.
func (d *Dataset) SystemIDs() []string { return d.sysOrder }
