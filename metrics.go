package crange

import (
	"math/bits"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type metricShard struct {
	searches      atomic.Int64
	lockRetries   atomic.Int64
	indexRetries  atomic.Int64
	replaces      atomic.Int64
	inserted      atomic.Int64
	removed       atomic.Int64
	promotions    atomic.Int64
	allocFailures atomic.Int64
	length        atomic.Int64
	_             cpu.CacheLinePad
}

// Metrics holds sharded operation counters for one index.
type Metrics struct {
	shards []metricShard
	mask   uint32
}

// Stats is a point-in-time sum of an index's counters.
type Stats struct {
	Len           int64
	Searches      int64
	LockRetries   int64
	IndexRetries  int64
	Replaces      int64
	Inserted      int64
	Removed       int64
	Promotions    int64
	AllocFailures int64
}

func newMetrics() *Metrics {
	shardCount := nextPowerOfTwo(max(runtime.GOMAXPROCS(0), 1))
	return &Metrics{
		shards: make([]metricShard, shardCount),
		mask:   uint32(shardCount - 1),
	}
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

// shard picks a shard from the runtime's per-thread generator, so counting
// shares no word between goroutines.
func (m *Metrics) shard() *metricShard {
	if len(m.shards) == 1 {
		return &m.shards[0]
	}
	return &m.shards[rand.Uint32()&m.mask]
}

func (m *Metrics) incSearch()       { m.shard().searches.Add(1) }
func (m *Metrics) incLockRetry()    { m.shard().lockRetries.Add(1) }
func (m *Metrics) incIndexRetry()   { m.shard().indexRetries.Add(1) }
func (m *Metrics) incPromotion()    { m.shard().promotions.Add(1) }
func (m *Metrics) incAllocFailure() { m.shard().allocFailures.Add(1) }

func (m *Metrics) addReplace(removed, inserted int) {
	s := m.shard()
	s.replaces.Add(1)
	s.removed.Add(int64(removed))
	s.inserted.Add(int64(inserted))
	s.length.Add(int64(inserted - removed))
}

// Len returns the number of live ranges.
func (m *Metrics) Len() int64 {
	var total int64
	for i := range m.shards {
		total += m.shards[i].length.Load()
	}
	return total
}

// Snapshot sums every shard.
func (m *Metrics) Snapshot() Stats {
	var s Stats
	for i := range m.shards {
		sh := &m.shards[i]
		s.Len += sh.length.Load()
		s.Searches += sh.searches.Load()
		s.LockRetries += sh.lockRetries.Load()
		s.IndexRetries += sh.indexRetries.Load()
		s.Replaces += sh.replaces.Load()
		s.Inserted += sh.inserted.Load()
		s.Removed += sh.removed.Load()
		s.Promotions += sh.promotions.Load()
		s.AllocFailures += sh.allocFailures.Load()
	}
	return s
}
