// Package crange implements a concurrent index of disjoint half-open ranges
// [key, key+size) over the uint64 key space.
//
// The index is a skip list with one lock per range and no global lock.
// Searches are lock-free and run inside an epoch guard; every mutation goes
// through a Locked view returned by FindAndLock, which holds the locks of the
// predecessor and of every range overlapping the query. Unlinked ranges are
// recycled only after epoch quiescence.
package crange

import (
	"github.com/google/uuid"

	"github.com/metailurini/crange/epoch"
)

// Index is a concurrent range index.
type Index struct {
	id      uuid.UUID
	nlevel  int
	head    *Range
	domain  *epoch.Domain
	alloc   *allocator
	rng     *RNG
	metrics *Metrics
	logger  *Logger
}

// New returns an empty index.
func New(opts ...Option) *Index {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rng := newRNG()
	if o.seed != 0 {
		rng = newRNGWithSeed(o.seed)
	}
	domain := o.domain
	if domain == nil {
		domain = epoch.New()
	}
	logger := o.logger
	if logger == nil {
		logger = NoopLogger()
	}

	c := &Index{
		id:      uuid.New(),
		nlevel:  o.levels,
		domain:  domain,
		alloc:   newAllocator(o.nodeLimit),
		rng:     rng,
		metrics: newMetrics(),
	}
	c.logger = logger.WithIndex(c.id.String())
	c.head = newHead(c, c.nlevel)

	c.logger.Debug("index created", "levels", c.nlevel, "node_limit", o.nodeLimit)
	return c
}

// ID returns the identity used to tag this index in logs and metrics.
func (c *Index) ID() uuid.UUID { return c.id }

// Levels returns the maximum tower height.
func (c *Index) Levels() int { return c.nlevel }

// Domain returns the reclamation domain guarding this index.
func (c *Index) Domain() *epoch.Domain { return c.domain }

// Len returns the number of live ranges.
func (c *Index) Len() int64 { return c.metrics.Len() }

// Stats returns a snapshot of the index counters.
func (c *Index) Stats() Stats { return c.metrics.Snapshot() }

// NewRange allocates an unlinked range with a random tower height. It fails
// with ErrNoMemory when the node budget is exhausted, and with ErrEmptyRange
// when the range covers no key: a zero size, or a start at math.MaxUint64
// where the saturated end equals the key.
func (c *Index) NewRange(key, size uint64, value any) (*Range, error) {
	return c.NewRangeLevels(key, size, c.rng.RandomLevel(c.nlevel), value)
}

// NewRangeLevels is NewRange with an explicit tower height, clamped to
// [1, Levels()].
func (c *Index) NewRangeLevels(key, size uint64, levels int, value any) (*Range, error) {
	if rangeEnd(key, size) == key {
		return nil, ErrEmptyRange
	}
	levels = min(max(levels, 1), c.nlevel)
	r, err := c.alloc.acquireNode(c, key, size, levels, value)
	if err != nil {
		c.metrics.incAllocFailure()
		c.logger.LogAllocFailure(key, size, err)
		return nil, err
	}
	return r, nil
}

// Discard returns a range that was never linked to the allocator.
func (c *Index) Discard(r *Range) {
	if r == nil {
		return
	}
	if r.cr != c || !r.fresh() {
		misuse("discard of %v which is linked or foreign", r)
	}
	c.alloc.releaseNode(r)
}

// Search returns the live range overlapping [key, key+size), or nil. It never
// blocks. The result is only an identity: once Search returns, the range may be
// removed, reclaimed and reused by another insert. Callers that read its fields
// while other goroutines mutate the index must use SearchGuarded.
func (c *Index) Search(key, size uint64) *Range {
	g := c.domain.Enter()
	defer g.Exit()
	return c.search(key, size)
}

// SearchGuarded is Search for callers that already hold a guard of Domain().
// The returned range stays valid memory until g exits.
func (c *Index) SearchGuarded(g *epoch.Guard, key, size uint64) *Range {
	if !g.Active() {
		misuse("search with an exited guard")
	}
	return c.search(key, size)
}
