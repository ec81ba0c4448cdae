package crange

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// allocator hands out range nodes from a pool under an optional budget.
// Nodes come back only through the epoch domain, after quiescence.
type allocator struct {
	pool   sync.Pool
	budget *semaphore.Weighted // nil if unlimited
	live   atomic.Int64
}

func newAllocator(limit int64) *allocator {
	a := &allocator{
		pool: sync.Pool{New: func() any { return new(Range) }},
	}
	if limit > 0 {
		a.budget = semaphore.NewWeighted(limit)
	}
	return a
}

func (a *allocator) acquireNode(cr *Index, key, size uint64, level int, value any) (*Range, error) {
	if a.budget != nil && !a.budget.TryAcquire(1) {
		return nil, ErrNoMemory
	}

	n := a.pool.Get().(*Range)
	n.key = key
	n.size = size
	n.value = value
	n.nlevel = level
	n.cr = cr
	n.curLevel.Store(0)
	n.freed.Store(false)
	a.live.Add(1)
	return n, nil
}

func (a *allocator) releaseNode(n *Range) {
	if n == nil || n.freed.Load() {
		return
	}

	// Poison before pooling so a stale reference is detectable in tests.
	n.freed.Store(true)
	n.key = 0
	n.size = 0
	n.value = nil
	for i := range n.next {
		n.next[i].reset()
	}

	a.live.Add(-1)
	if a.budget != nil {
		a.budget.Release(1)
	}
	a.pool.Put(n)
}

// Reclaim implements epoch.Retirable. It runs once every guard that could
// still reference r has exited.
func (r *Range) Reclaim() {
	r.cr.alloc.releaseNode(r)
}
