package crange

import "fmt"

// FindAndLock locks the window of ranges overlapping [key, key+size) together
// with its level-0 predecessor, and returns a view through which the window
// can be replaced. The successor boundary is pinned but not locked.
//
// Locks are always taken in list order, so concurrent views never deadlock;
// views whose windows share ranges serialize on them. The caller must Release
// the view.
func (c *Index) FindAndLock(key, size uint64) *Locked {
	g := c.domain.Enter()
	end := queryEnd(key, size)

	for {
		pred := c.findPred0(key)
		if lockAfterTraverseHook != nil {
			lockAfterTraverseHook(pred)
		}
		pred.mu.Lock()
		if pred.Deleted() {
			// Unlinked between the traversal and the lock; start over.
			pred.mu.Unlock()
			c.metrics.incLockRetry()
			continue
		}

		// Ranges inserted after pred since the traversal may still end before
		// key. Couple past them, never releasing a lock before the next one is held.
		for {
			n := pred.next[0].ptr()
			if n == nil || n.End() > key {
				break
			}
			n.mu.Lock()
			pred.mu.Unlock()
			pred = n
		}

		last := pred
		var succ *Range
		for {
			n := last.next[0].ptr()
			if n == nil || n.key >= end {
				succ = n
				break
			}
			n.mu.Lock()
			last = n
		}

		return &Locked{
			cr:    c,
			key:   key,
			size:  size,
			prev:  pred,
			succ:  succ,
			guard: g,
		}
	}
}

// splice removes old, the contiguous level-0 run after pred, and links rs in
// its place before succ. pred, old and succ's predecessor must be locked by
// the caller.
func (c *Index) splice(pred *Range, old, rs []*Range, succ *Range) {
	for _, r := range rs {
		r.mu.Lock()
	}

	// Demote top-down so no reader finds a range on a higher level after it
	// left a lower one.
	for _, e := range old {
		for l := e.nlevel - 1; l > 0; l-- {
			e.next[l].setMark()
		}
		for l := int(e.curLevel.Load()) - 1; l > 0; l-- {
			c.delIndex(e, l)
		}
	}

	for i, r := range rs {
		nx := succ
		if i+1 < len(rs) {
			nx = rs[i+1]
		}
		r.next[0].store(nx, false)
		r.curLevel.Store(1)
	}

	for _, e := range old {
		e.next[0].setMark()
	}
	if replaceBeforeSwingHook != nil {
		replaceBeforeSwingHook()
	}
	first := succ
	if len(rs) > 0 {
		first = rs[0]
	}
	pred.next[0].setPtr(first)

	for _, e := range old {
		e.curLevel.Store(0)
		e.mu.Unlock()
		c.domain.Retire(e)
	}

	for _, r := range rs {
		for l := 1; l < r.nlevel; l++ {
			c.addIndex(r, l)
		}
	}
	c.metrics.addReplace(len(old), len(rs))
}

// addIndex links r on level l. r must already be linked on every level below
// l and be locked by the caller.
func (c *Index) addIndex(r *Range, l int) {
	for {
		pred, succ := c.findLevel(l, r.key)
		r.next[l].store(succ, false)
		if pred.next[l].cas(succ, false, r, false) {
			r.curLevel.Add(1)
			c.metrics.incPromotion()
			return
		}
		c.metrics.incIndexRetry()
	}
}

// delIndex unlinks e from level l. e's pointer on l must already be marked,
// and e must be locked by the caller. A helping search for e's key removes
// every marked range it passes, e included.
func (c *Index) delIndex(e *Range, l int) {
	c.findLevel(l, e.key)
	e.curLevel.Add(-1)
}

// checkReplacement panics unless rs are fresh ranges of c, sorted, pairwise
// disjoint, and lying within [lo, hi).
func (c *Index) checkReplacement(lo uint64, hi *Range, rs []*Range) {
	for i, r := range rs {
		if r == nil {
			misuse("nil replacement range at position %d", i)
		}
		if r.cr != c {
			misuse("replacement %v belongs to another index", r)
		}
		if !r.fresh() {
			misuse("replacement %v was already linked", r)
		}
		if r.key < lo {
			misuse("replacement %v starts before %#x", r, lo)
		}
		lo = r.End()
	}
	if hi != nil && len(rs) > 0 && lo > hi.key {
		misuse("replacement %v overlaps successor %v", rs[len(rs)-1], hi)
	}
}

func misuse(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...))
}
