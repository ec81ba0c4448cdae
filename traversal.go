package crange

// search is the lock-free read path. The caller holds a guard.
func (c *Index) search(key, size uint64) *Range {
	c.metrics.incSearch()
	end := queryEnd(key, size)

	p := c.head
	for l := c.nlevel - 1; l > 0; l-- {
		for {
			n := p.next[l].ptr()
			if n == nil || n.End() > key {
				break
			}
			p = n
		}
	}

	// Marked ranges are transparent; their frozen successors keep the walk
	// moving forward.
	for n := p.next[0].ptr(); n != nil && n.key < end; n = n.next[0].ptr() {
		if n.End() > key && !n.Deleted() {
			return n
		}
	}
	return nil
}

// findPred0 returns, without locking, the last range on level 0 that ends at
// or before key. The result may be stale and must be validated under its lock.
func (c *Index) findPred0(key uint64) *Range {
	p := c.head
	for l := c.nlevel - 1; l >= 0; l-- {
		for {
			n := p.next[l].ptr()
			if n == nil || n.End() > key {
				break
			}
			p = n
		}
	}
	return p
}

// findLevel returns the predecessor of key on level l together with its
// successor. Ranges whose pointer is marked on a level the walk passes are
// unlinked from that level on the way.
func (c *Index) findLevel(l int, key uint64) (pred, succ *Range) {
retry:
	pred = c.head
	for lv := c.nlevel - 1; lv >= l; lv-- {
		for {
			n := pred.next[lv].ptr()
			if n == nil {
				break
			}
			nn, gone := n.next[lv].load()
			if gone {
				if !pred.next[lv].cas(n, false, nn, false) {
					// pred itself is being unlinked or changed under us.
					c.metrics.incIndexRetry()
					goto retry
				}
				continue
			}
			if n.key >= key {
				break
			}
			pred = n
		}
	}
	return pred, pred.next[l].ptr()
}
