package crange

import (
	"fmt"
	"io"
)

// Check verifies the structure of a quiescent index: level 0 is sorted and
// disjoint with no removed range linked, and every upper level is a sorted
// subsequence of the level below it. It must not run concurrently with
// mutations. The returned error wraps ErrInvariant.
func (c *Index) Check() error {
	nodes, err := c.check()
	c.logger.LogCheck(nodes, err)
	return err
}

func (c *Index) check() (int, error) {
	below := make(map[*Range]struct{})
	nodes := 0
	var prev *Range
	for n := c.head.next[0].ptr(); n != nil; n = n.next[0].ptr() {
		switch {
		case n.cr != c:
			return nodes, fmt.Errorf("%w: %v belongs to another index", ErrInvariant, n)
		case n.freed.Load():
			return nodes, fmt.Errorf("%w: %v was reclaimed while linked", ErrInvariant, n)
		case n.Deleted():
			return nodes, fmt.Errorf("%w: %v is marked but linked on level 0", ErrInvariant, n)
		case n.size == 0:
			return nodes, fmt.Errorf("%w: %v is empty", ErrInvariant, n)
		case prev != nil && n.key < prev.End():
			return nodes, fmt.Errorf("%w: %v overlaps or precedes %v", ErrInvariant, n, prev)
		}
		if cur := int(n.curLevel.Load()); cur < 1 || cur > n.nlevel || n.nlevel > c.nlevel {
			return nodes, fmt.Errorf("%w: %v linked on %d of %d levels", ErrInvariant, n, cur, n.nlevel)
		}
		below[n] = struct{}{}
		prev = n
		nodes++
	}

	for l := 1; l < c.nlevel; l++ {
		level := make(map[*Range]struct{})
		prev = nil
		for n := c.head.next[l].ptr(); n != nil; n = n.next[l].ptr() {
			if _, ok := below[n]; !ok {
				return nodes, fmt.Errorf("%w: %v on level %d is missing from level %d", ErrInvariant, n, l, l-1)
			}
			if n.next[l].marked() {
				return nodes, fmt.Errorf("%w: %v is marked but linked on level %d", ErrInvariant, n, l)
			}
			if int(n.curLevel.Load()) <= l {
				return nodes, fmt.Errorf("%w: %v on level %d reports %d levels", ErrInvariant, n, l, n.curLevel.Load())
			}
			if prev != nil && n.key <= prev.key {
				return nodes, fmt.Errorf("%w: level %d out of order at %v", ErrInvariant, l, n)
			}
			level[n] = struct{}{}
			prev = n
		}
		below = level
	}
	return nodes, nil
}

// Dump writes one line per level-0 range with its tower state. Like Check, it
// is meant for quiescent indexes.
func (c *Index) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "index %s levels=%d len=%d\n", c.id, c.nlevel, c.Len()); err != nil {
		return err
	}
	for n := c.head.next[0].ptr(); n != nil; n = n.next[0].ptr() {
		mark := ""
		if n.Deleted() {
			mark = " deleted"
		}
		if _, err := fmt.Fprintf(w, "  %v levels=%d/%d%s\n", n, n.curLevel.Load(), n.nlevel, mark); err != nil {
			return err
		}
	}
	return nil
}
