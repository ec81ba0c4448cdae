package crange

import "sync/atomic"

// markRef is an immutable (successor, mark) cell. Cells are never mutated, so
// swapping the cell pointer changes the successor and the mark together.
type markRef struct {
	r    *Range
	mark bool
}

// markPtr is a successor pointer carrying a one-bit deletion mark.
// The zero value is an unmarked nil pointer.
type markPtr struct {
	v atomic.Pointer[markRef]
}

func (p *markPtr) load() (*Range, bool) {
	c := p.v.Load()
	if c == nil {
		return nil, false
	}
	return c.r, c.mark
}

func (p *markPtr) ptr() *Range {
	r, _ := p.load()
	return r
}

func (p *markPtr) marked() bool {
	_, m := p.load()
	return m
}

// store overwrites the pointer and mark. Only valid while no other goroutine
// can reach p, or while p's owner lock is held at level 0.
func (p *markPtr) store(r *Range, mark bool) {
	p.v.Store(&markRef{r: r, mark: mark})
}

// setPtr swings the pointer and keeps the mark.
func (p *markPtr) setPtr(r *Range) {
	for {
		c := p.v.Load()
		n := &markRef{r: r}
		if c != nil {
			n.mark = c.mark
		}
		if p.v.CompareAndSwap(c, n) {
			return
		}
	}
}

// setMark sets the mark and keeps the pointer. It reports whether this call
// set it; a mark never clears.
func (p *markPtr) setMark() bool {
	for {
		c := p.v.Load()
		if c != nil && c.mark {
			return false
		}
		n := &markRef{mark: true}
		if c != nil {
			n.r = c.r
		}
		if p.v.CompareAndSwap(c, n) {
			return true
		}
	}
}

// cas replaces (oldR, oldMark) with (newR, newMark) if p still holds exactly
// (oldR, oldMark).
func (p *markPtr) cas(oldR *Range, oldMark bool, newR *Range, newMark bool) bool {
	c := p.v.Load()
	var cr *Range
	var cm bool
	if c != nil {
		cr, cm = c.r, c.mark
	}
	if cr != oldR || cm != oldMark {
		return false
	}
	return p.v.CompareAndSwap(c, &markRef{r: newR, mark: newMark})
}

func (p *markPtr) reset() {
	p.v.Store(nil)
}
