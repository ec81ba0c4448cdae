package crange

import (
	"iter"

	"github.com/metailurini/crange/epoch"
)

// Locked is a locked window of an Index: the level-0 predecessor of a query
// interval and every range overlapping it, each held under its own lock,
// together with an epoch guard. It is the only way to mutate an index.
//
// A Locked has a single owner and must not be shared between goroutines.
// It must be released with Release; using it afterwards panics.
type Locked struct {
	cr    *Index
	key   uint64
	size  uint64
	prev  *Range
	succ  *Range
	guard *epoch.Guard

	released bool
}

// Key returns the start of the query interval that produced the view.
func (l *Locked) Key() uint64 { return l.key }

// Size returns the size of the query interval that produced the view.
func (l *Locked) Size() uint64 { return l.size }

// Prev returns the locked predecessor of the window. It is the index head,
// with key and size 0, when no range ends before the query.
func (l *Locked) Prev() *Range {
	l.mustHold()
	return l.prev
}

// Succ returns the first range starting at or after the end of the window,
// or nil. It is not locked, but cannot be unlinked while the view is held.
func (l *Locked) Succ() *Range {
	l.mustHold()
	return l.succ
}

// All yields the ranges of the window in key order.
func (l *Locked) All() iter.Seq[*Range] {
	l.mustHold()
	return func(yield func(*Range) bool) {
		for n := l.prev.next[0].ptr(); n != l.succ; n = n.next[0].ptr() {
			if !yield(n) {
				return
			}
		}
	}
}

// Len returns the number of ranges in the window.
func (l *Locked) Len() int {
	n := 0
	for range l.All() {
		n++
	}
	return n
}

// Iterator returns an iterator over the window. It shares the view's guard
// and must not be used after Release.
func (l *Locked) Iterator() *Iterator {
	l.mustHold()
	return &Iterator{
		cr:    l.cr,
		start: l.prev,
		stop:  l.succ,
		guard: l.guard,
	}
}

// Replace unlinks every range of the window and links rs in their place.
// rs must be fresh ranges of the same index, in ascending order, pairwise
// disjoint, and lie after Prev and before Succ. Replace with no arguments
// deletes the window.
//
// The replacement ranges join the window and stay locked until Release.
func (l *Locked) Replace(rs ...*Range) {
	l.mustHold()

	var old []*Range
	for n := range l.All() {
		old = append(old, n)
	}
	l.cr.checkReplacement(l.prev.End(), l.succ, rs)
	l.cr.splice(l.prev, old, rs, l.succ)
	l.cr.logger.LogReplace(l.key, l.size, len(old), len(rs))
}

// ReplaceRange unlinks old, which must belong to the window, and links rs in
// its place. rs must lie between old's neighbours. It is used to grow,
// shrink or split one range without disturbing the rest of the window.
func (l *Locked) ReplaceRange(old *Range, rs ...*Range) {
	l.mustHold()

	pred := l.prev
	for {
		n := pred.next[0].ptr()
		if n == l.succ {
			misuse("%v is not part of the locked window", old)
		}
		if n == old {
			break
		}
		pred = n
	}
	key, size, next := old.key, old.size, old.next[0].ptr()
	l.cr.checkReplacement(pred.End(), next, rs)
	l.cr.splice(pred, []*Range{old}, rs, next)
	l.cr.logger.LogReplace(key, size, 1, len(rs))
}

// Release unlocks the window in list order and exits the guard. It is safe to
// call more than once.
func (l *Locked) Release() {
	if l.released {
		return
	}
	l.released = true

	for e := l.prev; e != l.succ; {
		// Read the successor before unlocking; once e is unlocked a waiter
		// may rewrite it.
		n := e.next[0].ptr()
		e.mu.Unlock()
		e = n
	}
	l.guard.Exit()
}

func (l *Locked) mustHold() {
	if l.released {
		misuse("use of a released view of [%#x, +%#x)", l.key, l.size)
	}
}
