package crange

import (
	"iter"

	"github.com/metailurini/crange/epoch"
)

// Iterator provides a forward-only view over the live ranges of an index, or
// over the window of a Locked view.
//
// An iterator obtained from Index.Iterator holds its own epoch guard and must
// be closed; ranges it returns stay valid memory until then.
type Iterator struct {
	cr    *Index
	start *Range // iteration begins after start
	stop  *Range // exclusive bound, nil for the end of the list
	guard *epoch.Guard
	owned bool

	current *Range
	valid   bool
	closed  bool
}

// Iterator returns a new iterator positioned before the first range.
func (c *Index) Iterator() *Iterator {
	return &Iterator{
		cr:    c,
		start: c.head,
		guard: c.domain.Enter(),
		owned: true,
	}
}

// All yields every live range in key order. Ranges removed concurrently may
// or may not be observed; a range observed removed is skipped.
func (c *Index) All() iter.Seq[*Range] {
	return func(yield func(*Range) bool) {
		g := c.domain.Enter()
		defer g.Exit()
		for n := c.advance(c.head, nil); n != nil; n = c.advance(n, nil) {
			if !yield(n) {
				return
			}
		}
	}
}

// advance returns the first unmarked range after from, stopping at stop.
func (c *Index) advance(from, stop *Range) *Range {
	for n := from.next[0].ptr(); n != stop; n = n.next[0].ptr() {
		if !n.Deleted() {
			return n
		}
	}
	return nil
}

// Valid reports whether the iterator currently points at a range.
func (it *Iterator) Valid() bool {
	if it == nil {
		return false
	}
	return it.valid
}

// Range returns the range at the iterator's current position.
// It should only be called when Valid reports true.
func (it *Iterator) Range() *Range {
	if it == nil || !it.valid {
		return nil
	}
	return it.current
}

// Next advances the iterator and reports whether it moved to a range. If the
// iterator was not valid prior to the call, it advances to the first range.
func (it *Iterator) Next() bool {
	if it == nil || it.closed {
		return false
	}

	from := it.start
	if it.valid {
		from = it.current
	}
	n := it.cr.advance(from, it.stop)
	if n == nil {
		it.invalidate()
		return false
	}
	it.current = n
	it.valid = true
	return true
}

// SeekGE positions the iterator at the first range that ends after key,
// which is the range covering key if there is one. It returns true if such a
// range exists.
func (it *Iterator) SeekGE(key uint64) bool {
	if it == nil || it.closed {
		return false
	}
	it.invalidate()

	from := it.start
	if it.start == it.cr.head && it.stop == nil {
		// Iterators over the whole index skip ahead through the upper levels.
		if p := it.cr.findPred0(key); p != it.cr.head {
			from = p
		}
	}
	for n := it.cr.advance(from, it.stop); n != nil; n = it.cr.advance(n, it.stop) {
		if n.End() > key {
			it.current = n
			it.valid = true
			return true
		}
	}
	return false
}

// Close releases the iterator's guard. Ranges it returned must not be used
// afterwards.
func (it *Iterator) Close() {
	if it == nil || it.closed {
		return
	}
	it.closed = true
	it.invalidate()
	if it.owned {
		it.guard.Exit()
	}
}

func (it *Iterator) invalidate() {
	it.current = nil
	it.valid = false
}
