// Package vmmap is a virtual-memory area map built on a crange index. Areas
// are page aligned and never overlap; unmapping or reprotecting part of an
// area splits it in place.
package vmmap

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/metailurini/crange"
)

// PageShift is log2 of the page size.
const PageShift = 12

// PageSize is the mapping granularity.
const PageSize = 1 << PageShift

var (
	// ErrOverlap is returned when a mapping would cover an already mapped page.
	ErrOverlap = errors.New("vmmap: range overlaps an existing mapping")

	// ErrUnaligned is returned for addresses or lengths that are not page aligned.
	ErrUnaligned = errors.New("vmmap: range not page aligned")
)

// Prot is a set of access permissions.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Area is one mapped interval [Start, Start+Length).
type Area struct {
	Start  uint64
	Length uint64
	Prot   Prot
}

// End returns the first address after the area.
func (a Area) End() uint64 { return a.Start + a.Length }

func (a Area) String() string {
	return fmt.Sprintf("%#x-%#x %v", a.Start, a.End(), a.Prot)
}

// Map is a concurrent virtual-memory area map.
type Map struct {
	idx *crange.Index
}

// New returns an empty map. The options configure the underlying index.
func New(opts ...crange.Option) *Map {
	return &Map{idx: crange.New(opts...)}
}

// Index returns the underlying range index.
func (m *Map) Index() *crange.Index { return m.idx }

func checkAligned(start, length uint64) error {
	if length == 0 || start%PageSize != 0 || length%PageSize != 0 {
		return fmt.Errorf("%w: [%#x, +%#x)", ErrUnaligned, start, length)
	}
	if start+length < start {
		return fmt.Errorf("%w: [%#x, +%#x) wraps", ErrUnaligned, start, length)
	}
	return nil
}

// Insert maps [start, start+length) with prot. It fails with ErrOverlap if
// any page of the interval is already mapped.
func (m *Map) Insert(start, length uint64, prot Prot) error {
	if err := checkAligned(start, length); err != nil {
		return err
	}

	l := m.idx.FindAndLock(start, length)
	defer l.Release()

	if l.Len() > 0 {
		return fmt.Errorf("%w: [%#x, +%#x)", ErrOverlap, start, length)
	}
	r, err := m.idx.NewRange(start, length, Area{Start: start, Length: length, Prot: prot})
	if err != nil {
		return err
	}
	l.Replace(r)
	return nil
}

// Remove unmaps every page of [start, start+length) and returns how many
// pages were mapped. Areas partially covered are trimmed or split. Nothing
// changes if the split pieces cannot be allocated.
func (m *Map) Remove(start, length uint64) (int, error) {
	return m.rewrite(start, length, func(Area) (Area, bool) {
		return Area{}, false
	})
}

// Protect changes the permissions of every mapped page of
// [start, start+length) and returns how many pages it changed.
func (m *Map) Protect(start, length uint64, prot Prot) (int, error) {
	return m.rewrite(start, length, func(a Area) (Area, bool) {
		a.Prot = prot
		return a, true
	})
}

type edit struct {
	old *crange.Range
	rs  []*crange.Range
}

// rewrite replaces the part of each area inside [start, start+length) by
// the result of fn, keeping the parts outside.
func (m *Map) rewrite(start, length uint64, fn func(Area) (Area, bool)) (int, error) {
	if err := checkAligned(start, length); err != nil {
		return 0, err
	}
	end := start + length

	l := m.idx.FindAndLock(start, length)
	defer l.Release()

	var edits []edit
	discard := func() {
		for _, e := range edits {
			for _, r := range e.rs {
				m.idx.Discard(r)
			}
		}
	}

	pages := 0
	for old := range l.All() {
		a := old.Value().(Area)
		lo, hi := max(a.Start, start), min(a.End(), end)
		pages += int((hi - lo) >> PageShift)

		var pieces []Area
		if a.Start < lo {
			pieces = append(pieces, Area{Start: a.Start, Length: lo - a.Start, Prot: a.Prot})
		}
		if mid, ok := fn(Area{Start: lo, Length: hi - lo, Prot: a.Prot}); ok {
			pieces = append(pieces, mid)
		}
		if hi < a.End() {
			pieces = append(pieces, Area{Start: hi, Length: a.End() - hi, Prot: a.Prot})
		}

		e := edit{old: old}
		for _, p := range pieces {
			r, err := m.idx.NewRange(p.Start, p.Length, p)
			if err != nil {
				for _, r := range e.rs {
					m.idx.Discard(r)
				}
				discard()
				return 0, err
			}
			e.rs = append(e.rs, r)
		}
		edits = append(edits, e)
	}

	for _, e := range edits {
		l.ReplaceRange(e.old, e.rs...)
	}
	return pages, nil
}

// Lookup returns the area containing addr.
func (m *Map) Lookup(addr uint64) (Area, bool) {
	g := m.idx.Domain().Enter()
	defer g.Exit()

	r := m.idx.SearchGuarded(g, addr, 1)
	if r == nil {
		return Area{}, false
	}
	return r.Value().(Area), true
}

// Areas returns a snapshot of the mapped areas in address order.
func (m *Map) Areas() []Area {
	var out []Area
	for r := range m.idx.All() {
		out = append(out, r.Value().(Area))
	}
	return out
}

// Pages returns the set of mapped page numbers.
func (m *Map) Pages() *roaring64.Bitmap {
	b := roaring64.New()
	for r := range m.idx.All() {
		b.AddRange(r.Key()>>PageShift, r.End()>>PageShift)
	}
	return b
}
