package crange

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	// MaxLevel is the maximum tower height of any index.
	MaxLevel = 32

	// P is the probability of a range being promoted one level higher.
	P = 1.0 / 2.0
)

// Range is one half-open interval [Key, Key+Size) tracked by an Index.
//
// Key, Size, Value and the tower height are fixed when the range is created.
// A range is linked into an index only through a Locked view.
type Range struct {
	key   uint64
	size  uint64
	value any

	nlevel   int          // tower height requested at construction
	curLevel atomic.Int32 // number of levels currently linked
	cr       *Index

	freed atomic.Bool // set once returned to the allocator

	_  cpu.CacheLinePad
	mu sync.Mutex
	_  cpu.CacheLinePad

	// next[l] is the successor on level l. The mark on next[0] is the
	// deletion mark; marks on higher levels freeze that level's pointer while
	// the range is being unlinked.
	next [MaxLevel]markPtr
}

// Key returns the first key covered by r.
func (r *Range) Key() uint64 { return r.key }

// Size returns the number of keys covered by r.
func (r *Range) Size() uint64 { return r.size }

// End returns the first key after r, saturated at math.MaxUint64.
func (r *Range) End() uint64 { return rangeEnd(r.key, r.size) }

// Value returns the caller payload attached at construction.
func (r *Range) Value() any { return r.value }

// Levels returns the tower height chosen for r.
func (r *Range) Levels() int { return r.nlevel }

// Deleted reports whether r has been logically removed from its index.
func (r *Range) Deleted() bool { return r.next[0].marked() }

// Overlaps reports whether r intersects [key, key+size).
func (r *Range) Overlaps(key, size uint64) bool {
	return r.key < queryEnd(key, size) && r.End() > key
}

func (r *Range) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.key, r.End())
}

// fresh reports whether r has never been linked.
func (r *Range) fresh() bool {
	return r.curLevel.Load() == 0 && !r.Deleted()
}

func rangeEnd(key, size uint64) uint64 {
	if size > math.MaxUint64-key {
		return math.MaxUint64
	}
	return key + size
}

// queryEnd is the exclusive upper bound of a query; a zero size queries the
// single key.
func queryEnd(key, size uint64) uint64 {
	if size == 0 {
		size = 1
	}
	return rangeEnd(key, size)
}

func newHead(cr *Index, levels int) *Range {
	h := &Range{nlevel: levels, cr: cr}
	h.curLevel.Store(int32(levels))
	return h
}
