package epoch

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const segmentSize = 64

// slot announces the epoch observed by one active guard.
// state is 0 while the guard is inactive, otherwise epoch<<1 | 1.
type slot struct {
	claimed atomic.Bool
	state   atomic.Uint64
	_       cpu.CacheLinePad
}

func (s *slot) active() (uint64, bool) {
	st := s.state.Load()
	return st >> 1, st&1 == 1
}

type segment struct {
	slots [segmentSize]slot
	next  atomic.Pointer[segment]
}

// slotTable is an append-only list of slot segments. Claiming a slot never
// blocks: when every slot is taken a new segment is published with a CAS.
type slotTable struct {
	head  segment
	hint  atomic.Uint64
	count atomic.Int64
}

func (t *slotTable) claim() *slot {
	start := int(t.hint.Add(1) % segmentSize)
	for seg := &t.head; ; {
		for i := range segmentSize {
			s := &seg.slots[(start+i)%segmentSize]
			if !s.claimed.Load() && s.claimed.CompareAndSwap(false, true) {
				t.count.Add(1)
				return s
			}
		}
		next := seg.next.Load()
		if next == nil {
			fresh := &segment{}
			if seg.next.CompareAndSwap(nil, fresh) {
				next = fresh
			} else {
				next = seg.next.Load()
			}
		}
		seg = next
	}
}

func (t *slotTable) release(s *slot) {
	s.state.Store(0)
	s.claimed.Store(false)
	t.count.Add(-1)
}

// each calls fn for every slot until fn returns false.
func (t *slotTable) each(fn func(*slot) bool) {
	for seg := &t.head; seg != nil; seg = seg.next.Load() {
		for i := range seg.slots {
			if !fn(&seg.slots[i]) {
				return
			}
		}
	}
}
