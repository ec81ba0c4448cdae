package epoch

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type tracked struct {
	id    int
	freed atomic.Bool
}

func (o *tracked) Reclaim() {
	o.freed.Store(true)
}

func TestRetireWaitsForEarlierGuard(t *testing.T) {
	d := New()

	g := d.Enter()
	obj := &tracked{id: 1}
	d.Retire(obj)

	for range 10 {
		d.Reclaim()
	}
	assert.False(t, obj.freed.Load(), "object reclaimed while an earlier guard is active")
	assert.Equal(t, 1, d.Pending())

	g.Exit()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Synchronize(ctx))
	assert.True(t, obj.freed.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestRetireWithoutGuardsReclaimsAfterTwoAdvances(t *testing.T) {
	d := New()

	var calls atomic.Int32
	d.Retire(RetireFunc(func() { calls.Add(1) }))

	assert.Equal(t, 0, d.Reclaim(), "one advance is not enough")
	assert.Equal(t, 1, d.Reclaim())
	assert.Equal(t, int32(1), calls.Load())

	d.Reclaim()
	assert.Equal(t, int32(1), calls.Load(), "Reclaim must run exactly once")
}

func TestSynchronizeHonorsContext(t *testing.T) {
	d := New()
	g := d.Enter()
	defer g.Exit()

	d.Retire(&tracked{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Synchronize(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardExitIsIdempotent(t *testing.T) {
	d := New()
	g := d.Enter()
	require.True(t, g.Active())
	require.NotZero(t, g.Epoch())

	g.Exit()
	g.Exit()
	assert.False(t, g.Active())
	assert.Zero(t, g.Epoch())
	assert.Equal(t, int64(0), d.Stats().ActiveGuards)
}

func TestSlotTableGrowsBeyondOneSegment(t *testing.T) {
	d := New()

	guards := make([]*Guard, 3*segmentSize+5)
	for i := range guards {
		guards[i] = d.Enter()
	}
	assert.Equal(t, int64(len(guards)), d.Stats().ActiveGuards)

	for _, g := range guards {
		g.Exit()
	}
	assert.Equal(t, int64(0), d.Stats().ActiveGuards)

	// Released slots are reused instead of growing the table again.
	g := d.Enter()
	defer g.Exit()
	segments := 0
	for seg := &d.slots.head; seg != nil; seg = seg.next.Load() {
		segments++
	}
	assert.Equal(t, 4, segments)
}

func TestRetireThresholdReclaimsInline(t *testing.T) {
	d := New(func(o *Options) { o.RetireThreshold = 4 })

	objs := make([]*tracked, 16)
	for i := range objs {
		objs[i] = &tracked{id: i}
		d.Retire(objs[i])
	}

	st := d.Stats()
	assert.Equal(t, uint64(len(objs)), st.Retired)
	assert.Positive(t, st.Reclaimed, "inline passes should have reclaimed the oldest objects")
	assert.Less(t, st.Pending, len(objs))
}

func TestRunReclaimsInBackground(t *testing.T) {
	d := New(func(o *Options) { o.ReclaimInterval = time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })

	obj := &tracked{}
	d.Retire(obj)
	require.Eventually(t, obj.freed.Load, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, g.Wait())
}

// TestConcurrentReadersNeverSeeReclaimedObjects swaps a shared pointer while
// readers hold guards across the load and the use of the object.
func TestConcurrentReadersNeverSeeReclaimedObjects(t *testing.T) {
	d := New(func(o *Options) { o.RetireThreshold = 8 })

	var shared atomic.Pointer[tracked]
	shared.Store(&tracked{})

	seed := time.Now().UnixNano()
	t.Logf("test seed=%d", seed)

	readers := max(runtime.GOMAXPROCS(0), 4)
	const writes = 5000

	var violations atomic.Int64
	var done atomic.Bool

	g := new(errgroup.Group)
	for r := range readers {
		rs := seed + int64(r)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(rs))
			for !done.Load() {
				guard := d.Enter()
				obj := shared.Load()
				for range rng.Intn(64) {
					runtime.Gosched()
				}
				if obj.freed.Load() {
					violations.Add(1)
				}
				guard.Exit()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer done.Store(true)
		for i := range writes {
			old := shared.Swap(&tracked{id: i + 1})
			d.Retire(old)
			if i%64 == 0 {
				d.Reclaim()
			}
		}
		return nil
	})

	require.NoError(t, g.Wait())
	assert.Zero(t, violations.Load(), "a reader observed a reclaimed object inside its guard")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Synchronize(ctx))
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, uint64(writes), d.Stats().Reclaimed)
}
