package epoch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultReclaimInterval paces the background reclaimer started by Run.
	DefaultReclaimInterval = 10 * time.Millisecond
	// DefaultRetireThreshold is the limbo length at which Retire reclaims inline.
	DefaultRetireThreshold = 256

	syncPollInterval = 50 * time.Microsecond
)

// Retirable is an object whose reuse must wait for quiescence.
type Retirable interface {
	// Reclaim is called exactly once, after no guard can still reference the object.
	Reclaim()
}

// RetireFunc adapts a function to the Retirable interface.
type RetireFunc func()

// Reclaim implements Retirable.
func (f RetireFunc) Reclaim() { f() }

// Options configures a Domain.
type Options struct {
	// ReclaimInterval is the minimum spacing between background reclaim passes.
	ReclaimInterval time.Duration

	// RetireThreshold triggers an inline reclaim pass from Retire once that many
	// objects are waiting. Zero or negative selects DefaultRetireThreshold.
	RetireThreshold int

	// Logger receives reclaimer lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Stats is a point-in-time view of a Domain.
type Stats struct {
	Epoch        uint64
	ActiveGuards int64
	Pending      int
	Retired      uint64
	Reclaimed    uint64
}

type retired struct {
	obj   Retirable
	epoch uint64
}

// Domain is a reclamation domain shared by every structure whose readers
// enter its guards.
type Domain struct {
	global atomic.Uint64
	slots  slotTable

	mu    sync.Mutex // guards limbo
	limbo []retired

	reclaimMu sync.Mutex // serializes reclaim passes

	retired   atomic.Uint64
	reclaimed atomic.Uint64

	opts   Options
	logger *slog.Logger
}

// New returns a Domain configured by optFns.
func New(optFns ...func(*Options)) *Domain {
	opts := Options{
		ReclaimInterval: DefaultReclaimInterval,
		RetireThreshold: DefaultRetireThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = DefaultReclaimInterval
	}
	if opts.RetireThreshold <= 0 {
		opts.RetireThreshold = DefaultRetireThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Domain{
		opts:   opts,
		logger: logger.With("component", "epoch"),
	}
	// Epoch 0 is never announced so that a zero slot state means inactive.
	d.global.Store(1)
	return d
}

// Guard is an active epoch scope. Pointers loaded while a guard is held stay
// valid until Exit, even if the objects are concurrently retired.
type Guard struct {
	d *Domain
	s *slot
}

// Enter opens an epoch scope. It never blocks.
func (d *Domain) Enter() *Guard {
	s := d.slots.claim()
	for {
		e := d.global.Load()
		s.state.Store(e<<1 | 1)
		if d.global.Load() == e {
			break
		}
	}
	return &Guard{d: d, s: s}
}

// Exit closes the scope. Calling Exit more than once is a no-op.
func (g *Guard) Exit() {
	if g == nil || g.s == nil {
		return
	}
	g.d.slots.release(g.s)
	g.s = nil
}

// Active reports whether the guard has not been exited.
func (g *Guard) Active() bool {
	return g != nil && g.s != nil
}

// Epoch returns the epoch announced by the guard, or 0 once exited.
func (g *Guard) Epoch() uint64 {
	if !g.Active() {
		return 0
	}
	e, _ := g.s.active()
	return e
}

// Retire defers obj.Reclaim until every guard entered before this call exits.
// The caller must have unlinked obj so that new guards cannot reach it.
func (d *Domain) Retire(obj Retirable) {
	d.mu.Lock()
	d.limbo = append(d.limbo, retired{obj: obj, epoch: d.global.Load()})
	n := len(d.limbo)
	d.mu.Unlock()
	d.retired.Add(1)

	if n >= d.opts.RetireThreshold && d.reclaimMu.TryLock() {
		d.reclaimLocked()
		d.reclaimMu.Unlock()
	}
}

// Reclaim tries to advance the epoch and reclaims every object that became
// safe. It returns the number of objects reclaimed.
func (d *Domain) Reclaim() int {
	d.reclaimMu.Lock()
	defer d.reclaimMu.Unlock()
	return d.reclaimLocked()
}

func (d *Domain) reclaimLocked() int {
	d.tryAdvance()
	safe := d.global.Load()

	d.mu.Lock()
	var ready []Retirable
	keep := d.limbo[:0]
	for _, r := range d.limbo {
		if r.epoch+2 <= safe {
			ready = append(ready, r.obj)
		} else {
			keep = append(keep, r)
		}
	}
	clear(d.limbo[len(keep):])
	d.limbo = keep
	d.mu.Unlock()

	for _, obj := range ready {
		obj.Reclaim()
	}
	d.reclaimed.Add(uint64(len(ready)))
	return len(ready)
}

// tryAdvance moves the global epoch forward if every active guard has
// announced the current epoch.
func (d *Domain) tryAdvance() bool {
	e := d.global.Load()
	quiescent := true
	d.slots.each(func(s *slot) bool {
		if se, ok := s.active(); ok && se != e {
			quiescent = false
		}
		return quiescent
	})
	if !quiescent {
		return false
	}
	return d.global.CompareAndSwap(e, e+1)
}

// Synchronize blocks until every object retired before the call has been
// reclaimed, or ctx is done.
func (d *Domain) Synchronize(ctx context.Context) error {
	target := d.global.Load() + 2
	timer := time.NewTimer(syncPollInterval)
	defer timer.Stop()
	for {
		d.Reclaim()
		if d.global.Load() >= target {
			d.Reclaim()
			return nil
		}
		timer.Reset(syncPollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Run reclaims in the background until ctx is done, pacing passes with a
// rate limiter. A final pass runs before it returns.
func (d *Domain) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(d.opts.ReclaimInterval), 1)
	d.logger.Info("reclaimer started", "interval", d.opts.ReclaimInterval)
	for {
		if err := limiter.Wait(ctx); err != nil {
			n := d.Reclaim()
			d.logger.Info("reclaimer stopped", "final_reclaimed", n, "pending", d.Pending())
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n := d.Reclaim(); n > 0 {
			d.logger.Debug("reclaim pass", "reclaimed", n, "epoch", d.global.Load())
		}
	}
}

// Pending returns the number of retired objects not yet reclaimed.
func (d *Domain) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.limbo)
}

// Stats returns a snapshot of the domain counters.
func (d *Domain) Stats() Stats {
	return Stats{
		Epoch:        d.global.Load(),
		ActiveGuards: d.slots.count.Load(),
		Pending:      d.Pending(),
		Retired:      d.retired.Load(),
		Reclaimed:    d.reclaimed.Load(),
	}
}
