// Command crange-stress drives a crange index with a concurrent mixed
// workload of searches, inserts, splits and removals, exposes its counters
// over HTTP for Prometheus, and verifies the index when the run ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/metailurini/crange"
	"github.com/metailurini/crange/crangeprom"
	"github.com/metailurini/crange/epoch"
)

type config struct {
	workers  int
	ops      int
	keys     int
	levels   int
	limit    int64
	seed     int64
	listen   string
	interval time.Duration
	verbose  bool
}

func main() {
	var cfg config
	flag.IntVar(&cfg.workers, "workers", 8, "number of concurrent workers")
	flag.IntVar(&cfg.ops, "ops", 100000, "operations per worker")
	flag.IntVar(&cfg.keys, "keys", 1<<14, "number of key slots")
	flag.IntVar(&cfg.levels, "levels", crange.DefaultLevels, "maximum tower height")
	flag.Int64Var(&cfg.limit, "node-limit", 0, "range allocation budget, 0 for unlimited")
	flag.Int64Var(&cfg.seed, "seed", time.Now().UnixNano(), "workload seed")
	flag.StringVar(&cfg.listen, "listen", "", "address serving /metrics, empty to disable")
	flag.DurationVar(&cfg.interval, "reclaim-interval", epoch.DefaultReclaimInterval, "background reclaim pacing")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := crange.NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stress run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *crange.Logger) error {
	domain := epoch.New(func(o *epoch.Options) {
		o.ReclaimInterval = cfg.interval
		o.Logger = logger.Logger
	})
	idx := crange.New(
		crange.WithLevels(cfg.levels),
		crange.WithNodeLimit(cfg.limit),
		crange.WithDomain(domain),
		crange.WithLogger(logger),
	)
	logger.Info("starting stress run",
		"index", idx.ID().String(),
		"workers", cfg.workers,
		"ops", cfg.ops,
		"keys", cfg.keys,
		"levels", idx.Levels(),
		"seed", cfg.seed,
	)

	var srv *http.Server
	if cfg.listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			crangeprom.NewCollector(idx),
			collectors.NewGoCollector(),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{Addr: cfg.listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving metrics", "addr", cfg.listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	reclaimCtx, stopReclaim := context.WithCancel(context.Background())
	reclaimDone := make(chan error, 1)
	go func() { reclaimDone <- domain.Run(reclaimCtx) }()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.workers {
		g.Go(func() error {
			return work(gctx, idx, cfg, rand.New(rand.NewSource(cfg.seed+int64(w))))
		})
	}
	werr := g.Wait()
	elapsed := time.Since(start)

	stopReclaim()
	if err := <-reclaimDone; err != nil {
		return err
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}

	if err := idx.Check(); err != nil {
		return err
	}
	s := idx.Stats()
	e := domain.Stats()
	logger.Info("stress run finished",
		"elapsed", elapsed,
		"ranges", s.Len,
		"searches", s.Searches,
		"replaces", s.Replaces,
		"lock_retries", s.LockRetries,
		"index_retries", s.IndexRetries,
		"alloc_failures", s.AllocFailures,
		"retired", e.Retired,
		"reclaimed", e.Reclaimed,
		"pending", e.Pending,
	)
	return nil
}

const slotWidth = 64

// work runs one worker's share of the mixed workload.
func work(ctx context.Context, idx *crange.Index, cfg config, r *rand.Rand) error {
	for i := range cfg.ops {
		if i%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		key := uint64(r.Intn(cfg.keys)) * slotWidth
		size := uint64(r.Intn(2*slotWidth) + 1)

		switch op := r.Intn(10); {
		case op < 5:
			if err := search(idx, key, size); err != nil {
				return err
			}
		case op < 7:
			if err := insert(idx, key, size); err != nil && !errors.Is(err, crange.ErrNoMemory) {
				return err
			}
		case op < 9:
			remove(idx, key, size)
		default:
			if err := punch(idx, key); err != nil && !errors.Is(err, crange.ErrNoMemory) {
				return err
			}
		}
	}
	return nil
}

// search looks up [key, key+size) and checks the result while still inside
// the guard that keeps it from being reclaimed.
func search(idx *crange.Index, key, size uint64) error {
	g := idx.Domain().Enter()
	defer g.Exit()
	if got := idx.SearchGuarded(g, key, size); got != nil && !got.Overlaps(key, size) {
		return fmt.Errorf("search(%#x, %#x) returned %v", key, size, got)
	}
	return nil
}

func insert(idx *crange.Index, key, size uint64) error {
	l := idx.FindAndLock(key, size)
	defer l.Release()
	if l.Len() > 0 {
		return nil
	}
	r, err := idx.NewRange(key, size, nil)
	if err != nil {
		return err
	}
	l.Replace(r)
	return nil
}

func remove(idx *crange.Index, key, size uint64) {
	l := idx.FindAndLock(key, size)
	defer l.Release()
	if l.Len() > 0 {
		l.Replace()
	}
}

// punch removes the single key at key from the range covering it.
func punch(idx *crange.Index, key uint64) error {
	l := idx.FindAndLock(key, 1)
	defer l.Release()

	var old *crange.Range
	for r := range l.All() {
		old = r
	}
	if old == nil {
		return nil
	}

	var rs []*crange.Range
	if old.Key() < key {
		lo, err := idx.NewRange(old.Key(), key-old.Key(), nil)
		if err != nil {
			return err
		}
		rs = append(rs, lo)
	}
	if key+1 < old.End() {
		hi, err := idx.NewRange(key+1, old.End()-key-1, nil)
		if err != nil {
			for _, r := range rs {
				idx.Discard(r)
			}
			return err
		}
		rs = append(rs, hi)
	}
	l.ReplaceRange(old, rs...)
	return nil
}
