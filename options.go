package crange

import "github.com/metailurini/crange/epoch"

// DefaultLevels is the tower height used when WithLevels is not given.
const DefaultLevels = 10

type options struct {
	levels    int
	nodeLimit int64
	logger    *Logger
	domain    *epoch.Domain
	seed      uint64
}

// Option configures an Index at construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		levels: DefaultLevels,
	}
}

// WithLevels sets the maximum tower height. Values are clamped to [1, MaxLevel].
func WithLevels(levels int) Option {
	return func(o *options) {
		o.levels = min(max(levels, 1), MaxLevel)
	}
}

// WithNodeLimit caps the number of ranges allocated at once, including ranges
// that were removed but are still waiting for reclamation. Zero means unlimited.
func WithNodeLimit(limit int64) Option {
	return func(o *options) {
		o.nodeLimit = limit
	}
}

// WithLogger configures structured logging. Nil disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDomain shares a reclamation domain between indexes. By default each
// index owns a private domain.
func WithDomain(d *epoch.Domain) Option {
	return func(o *options) {
		o.domain = d
	}
}

// WithSeed makes tower heights deterministic.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}
