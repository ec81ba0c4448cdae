package crange

import "errors"

var (
	// ErrNoMemory is returned when the node budget of an index is exhausted.
	ErrNoMemory = errors.New("crange: node allocation failed")

	// ErrEmptyRange is returned for a range that covers no key: a zero size,
	// or a start at math.MaxUint64.
	ErrEmptyRange = errors.New("crange: empty range")

	// ErrInvariant reports a broken structural invariant or a misuse of the
	// locked-view protocol. Misuse panics with an error wrapping it.
	ErrInvariant = errors.New("crange: invariant violated")
)
