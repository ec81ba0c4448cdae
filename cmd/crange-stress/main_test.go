package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/metailurini/crange"
)

func TestRunSmallWorkload(t *testing.T) {
	cfg := config{
		workers:  4,
		ops:      2000,
		keys:     64,
		levels:   5,
		seed:     time.Now().UnixNano(),
		interval: time.Millisecond,
	}
	t.Logf("test seed=%d", cfg.seed)
	require.NoError(t, run(context.Background(), cfg, crange.NoopLogger()))
}

func TestRunUnderNodeBudget(t *testing.T) {
	cfg := config{
		workers:  4,
		ops:      2000,
		keys:     64,
		levels:   4,
		limit:    32,
		seed:     1,
		interval: time.Millisecond,
	}
	require.NoError(t, run(context.Background(), cfg, crange.NoopLogger()))
}

func TestPunchSplitsCoveringRange(t *testing.T) {
	idx := crange.New()
	require.NoError(t, insert(idx, 100, 10))

	require.NoError(t, punch(idx, 104))
	require.Nil(t, idx.Search(104, 1))
	require.NotNil(t, idx.Search(103, 1))
	require.NotNil(t, idx.Search(105, 1))

	require.NoError(t, punch(idx, 100))
	require.Nil(t, idx.Search(100, 1))
	require.NoError(t, idx.Check())
}

func TestSearchChecksUnderGuard(t *testing.T) {
	idx := crange.New()
	require.NoError(t, insert(idx, 100, 10))

	require.NoError(t, search(idx, 105, 1))
	require.NoError(t, search(idx, 0, 50))
	require.Zero(t, idx.Domain().Stats().ActiveGuards)

	remove(idx, 100, 10)
	require.NoError(t, search(idx, 105, 1))
}
