package crange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tryInsert links [key, key+size) if nothing overlaps it and reports whether
// it did. It is safe to call from worker goroutines.
func tryInsert(c *Index, key, size uint64) (bool, error) {
	l := c.FindAndLock(key, size)
	defer l.Release()
	if l.Len() > 0 {
		return false, nil
	}
	r, err := c.NewRange(key, size, nil)
	if err != nil {
		return false, err
	}
	l.Replace(r)
	return true, nil
}

// insert is tryInsert for the test goroutine; allocation errors fail t.
func insert(t testing.TB, c *Index, key, size uint64) bool {
	t.Helper()
	ok, err := tryInsert(c, key, size)
	require.NoError(t, err)
	return ok
}

// remove unlinks every range overlapping [key, key+size) and returns how many
// it removed.
func remove(c *Index, key, size uint64) int {
	l := c.FindAndLock(key, size)
	defer l.Release()
	n := l.Len()
	if n > 0 {
		l.Replace()
	}
	return n
}

type span struct{ key, end uint64 }

func spans(c *Index) []span {
	var out []span
	for r := range c.All() {
		out = append(out, span{r.Key(), r.End()})
	}
	return out
}

func synchronize(t testing.TB, c *Index) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Domain().Synchronize(ctx))
}
