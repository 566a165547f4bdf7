package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func TestKey(t *testing.T) {
	assert.Equal(t, "history:AAPL:7200", Key("history", "AAPL", 7200))
	assert.Equal(t, "p", Key("p"))
}

func TestMemoryCache_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(4))
	defer mc.Close()

	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", []point{{1, 0.5}}, time.Minute))
	var got []point
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, []point{{1, 0.5}}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "raw", time.Minute))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "raw", s)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "a", &got), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Unix(0, 0)
	mc.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	require.NoError(t, mc.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)

	require.NoError(t, mc.Delete(ctx, "a", "c"))
	assert.Zero(t, mc.Len())
}

func TestLayeredCache_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	lc := NewLayeredCache(nil, 8)
	defer lc.Close()

	var got point
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
	require.NoError(t, lc.Set(ctx, "k", point{X: 2}, time.Minute))
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 2, got.X)
	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestLayeredCache_FillsFromRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	require.NoError(t, remote.Set(ctx, "k", point{X: 7}, time.Minute))

	lc := NewLayeredCache(remote, 8)
	defer lc.Close()

	var got point
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 7, got.X)

	require.NoError(t, remote.Delete(ctx, "k"))
	got = point{}
	require.NoError(t, lc.Get(ctx, "k", &got), "served from memory layer")
	assert.Equal(t, 7, got.X)
}

func TestLayeredCache_FillKeepsStringsRaw(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	require.NoError(t, remote.Set(ctx, "s", "AAPL", time.Minute))

	lc := NewLayeredCache(remote, 8)
	defer lc.Close()

	var got string
	require.NoError(t, lc.Get(ctx, "s", &got))
	assert.Equal(t, "AAPL", got)

	require.NoError(t, remote.Delete(ctx, "s"))
	got = ""
	require.NoError(t, lc.Get(ctx, "s", &got))
	assert.Equal(t, "AAPL", got)
}
