package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-level cache (L1: memory, L2: optional remote).
type LayeredCache struct {
	mem    *MemoryCache
	remote Service
}

// NewLayeredCache creates a layered cache. A nil remote leaves memory as the only layer.
func NewLayeredCache(remote Service, memorySize int) *LayeredCache {
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(memorySize)),
		remote: remote,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// write-through: remote first, then memory
	if lc.remote != nil {
		if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
			return err
		}
	}
	return lc.mem.Set(ctx, key, value, expiration)
}

// Get reads memory, then remote. A remote hit is copied into memory with the
// given fill TTL so both layers expire close together.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if lc.remote == nil {
		return ErrCacheMiss
	}
	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, dest, fillTTL)
	return nil
}

const fillTTL = 10 * time.Second

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	if lc.remote != nil {
		return lc.remote.Delete(ctx, keys...)
	}
	return nil
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	if lc.remote != nil {
		return lc.remote.Close()
	}
	return nil
}
