// Package cache provides a small typed TTL cache that computes missing
// entries at most once per key, however many callers ask for them at the
// same time.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// Cache stores values of type V under string keys for a fixed lifespan.
// Values handed out are shared between callers and must be treated as
// read-only.
type Cache[V any] struct {
	// mu guards closed and keeps store operations from overlapping Close.
	mu       sync.RWMutex
	closed   bool
	store    *ristretto.Cache[string, V]
	group    singleflight.Group
	ttl      time.Duration
	onLookup func(key string, hit bool)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	onLookup func(key string, hit bool)
}

// WithLookupHook registers fn to be called once per GetOrCompute with
// whether the value was served from the cache.
func WithLookupHook(fn func(key string, hit bool)) Option {
	return func(o *options) {
		o.onLookup = fn
	}
}

// New creates a cache whose entries expire ttl after being stored.
func New[V any](ttl time.Duration, opts ...Option) (*Cache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache lifespan must be positive, got %s", ttl)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters:        1000,
		MaxCost:            100,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	return &Cache[V]{
		store:    store,
		ttl:      ttl,
		onLookup: o.onLookup,
	}, nil
}

// Get returns the live value stored under key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		var zero V
		return zero, false
	}
	return c.store.Get(key)
}

// Set stores value under key and waits until it is visible to readers. It
// reports false once the cache is closed.
func (c *Cache[V]) Set(key string, value V) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	ok := c.store.SetWithTTL(key, value, 1, c.ttl)
	c.store.Wait()
	return ok
}

// Delete drops key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.store.Del(key)
	}
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. Concurrent callers for the same key share a single compute call. A
// failed compute leaves the cache untouched, so the next call retries. A
// compute that finishes after Close still returns its value to the waiting
// callers but is not stored.
//
// compute runs detached from the cancellation of the caller that triggered
// it, since other callers may be waiting on the same result; ctx only bounds
// how long this caller waits.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		c.lookup(key, true)
		return v, nil
	}
	c.lookup(key, false)

	ch := c.group.DoChan(key, func() (any, error) {
		// A caller that queued behind a finished flight lands here.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Close releases the background goroutines of the underlying store. It
// waits for any store operation in progress and is safe to call more than
// once.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.store.Close()
}

func (c *Cache[V]) lookup(key string, hit bool) {
	if c.onLookup != nil {
		c.onLookup(key, hit)
	}
}
