// Package cache provides a keyed get-or-compute cache that runs at most one
// computation per key at a time and memoizes successful results.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"sitefeed/internal/metrics"
)

// Store is a shared second-level cache. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config bounds the in-process memo.
type Config struct {
	TTL  time.Duration
	Size int
}

// Stats are cumulative lookup counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Shared    uint64
	StoreHits uint64
}

// Keyed memoizes values of type V by string key. Failed computations are
// never stored: every caller joined on a failing flight gets the error, and
// the next lookup computes again.
type Keyed[V any] struct {
	memo    *expirable.LRU[string, V]
	group   singleflight.Group
	store   Store
	ttl     time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	hits, misses, shared, storeHits atomic.Uint64
}

// New creates a Keyed cache. store may be nil.
func New[V any](cfg Config, store Store, log *slog.Logger, m *metrics.Metrics) *Keyed[V] {
	if log == nil {
		log = slog.Default()
	}
	return &Keyed[V]{
		memo:    expirable.NewLRU[string, V](cfg.Size, nil, cfg.TTL),
		store:   store,
		ttl:     cfg.TTL,
		log:     log,
		metrics: m,
	}
}

// GetOrCompute returns the value for key, calling compute when it is not
// cached. Concurrent callers for the same key share a single compute. The
// compute is not canceled when one caller gives up; ctx only bounds how long
// this caller waits.
func (c *Keyed[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.memo.Get(key); ok {
		c.hits.Add(1)
		c.metrics.CacheRequest("hit")
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(detached, key, compute)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
			c.metrics.CacheRequest("shared")
		} else {
			c.misses.Add(1)
			c.metrics.CacheRequest("miss")
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Keyed[V]) load(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	// A flight for this key may have completed between the memo check and
	// this flight starting.
	if v, ok := c.memo.Get(key); ok {
		return v, nil
	}

	if v, ok := c.fromStore(ctx, key); ok {
		c.memo.Add(key, v)
		return v, nil
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	c.memo.Add(key, v)
	c.toStore(ctx, key, v)
	return v, nil
}

func (c *Keyed[V]) fromStore(ctx context.Context, key string) (V, bool) {
	var v V
	if c.store == nil {
		return v, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache store get", "key", key, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn("decode cached value", "key", key, "error", err)
		return v, false
	}
	c.storeHits.Add(1)
	c.metrics.CacheRequest("store_hit")
	return v, true
}

func (c *Keyed[V]) toStore(ctx context.Context, key string, v V) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("encode cached value", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn("cache store set", "key", key, "error", err)
	}
}

// Peek returns the memoized value for key without computing it.
func (c *Keyed[V]) Peek(key string) (V, bool) {
	return c.memo.Peek(key)
}

// Len returns the number of memoized entries.
func (c *Keyed[V]) Len() int {
	return c.memo.Len()
}

// Purge drops every memoized entry. The shared store is left untouched.
func (c *Keyed[V]) Purge() {
	c.memo.Purge()
}

// Stats returns a snapshot of the lookup counters.
func (c *Keyed[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		StoreHits: c.storeHits.Load(),
	}
}
