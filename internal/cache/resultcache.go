package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
)

// StalenessFunc decides whether a settled value may be served again.
// Returning true, or any error, makes the cache recompute the value.
type StalenessFunc[V any] func(ctx context.Context, value V) (bool, error)

// Producer computes the value for a key. It runs at most once per entry.
type Producer[V any] func(ctx context.Context) (V, error)

// entry is one producer invocation. Fields other than done and producedAt are
// written once by the producer goroutine before done is closed.
type entry[V any] struct {
	done       chan struct{}
	value      V
	err        error
	producedAt time.Time
}

func (e *entry[V]) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Option configures a ResultCache.
type Option func(*options)

type options struct {
	name string
	now  func() time.Time
}

// WithName sets the cache label used in metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// ResultCache wraps an asynchronous producer. Concurrent calls for the same key
// share one in-flight invocation; settled values are served until the
// staleness predicate rejects them. Failed results are evicted on next access.
type ResultCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	isStale StalenessFunc[V]
	name    string
	now     func() time.Time
}

// NewResultCache creates a ResultCache. A nil isStale never expires values.
func NewResultCache[K comparable, V any](isStale StalenessFunc[V], opts ...Option) *ResultCache[K, V] {
	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResultCache[K, V]{
		entries: make(map[K]*entry[V]),
		isStale: isStale,
		name:    o.name,
		now:     o.now,
	}
}

// GetOrCompute returns the value for key, invoking producer only when there is
// no usable entry. The producer runs detached from ctx cancellation: a caller
// that gives up does not abort the fetch other callers may be waiting on.
func (c *ResultCache[K, V]) GetOrCompute(ctx context.Context, key K, producer Producer[V]) (V, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			e = c.startLocked(ctx, key, producer)
			c.mu.Unlock()
			c.record("miss")
			return c.wait(ctx, e)
		}
		c.mu.Unlock()

		if !e.settled() {
			c.record("coalesced")
			return c.wait(ctx, e)
		}

		if e.err == nil {
			if !c.stale(ctx, e.value) {
				c.record("hit")
				return e.value, nil
			}
			c.record("stale")
		} else {
			c.record("failed_evicted")
		}

		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			fresh := c.startLocked(ctx, key, producer)
			c.mu.Unlock()
			return c.wait(ctx, fresh)
		}
		c.mu.Unlock()
		// Someone else replaced or pruned the entry while the predicate ran.
	}
}

// Prune removes settled entries produced before cutoff and returns how many were removed.
func (c *ResultCache[K, V]) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.settled() && e.producedAt.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, in-flight ones included.
func (c *ResultCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// startLocked registers a new entry for key and launches its producer. c.mu must be held.
func (c *ResultCache[K, V]) startLocked(ctx context.Context, key K, producer Producer[V]) *entry[V] {
	e := &entry[V]{
		done:       make(chan struct{}),
		producedAt: c.now(),
	}
	c.entries[key] = e

	pctx := context.WithoutCancel(ctx)
	go func() {
		defer close(e.done)
		e.value, e.err = producer(pctx)
	}()
	return e
}

func (c *ResultCache[K, V]) wait(ctx context.Context, e *entry[V]) (V, error) {
	if e.settled() {
		return e.value, e.err
	}
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// stale evaluates the predicate; a failing predicate counts as stale so a broken
// check cannot pin a value forever.
func (c *ResultCache[K, V]) stale(ctx context.Context, v V) bool {
	if c.isStale == nil {
		return false
	}
	stale, err := c.isStale(ctx, v)
	if err != nil {
		return true
	}
	return stale
}

func (c *ResultCache[K, V]) record(outcome string) {
	observability.ResultCacheRequestsTotal.WithLabelValues(c.name, outcome).Inc()
}
