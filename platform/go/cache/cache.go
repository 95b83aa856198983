// Package cache provides the in-process resolution cache shared by the tenant
// resolver and the entitlement evaluator: a bounded TTL key/value store with
// FIFO eviction, a periodic expiry sweep, and in-flight markers for
// stale-while-revalidate background refreshes.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the entry count when no explicit capacity is given.
const DefaultCapacity = 512

// Entry is a single cached value with its write time and TTL.
type Entry[V any] struct {
	Value     V
	WrittenAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past writtenAt+ttl at the given instant.
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.WrittenAt.Add(e.TTL))
}

// Cache is a fixed-capacity TTL cache. Insertion beyond capacity evicts the
// oldest entry (plain FIFO; resolution lookups do not warrant recency
// tracking). A background sweep started via Start removes expired entries on
// an interval so memory stays bounded independent of read traffic.
//
// Get never returns an error: a miss is a normal outcome signalled by the
// boolean. Writes are idempotent last-write-wins replacements, so concurrent
// refreshes for the same key only cost wasted work, never corruption.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest
	capacity int

	inflight map[string]struct{}

	now func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
	started    bool
}

type keyed[V any] struct {
	key   string
	entry Entry[V]
}

// Option tweaks cache construction.
type Option[V any] func(*Cache[V])

// WithCapacity overrides the maximum entry count.
func WithCapacity[V any](n int) Option[V] {
	return func(c *Cache[V]) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithSweepInterval overrides how often the background sweep runs.
func WithSweepInterval[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

// WithClock injects a time source for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Cache. The sweep goroutine is not running until Start is
// called; lifecycle belongs to the application root, not to package init.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		capacity:   DefaultCapacity,
		inflight:   make(map[string]struct{}),
		now:        time.Now,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key. Expired entries count as misses and are
// removed eagerly.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	item := el.Value.(keyed[V])
	if item.entry.Expired(c.now()) {
		c.removeLocked(key, el)
		return zero, false
	}
	return item.entry.Value, true
}

// GetStale returns the value for key even when expired, along with a flag
// telling the caller whether it is still fresh. Used by stale-while-revalidate
// reads that paint the old value while a refresh is in flight.
func (c *Cache[V]) GetStale(key string) (value V, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, found := c.entries[key]
	if !found {
		return zero, false, false
	}

	item := el.Value.(keyed[V])
	return item.entry.Value, !item.entry.Expired(c.now()), true
}

// Set writes the value under key with the given TTL, evicting the oldest
// entry when the cache is full and the key is new.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry[V]{Value: value, WrittenAt: c.now(), TTL: ttl}

	if el, ok := c.entries[key]; ok {
		el.Value = keyed[V]{key: key, entry: entry}
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest.Value.(keyed[V]).key, oldest)
		}
	}

	c.entries[key] = c.order.PushBack(keyed[V]{key: key, entry: entry})
}

// Invalidate drops the entry for key, if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(key, el)
	}
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// TryBeginRefresh marks key as having a background refresh in flight.
// It returns false when one is already running, so concurrent stale hits do
// not stampede the store with duplicate refetches.
func (c *Cache[V]) TryBeginRefresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[key]; busy {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

// EndRefresh clears the in-flight marker for key.
func (c *Cache[V]) EndRefresh(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// Start launches the background expiry sweep. It returns when ctx is done or
// Stop is called. Calling Start more than once is a no-op.
func (c *Cache[V]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stop terminates the background sweep. Safe to call multiple times.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		item := el.Value.(keyed[V])
		if item.entry.Expired(now) {
			c.removeLocked(item.key, el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache[V]) removeLocked(key string, el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, key)
}
