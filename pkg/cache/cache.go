// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the bounded, expiring cache sessions keep their
// statement plans in.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	key        string
	value      V
	lastAccess time.Time
}

// Cache is a concurrent LRU cache keyed by string.
//
// Features:
//   - Optional max size: the least recently used entry is evicted
//   - Optional TTL: entries not read for the expiry duration are dropped
//   - Load deduplication: concurrent GetOrLoad calls for one key share a
//     single load
//
// Usage:
//
//	c := cache.New[*query.Plan](cache.WithMaxSize[*query.Plan](256))
//	plan, err := c.GetOrLoad(ctx, sql, func(ctx context.Context) (*query.Plan, error) {
//	    return planner.Plan(ctx, sql)
//	})
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // front is most recently used

	loads singleflight.Group
	name  string

	// Max size (0 = unlimited)
	maxSize int
	// TTL expiry (0 = no expiry)
	expiry time.Duration

	cleanupTimer *time.Timer
	cleanupStop  chan struct{}
	stopOnce     sync.Once
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithMaxSize sets the maximum number of entries.
func WithMaxSize[V any](maxSize int) Option[V] {
	return func(c *Cache[V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry sets the TTL for cache entries. Entries idle for longer are
// not returned by Get, and a background timer removes them periodically.
func WithExpiry[V any](expiry time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.expiry = expiry
	}
}

// WithName labels the cache's metrics.
func WithName[V any](name string) Option[V] {
	return func(c *Cache[V]) {
		c.name = name
	}
}

// New creates a new Cache with the given options.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items:       make(map[string]*list.Element),
		lru:         list.New(),
		name:        "default",
		cleanupStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.expiry > 0 {
		c.startCleanup()
	}
	return c
}

func (c *Cache[V]) startCleanup() {
	c.cleanupTimer = time.AfterFunc(c.expiry, func() {
		c.cleanup()
		select {
		case <-c.cleanupStop:
			return
		default:
			c.cleanupTimer.Reset(c.expiry)
		}
	})
}

// cleanup removes expired entries. The list is ordered by access time, so
// it stops at the first live entry from the back.
func (c *Cache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for el := c.lru.Back(); el != nil; el = c.lru.Back() {
		e := el.Value.(*entry[V])
		if now.Sub(e.lastAccess) <= c.expiry {
			return
		}
		c.remove(el)
		recordEviction(c.name, "expired")
	}
}

// Stop stops the cleanup timer. Call this when the cache is no longer needed.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		if c.cleanupTimer != nil {
			c.cleanupTimer.Stop()
			close(c.cleanupStop)
		}
	})
}

// Get retrieves a value. It reports false when the key is missing or
// expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.get(key)
	recordLookup(c.name, ok)
	return v, ok
}

func (c *Cache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	now := time.Now()
	if c.expiry > 0 && now.Sub(e.lastAccess) > c.expiry {
		c.remove(el)
		recordEviction(c.name, "expired")
		return zero, false
	}
	e.lastAccess = now
	c.lru.MoveToFront(el)
	return e.value, true
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Errors are not cached. Concurrent callers missing
// the same key wait for one load.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.loads.Do(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Set adds or replaces a value, evicting the least recently used entry
// when the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.lastAccess = now
		c.lru.MoveToFront(el)
		return
	}
	if c.maxSize > 0 && c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
			recordEviction(c.name, "capacity")
		}
	}
	c.items[key] = c.lru.PushFront(&entry[V]{key: key, value: value, lastAccess: now})
}

func (c *Cache[V]) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

// Delete removes a key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// Size returns the number of entries, expired ones not yet cleaned up
// included.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes all entries from the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}
