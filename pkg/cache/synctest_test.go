// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCacheExpiry_GetAfterExpiry verifies entries expire correctly.
func TestCacheExpiry_GetAfterExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 100 * time.Millisecond

		c := New(WithExpiry[string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")

		val, ok := c.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)

		time.Sleep(50 * time.Millisecond)
		val, ok = c.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)

		// Get refreshed the entry, so wait a full expiry from there.
		time.Sleep(expiry + 10*time.Millisecond)
		_, ok = c.Get("key1")
		assert.False(t, ok, "entry should be expired")
	})
}

// TestCacheExpiry_CleanupTimer verifies background cleanup runs on schedule.
func TestCacheExpiry_CleanupTimer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 50 * time.Millisecond

		c := New(WithExpiry[string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")
		c.Set("key2", "value2")
		c.Set("key3", "value3")
		assert.Equal(t, 3, c.Size())

		// Two cleanup cycles later every entry has been removed without
		// being read.
		time.Sleep(2*expiry + 10*time.Millisecond)
		assert.Equal(t, 0, c.Size())
	})
}

// TestCacheExpiry_AccessRefreshesExpiry verifies that Get refreshes the TTL.
func TestCacheExpiry_AccessRefreshesExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 100 * time.Millisecond

		c := New(WithExpiry[string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")

		for range 5 {
			time.Sleep(50 * time.Millisecond)
			val, ok := c.Get("key1")
			assert.True(t, ok, "entry should still be accessible")
			assert.Equal(t, "value1", val)
		}

		time.Sleep(expiry + 10*time.Millisecond)
		_, ok := c.Get("key1")
		assert.False(t, ok, "entry should be expired after no access")
	})
}

// TestCacheNoExpiry verifies cache works without expiry.
func TestCacheNoExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New[string]()

		c.Set("key1", "value1")
		time.Sleep(time.Second)

		val, ok := c.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)
	})
}

// TestCacheStop verifies Stop is idempotent and Get still checks expiry.
func TestCacheStop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 50 * time.Millisecond

		c := New(WithExpiry[string](expiry))
		c.Set("key1", "value1")
		c.Stop()
		c.Stop()

		time.Sleep(expiry + 10*time.Millisecond)
		_, ok := c.Get("key1")
		assert.False(t, ok, "entry should be expired on Get")
	})
}

// TestCacheMaxSize verifies the least recently used entry is evicted.
func TestCacheMaxSize(t *testing.T) {
	t.Parallel()

	c := New(WithMaxSize[int](2))
	c.Set("a", 1)
	c.Set("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)

	// Replacing an entry does not evict.
	c.Set("c", 4)
	v, _ := c.Get("c")
	assert.Equal(t, 4, v)
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

// TestCacheGetOrLoad verifies loads are cached until expiry.
func TestCacheGetOrLoad(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		loadCount := 0
		load := func(context.Context) (string, error) {
			loadCount++
			return "loaded", nil
		}

		c := New(WithExpiry[string](100 * time.Millisecond))
		defer c.Stop()

		val, err := c.GetOrLoad(ctx, "key1", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", val)
		assert.Equal(t, 1, loadCount)

		_, err = c.GetOrLoad(ctx, "key1", load)
		require.NoError(t, err)
		assert.Equal(t, 1, loadCount)

		time.Sleep(110 * time.Millisecond)

		_, err = c.GetOrLoad(ctx, "key1", load)
		require.NoError(t, err)
		assert.Equal(t, 2, loadCount)
	})
}

// TestCacheGetOrLoadError verifies failed loads are not cached.
func TestCacheGetOrLoadError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("boom")

	c := New[string]()
	_, err := c.GetOrLoad(ctx, "k", func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Size())

	v, err := c.GetOrLoad(ctx, "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

// TestCacheGetOrLoadShared verifies concurrent misses share one load.
func TestCacheGetOrLoadShared(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		var loads atomic.Int32
		release := make(chan struct{})

		c := New[int]()
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
					loads.Add(1)
					<-release
					return 42, nil
				})
				assert.NoError(t, err)
				assert.Equal(t, 42, v)
			}()
		}
		synctest.Wait()
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), loads.Load())
	})
}
