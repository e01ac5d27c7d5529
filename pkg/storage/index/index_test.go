// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name  string
	Value int
}

type factory func(t *testing.T) Indexer[testValue]

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T) Indexer[testValue] {
			idx, err := NewMemoryIndexer[testValue]()
			require.NoError(t, err)
			return idx
		},
		"leveldb": func(t *testing.T) Indexer[testValue] {
			idx, err := NewLevelDBIndexer[testValue](t.TempDir(), nil)
			require.NoError(t, err)
			return idx
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx Indexer[testValue])) {
	for name, newIdx := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			idx := newIdx(t)
			defer idx.Close()
			fn(t, idx)
		})
	}
}

func TestIndexer_PutGet(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		val := testValue{Name: "test", Value: 42}
		require.NoError(t, idx.Put("key1", val))

		result, err := idx.Get("key1")
		require.NoError(t, err)
		assert.Equal(t, val, result)

		require.NoError(t, idx.Put("key1", testValue{Name: "second"}))
		result, err = idx.Get("key1")
		require.NoError(t, err)
		assert.Equal(t, "second", result.Name)
	})
}

func TestIndexer_GetNotFound(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		_, err := idx.Get("nonexistent")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIndexer_Delete(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		require.NoError(t, idx.Put("key1", testValue{Name: "x"}))
		require.NoError(t, idx.Delete("key1"))
		_, err := idx.Get("key1")
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, idx.Delete("never-existed"))
	})
}

func TestIndexer_IteratePrefixInOrder(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		for _, k := range []string{"b/2", "a/1", "b/1", "c/1", "b/3"} {
			require.NoError(t, idx.Put(k, testValue{Name: k}))
		}

		var keys []string
		require.NoError(t, idx.Iterate("b/", func(key string, value testValue) error {
			assert.Equal(t, key, value.Name)
			keys = append(keys, key)
			return nil
		}))
		assert.Equal(t, []string{"b/1", "b/2", "b/3"}, keys)

		var all int
		require.NoError(t, idx.Iterate("", func(string, testValue) error {
			all++
			return nil
		}))
		assert.Equal(t, 5, all)
	})
}

func TestIndexer_IterateStopOnError(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		for i := 0; i < 10; i++ {
			require.NoError(t, idx.Put(fmt.Sprintf("k%02d", i), testValue{Value: i}))
		}
		stop := errors.New("stop")
		count := 0
		err := idx.Iterate("k", func(string, testValue) error {
			count++
			if count == 3 {
				return stop
			}
			return nil
		})
		require.ErrorIs(t, err, stop)
		assert.Equal(t, 3, count)
	})
}

func TestIndexer_IterateAllowsWrites(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		require.NoError(t, idx.Put("a", testValue{}))
		require.NoError(t, idx.Put("b", testValue{}))
		require.NoError(t, idx.Iterate("", func(key string, _ testValue) error {
			return idx.Delete(key)
		}))
		_, err := idx.Get("a")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIndexer_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, idx Indexer[testValue]) {
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					key := fmt.Sprintf("g%d/%03d", g, i)
					assert.NoError(t, idx.Put(key, testValue{Value: i}))
					_, err := idx.Get(key)
					assert.NoError(t, err)
				}
			}(g)
		}
		wg.Wait()

		n := 0
		require.NoError(t, idx.Iterate("g3/", func(string, testValue) error {
			n++
			return nil
		}))
		assert.Equal(t, 50, n)
		require.NoError(t, idx.Sync())
	})
}

func TestLevelDBIndexer_Persistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := NewLevelDBIndexer[testValue](dir, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Put("persist", testValue{Name: "kept", Value: 7}))
	require.NoError(t, idx.Sync())
	require.NoError(t, idx.Close())

	idx, err = NewLevelDBIndexer[testValue](dir, nil)
	require.NoError(t, err)
	defer idx.Close()
	got, err := idx.Get("persist")
	require.NoError(t, err)
	assert.Equal(t, testValue{Name: "kept", Value: 7}, got)
}

func TestIndexer_Destroy(t *testing.T) {
	t.Parallel()

	mem, err := NewMemoryIndexer[testValue]()
	require.NoError(t, err)
	require.NoError(t, mem.Put("k", testValue{}))
	require.NoError(t, mem.Destroy())
	_, err = mem.Get("k")
	require.ErrorIs(t, err, ErrNotFound)

	ldb, err := NewLevelDBIndexer[testValue](t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, ldb.Put("k", testValue{}))
	require.NoError(t, ldb.Destroy())
}
