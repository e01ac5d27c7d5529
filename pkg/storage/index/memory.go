// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"strings"
	"sync"

	"github.com/google/btree"
)

type entry[V any] struct {
	key   string
	value V
}

// MemoryIndexer keeps entries ordered in a B-tree.
type MemoryIndexer[V any] struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry[V]]
}

func NewMemoryIndexer[V any]() (*MemoryIndexer[V], error) {
	return &MemoryIndexer[V]{tree: newTree[V]()}, nil
}

func newTree[V any]() *btree.BTreeG[entry[V]] {
	return btree.NewG(32, func(a, b entry[V]) bool { return a.key < b.key })
}

func (m *MemoryIndexer[V]) Put(key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(entry[V]{key: key, value: value})
	return nil
}

func (m *MemoryIndexer[V]) Get(key string) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tree.Get(entry[V]{key: key})
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryIndexer[V]) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(entry[V]{key: key})
	return nil
}

func (m *MemoryIndexer[V]) Iterate(prefix string, fn func(key string, value V) error) error {
	// Collect under the lock and call fn without it, so fn may write.
	m.mu.RLock()
	var entries []entry[V]
	m.tree.AscendGreaterOrEqual(entry[V]{key: prefix}, func(e entry[V]) bool {
		if !strings.HasPrefix(e.key, prefix) {
			return false
		}
		entries = append(entries, e)
		return true
	})
	m.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryIndexer[V]) Close() error {
	return nil
}

func (m *MemoryIndexer[V]) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree = newTree[V]()
	return nil
}

func (m *MemoryIndexer[V]) Sync() error {
	return nil
}
