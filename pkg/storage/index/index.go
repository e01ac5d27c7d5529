// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package index is the ordered key-value layer under the local store.
// Keys are strings so that records of one set share a prefix and can be
// visited in key order.
package index

import (
	"errors"
	"io"
)

var ErrNotFound = errors.New("key not found")

type Indexer[V any] interface {
	io.Closer
	Put(key string, value V) error
	// Get returns ErrNotFound when key is absent.
	Get(key string) (V, error)
	Delete(key string) error
	// Iterate visits every entry whose key starts with prefix, in key
	// order. An error from fn stops the iteration and is returned.
	Iterate(prefix string, fn func(key string, value V) error) error

	// Destroy removes the underlying data
	Destroy() error

	// Sync forces buffered writes to disk
	Sync() error
}
