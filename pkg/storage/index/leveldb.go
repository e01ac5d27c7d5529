// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBIndexer[V any] struct {
	db      *leveldb.DB
	dbDir   string
	options *opt.Options

	writeOpts     *opt.WriteOptions // Normal writes (buffered)
	writeOptsSync *opt.WriteOptions // Durable writes (fsync)
}

func serialize[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserialize[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}

// NewLevelDBIndexer opens (or creates) the database in dbDir, recovering
// it when the manifest is corrupted.
func NewLevelDBIndexer[V any](dbDir string, opts *opt.Options) (Indexer[V], error) {
	m := &LevelDBIndexer[V]{
		dbDir:         dbDir,
		options:       opts,
		writeOpts:     &opt.WriteOptions{Sync: false},
		writeOptsSync: &opt.WriteOptions{Sync: true},
	}
	db, err := leveldb.OpenFile(dbDir, opts)
	if err != nil && !lerrors.IsCorrupted(err) {
		return nil, err
	}
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dbDir, opts)
		if err != nil {
			return nil, err
		}
	}
	m.db = db
	return m, nil
}

func (m *LevelDBIndexer[V]) Put(key string, value V) error {
	data, err := serialize(value)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(key), data, m.writeOpts)
}

func (m *LevelDBIndexer[V]) Get(key string) (V, error) {
	var zero V
	data, err := m.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}
	return deserialize[V](data)
}

func (m *LevelDBIndexer[V]) Delete(key string) error {
	return m.db.Delete([]byte(key), m.writeOpts)
}

func (m *LevelDBIndexer[V]) Close() error {
	return m.db.Close()
}

func (m *LevelDBIndexer[V]) Iterate(prefix string, fn func(key string, value V) error) error {
	var rng *util.Range
	if prefix != "" {
		rng = util.BytesPrefix([]byte(prefix))
	}
	iter := m.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		value, err := deserialize[V](iter.Value())
		if err != nil {
			return err
		}
		if err := fn(string(iter.Key()), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Sync forces all buffered writes to disk.
func (m *LevelDBIndexer[V]) Sync() error {
	// LevelDB has no explicit sync; an empty synced batch flushes the log.
	return m.db.Write(new(leveldb.Batch), m.writeOptsSync)
}

func (m *LevelDBIndexer[V]) Destroy() error {
	if err := m.Close(); err != nil {
		return err
	}
	return os.RemoveAll(m.dbDir)
}
