// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package local is an embedded implementation of store.Client. Records are
// kept in the ordered index layer (LevelDB on disk, a B-tree in memory),
// secondary indexes are B-trees rebuilt on open, and the aggregation
// scripts run as native Go over the same record stream the server would
// feed them.
package local

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/storage/index"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPartitions       = 4
	DefaultBatchConcurrency = 8
)

// Options configures a Store.
type Options struct {
	// Dir holds the LevelDB files; empty keeps everything in memory.
	Dir string
	// Partitions is how many partial results an aggregation returns.
	Partitions int
	// BatchConcurrency bounds parallel lookups of one BatchGet.
	BatchConcurrency int
}

// storedRecord is the persisted form of a record.
type storedRecord struct {
	Namespace  string
	Set        string
	UserKey    types.Value
	Digest     []byte
	Bins       map[string]types.Value
	Generation uint32
	// ExpiresAt is a unix time in seconds; 0 never expires.
	ExpiresAt int64
}

// indexDef is the persisted definition of a secondary index.
type indexDef struct {
	Namespace string
	Set       string
	Bin       string
	Kind      store.IndexKind
}

type Store struct {
	opts    Options
	records index.Indexer[storedRecord]
	defs    index.Indexer[indexDef]

	// mu orders record writes with secondary index updates.
	mu      sync.RWMutex
	indexes map[string]*secondary
	udfs    map[string][]byte

	closed atomic.Bool
	now    func() time.Time
}

var _ store.Client = (*Store)(nil)

// Open creates a store, loading records and index definitions from
// opts.Dir when it is set.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Partitions <= 0 {
		opts.Partitions = DefaultPartitions
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}

	s := &Store{
		opts:    opts,
		indexes: make(map[string]*secondary),
		udfs:    make(map[string][]byte),
		now:     time.Now,
	}
	if opts.Dir == "" {
		s.records, _ = index.NewMemoryIndexer[storedRecord]()
		s.defs, _ = index.NewMemoryIndexer[indexDef]()
		return s, nil
	}

	var err error
	if s.records, err = index.NewLevelDBIndexer[storedRecord](filepath.Join(opts.Dir, "records"), nil); err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	if s.defs, err = index.NewLevelDBIndexer[indexDef](filepath.Join(opts.Dir, "indexes"), nil); err != nil {
		s.records.Close()
		return nil, fmt.Errorf("open index definitions: %w", err)
	}
	err = s.defs.Iterate("", func(_ string, d indexDef) error {
		return s.build(d)
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("rebuild secondary indexes: %w", err)
	}
	logger.Ctx(ctx).Info().
		Str("dir", opts.Dir).
		Int("indexes", len(s.indexes)).
		Msg("opened local store")
	return s, nil
}

func recordPrefix(namespace, set string) string {
	return "r/" + namespace + "/" + set + "/"
}

func recordKey(namespace, set string, digest []byte) string {
	return recordPrefix(namespace, set) + hex.EncodeToString(digest)
}

func (s *Store) check() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

// withTimeout bounds single-record calls by the policy's total timeout.
func withTimeout(ctx context.Context, p *store.Policy) (context.Context, context.CancelFunc) {
	if p == nil || p.TotalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.TotalTimeout)
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrTimeout, err)
	}
	return err
}

// resolve fills in the digest of key.
func resolve(key *store.Key) (*store.Key, error) {
	if key == nil {
		return nil, fmt.Errorf("nil key")
	}
	if key.Digest != nil {
		return key, nil
	}
	d, err := Digest(key.Namespace, key.Set, key.UserKey)
	if err != nil {
		return nil, err
	}
	k := *key
	k.Digest = d
	return &k, nil
}

// load reads a live record; expired records read as missing.
func (s *Store) load(storageKey string) (*storedRecord, error) {
	sr, err := s.records.Get(storageKey)
	if errors.Is(err, index.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sr.ExpiresAt > 0 && sr.ExpiresAt <= s.now().Unix() {
		return nil, nil
	}
	return &sr, nil
}

// native converts a stored record for the caller, keeping only bins.
func (s *Store) native(sr *storedRecord, key *store.Key, bins []string) *store.Record {
	if key == nil {
		key = &store.Key{Namespace: sr.Namespace, Set: sr.Set, UserKey: sr.UserKey, Digest: sr.Digest}
	}
	rec := &store.Record{
		Key:        key,
		Bins:       make(map[string]any, len(sr.Bins)),
		Generation: sr.Generation,
	}
	if sr.ExpiresAt > 0 {
		rec.Expiration = uint32(sr.ExpiresAt - s.now().Unix())
	}
	if len(bins) == 0 {
		for name, v := range sr.Bins {
			rec.Bins[name] = v.Native()
		}
		return rec
	}
	for _, name := range bins {
		if v, ok := sr.Bins[name]; ok {
			rec.Bins[name] = v.Native()
		}
	}
	return rec
}

func (s *Store) Get(ctx context.Context, p *store.Policy, key *store.Key, bins ...string) (*store.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, p)
	defer cancel()
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	key, err := resolve(key)
	if err != nil {
		return nil, err
	}
	sr, err := s.load(recordKey(key.Namespace, key.Set, key.Digest))
	if err != nil || sr == nil {
		return nil, err
	}
	return s.native(sr, key, bins), nil
}

func (s *Store) BatchGet(ctx context.Context, p *store.Policy, keys []*store.Key, bins ...string) ([]*store.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, p)
	defer cancel()

	out := make([]*store.Record, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			rec, err := s.Get(ctx, nil, key, bins...)
			if err != nil {
				return fmt.Errorf("batch key %s: %w", key, err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, p *store.Policy, key *store.Key, bins map[string]any) error {
	if err := s.check(); err != nil {
		return err
	}
	if p == nil {
		p = store.DefaultPolicy()
	}
	key, err := resolve(key)
	if err != nil {
		return err
	}
	storageKey := recordKey(key.Namespace, key.Set, key.Digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.load(storageKey)
	if err != nil {
		return err
	}
	sr := storedRecord{
		Namespace:  key.Namespace,
		Set:        key.Set,
		Digest:     key.Digest,
		Bins:       make(map[string]types.Value, len(bins)),
		Generation: 1,
	}
	if p.SendKey {
		sr.UserKey = key.UserKey
	}
	if old != nil {
		sr.Generation = old.Generation + 1
		for name, v := range old.Bins {
			sr.Bins[name] = v
		}
		if !p.SendKey {
			sr.UserKey = old.UserKey
		}
	}
	for name, v := range bins {
		if v == nil {
			// A nil bin deletes it, as on the server.
			delete(sr.Bins, name)
			continue
		}
		sr.Bins[name] = types.FromNative(v)
	}
	if p.TTL > 0 {
		sr.ExpiresAt = s.now().Add(p.TTL).Unix()
	}

	if err := s.records.Put(storageKey, sr); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.reindex(storageKey, old, &sr)
	return nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var firstErr error
	for _, c := range []interface{ Close() error }{s.records, s.defs} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
