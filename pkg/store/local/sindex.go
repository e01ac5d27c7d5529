// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/google/btree"
)

// posting is one entry of a secondary index: an indexed bin value and the
// storage key of the record holding it.
type posting struct {
	value types.Value
	key   string
}

func lessPosting(a, b posting) bool {
	if c := order.Compare(a.value, b.value); c != 0 {
		return c < 0
	}
	return a.key < b.key
}

// secondary indexes one bin of one set. Like the server, a numeric index
// only holds integers and a string index only strings.
type secondary struct {
	def  indexDef
	tree *btree.BTreeG[posting]
}

func (x *secondary) accepts(v types.Value) bool {
	switch x.def.Kind {
	case store.IndexNumeric:
		return v.Kind == types.KindInt
	case store.IndexString:
		return v.Kind == types.KindString
	}
	return false
}

func (x *secondary) add(key string, sr *storedRecord) {
	if sr == nil {
		return
	}
	if v, ok := sr.Bins[x.def.Bin]; ok && x.accepts(v) {
		x.tree.ReplaceOrInsert(posting{value: v, key: key})
	}
}

func (x *secondary) remove(key string, sr *storedRecord) {
	if sr == nil {
		return
	}
	if v, ok := sr.Bins[x.def.Bin]; ok && x.accepts(v) {
		x.tree.Delete(posting{value: v, key: key})
	}
}

// lookup returns the storage keys matching f in index order.
func (x *secondary) lookup(f *store.Filter) []string {
	var keys []string
	collect := func(p posting) bool {
		keys = append(keys, p.key)
		return true
	}
	switch f.Kind {
	case store.FilterEqual:
		if !x.accepts(f.Value) {
			return nil
		}
		x.tree.AscendGreaterOrEqual(posting{value: f.Value}, func(p posting) bool {
			return order.Equal(p.value, f.Value) && collect(p)
		})
	case store.FilterRange:
		if x.def.Kind != store.IndexNumeric || f.Begin > f.End {
			return nil
		}
		x.tree.AscendGreaterOrEqual(posting{value: types.Int(f.Begin)}, func(p posting) bool {
			return p.value.Int <= f.End && collect(p)
		})
	}
	return keys
}

func indexID(namespace, set, bin string) string {
	return namespace + "/" + set + "/" + bin
}

// build creates the in-memory index for d from the stored records.
func (s *Store) build(d indexDef) error {
	x := &secondary{def: d, tree: btree.NewG(32, lessPosting)}
	err := s.records.Iterate(recordPrefix(d.Namespace, d.Set), func(key string, sr storedRecord) error {
		x.add(key, &sr)
		return nil
	})
	if err != nil {
		return err
	}
	s.indexes[indexID(d.Namespace, d.Set, d.Bin)] = x
	return nil
}

// reindex moves the postings of a rewritten record. Callers hold mu.
func (s *Store) reindex(key string, old, cur *storedRecord) {
	for _, x := range s.indexes {
		if x.def.Namespace != cur.Namespace || x.def.Set != cur.Set {
			continue
		}
		x.remove(key, old)
		x.add(key, cur)
	}
}

func (s *Store) Indexed(ctx context.Context, namespace, set, bin string) (store.IndexKind, bool, error) {
	if err := s.check(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, ok := s.indexes[indexID(namespace, set, bin)]
	if !ok {
		return 0, false, nil
	}
	return x.def.Kind, true, nil
}

// CreateIndex is idempotent for an identical definition.
func (s *Store) CreateIndex(ctx context.Context, namespace, set, bin string, kind store.IndexKind) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := indexID(namespace, set, bin)
	if x, ok := s.indexes[id]; ok {
		if x.def.Kind != kind {
			return fmt.Errorf("index on %s exists with another type", id)
		}
		return nil
	}
	d := indexDef{Namespace: namespace, Set: set, Bin: bin, Kind: kind}
	if err := s.defs.Put("i/"+id, d); err != nil {
		return fmt.Errorf("persist index %s: %w", id, err)
	}
	if err := s.build(d); err != nil {
		return fmt.Errorf("build index %s: %w", id, err)
	}
	logger.Ctx(ctx).Info().
		Str("index", id).
		Int("entries", s.indexes[id].tree.Len()).
		Msg("created secondary index")
	return nil
}

// matching resolves the storage keys a filter selects.
func (s *Store) matching(namespace, set string, f *store.Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, ok := s.indexes[indexID(namespace, set, f.Bin)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrIndexNotFound, strings.Join([]string{namespace, set, f.Bin}, "."))
	}
	return x.lookup(f), nil
}
