// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/binql/pkg/store"

	"golang.org/x/time/rate"
)

// queryBuffer is how many records a query stream holds ahead of its reader.
const queryBuffer = 64

var errStop = errors.New("stop")

// limiter throttles record delivery per policy; nil means unlimited.
func limiter(p *store.Policy) *rate.Limiter {
	if p == nil || p.RecordsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(p.RecordsPerSecond), 1)
}

// each calls fn for every live record the statement selects: the index
// matches when it has a filter, the whole set otherwise.
func (s *Store) each(ctx context.Context, p *store.Policy, stmt *store.Statement, fn func(key string, sr *storedRecord) error) error {
	lim := limiter(p)
	visit := func(key string, sr *storedRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}
		return fn(key, sr)
	}

	if stmt.Filter == nil {
		now := s.now().Unix()
		return s.records.Iterate(recordPrefix(stmt.Namespace, stmt.Set), func(key string, sr storedRecord) error {
			if sr.ExpiresAt > 0 && sr.ExpiresAt <= now {
				return nil
			}
			return visit(key, &sr)
		})
	}

	keys, err := s.matching(stmt.Namespace, stmt.Set, stmt.Filter)
	if err != nil {
		return err
	}
	for _, key := range keys {
		sr, err := s.load(key)
		if err != nil {
			return err
		}
		if sr == nil {
			continue
		}
		if err := visit(key, sr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, p *store.Policy, namespace, set string, fn store.ScanFunc, bins ...string) error {
	if err := s.check(); err != nil {
		return err
	}
	stmt := &store.Statement{Namespace: namespace, Set: set, Bins: bins}
	return s.each(ctx, p, stmt, func(_ string, sr *storedRecord) error {
		return fn(s.native(sr, nil, bins))
	})
}

// Query streams the records selected by stmt. Without a filter it reads
// the whole set.
func (s *Store) Query(ctx context.Context, p *store.Policy, stmt *store.Statement) (store.Recordset, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if stmt.Filter != nil {
		// Fail before streaming when the index is missing.
		if _, err := s.matching(stmt.Namespace, stmt.Set, stmt.Filter); err != nil {
			return nil, err
		}
	}
	return store.Produce(ctx, queryBuffer, func(ctx context.Context, emit store.Emit) error {
		err := s.each(ctx, p, stmt, func(_ string, sr *storedRecord) error {
			if !emit(store.Result{Record: s.native(sr, nil, stmt.Bins)}) {
				return errStop
			}
			return nil
		})
		if errors.Is(err, errStop) {
			return nil
		}
		return err
	}), nil
}
