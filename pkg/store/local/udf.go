// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"fmt"
	"sort"

	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

func (s *Store) ListUDF(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.udfs))
	for name := range s.udfs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) RegisterUDF(ctx context.Context, name string, body []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.udfs[name] = append([]byte(nil), body...)
	return nil
}

// QueryAggregate runs the Go rendition of a registered aggregation script
// over the records stmt selects. Like a cluster with several nodes, it
// returns one partial result per partition that saw records.
func (s *Store) QueryAggregate(ctx context.Context, p *store.Policy, stmt *store.Statement, agg store.Aggregation) (store.Recordset, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, registered := s.udfs[agg.Package+".lua"]
	s.mu.RUnlock()
	if !registered {
		return nil, fmt.Errorf("%w: %s", store.ErrUDFNotFound, agg.Package)
	}
	script, err := newScript(agg)
	if err != nil {
		return nil, err
	}
	if stmt.Filter != nil {
		if _, err := s.matching(stmt.Namespace, stmt.Set, stmt.Filter); err != nil {
			return nil, err
		}
	}

	return store.Produce(ctx, s.opts.Partitions, func(ctx context.Context, emit store.Emit) error {
		parts := make([]map[string]any, s.opts.Partitions)
		err := s.each(ctx, p, stmt, func(_ string, sr *storedRecord) error {
			i := 0
			if len(sr.Digest) > 0 {
				i = int(sr.Digest[0]) % len(parts)
			}
			if parts[i] == nil {
				parts[i] = make(map[string]any)
			}
			script.accumulate(parts[i], sr.Bins)
			return nil
		})
		if err != nil {
			return err
		}
		for _, part := range parts {
			if part == nil {
				continue
			}
			if !emit(store.Result{Record: &store.Record{Bins: map[string]any{store.AggregateBin: part}}}) {
				return nil
			}
		}
		return nil
	}), nil
}

// script mirrors one of the Lua aggregation modules.
type script struct {
	pkg    string
	groups []string
	funcs  []udf.Arg
}

func newScript(agg store.Aggregation) (*script, error) {
	args, err := udf.ParseArgs(agg)
	if err != nil {
		return nil, err
	}
	sc := &script{pkg: agg.Package}
	switch agg.Package {
	case udf.Distinct:
		if len(args) != 1 || args[0].Kind != udf.ArgDistinct {
			return nil, fmt.Errorf("distinct takes one distinct:<bin> argument, got %d", len(args))
		}
		sc.groups = []string{args[0].Bin}
	case udf.GroupBy, udf.Stats:
		for _, a := range args {
			if a.Kind == udf.ArgGroupBy {
				sc.groups = append(sc.groups, a.Bin)
				continue
			}
			sc.funcs = append(sc.funcs, a)
		}
	default:
		return nil, fmt.Errorf("%w: %s", store.ErrUDFNotFound, agg.Package)
	}
	return sc, nil
}

func (sc *script) accumulate(result map[string]any, bins map[string]types.Value) {
	if sc.pkg == udf.Stats {
		sc.fold(result, bins)
		return
	}

	values := make([]types.Value, len(sc.groups))
	for i, g := range sc.groups {
		values[i] = bins[g]
	}
	key := udf.EncodeKey(values...)

	if sc.pkg == udf.Distinct {
		n, _ := result[key].(int64)
		result[key] = n + 1
		return
	}
	current, ok := result[key].(map[string]any)
	if !ok {
		current = make(map[string]any)
		result[key] = current
	}
	sc.fold(current, bins)
}

// fold adds one record to a map of partials keyed by "fn(bin)". Only
// numbers feed sum, avg, min, max and sumsqs; count takes any value.
func (sc *script) fold(partials map[string]any, bins map[string]types.Value) {
	for _, f := range sc.funcs {
		var v any
		if f.Bin == types.Wildcard {
			v = int64(1)
		} else if b, ok := bins[f.Bin]; ok {
			v = b.Native()
		}
		if v == nil {
			continue
		}
		if !isNumber(v) && f.Kind != "count" {
			continue
		}
		label := f.Label()
		partials[label] = mergePartial(f.Kind, partials[label], contribution(f.Kind, v))
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func contribution(fn string, v any) any {
	switch fn {
	case "count":
		return int64(1)
	case "sumsqs":
		return mul(v, v)
	case "avg":
		return map[string]any{"sum": v, "count": int64(1)}
	}
	return v
}

func mergePartial(fn string, a, b any) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch fn {
	case "min":
		if toFloat(b) < toFloat(a) {
			return b
		}
		return a
	case "max":
		if toFloat(b) > toFloat(a) {
			return b
		}
		return a
	case "avg":
		am, bm := a.(map[string]any), b.(map[string]any)
		return map[string]any{
			"sum":   plus(am["sum"], bm["sum"]),
			"count": plus(am["count"], bm["count"]),
		}
	}
	return plus(a, b)
}

func plus(a, b any) any {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai + bi
	}
	return toFloat(a) + toFloat(b)
}

func mul(a, b any) any {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai * bi
	}
	return toFloat(a) * toFloat(b)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
