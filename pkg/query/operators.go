// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"math"

	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// indexRule rewrites a predicate leaf into the secondary-index filters
// that select exactly its rows from an index holding kind. ok is false
// when the literals cannot be served by such an index, in which case the
// leaf is evaluated on a scan.
type indexRule func(bin string, kind store.IndexKind, values []types.Value) (filters []*store.Filter, ok bool)

// indexOps maps each operator an index can serve to its rewrite. Adding
// an operator only takes a new entry here.
var indexOps = map[Op]indexRule{
	OpEq: func(bin string, kind store.IndexKind, vs []types.Value) ([]*store.Filter, bool) {
		v, ok := indexValue(kind, vs[0])
		if !ok {
			return nil, false
		}
		return []*store.Filter{equalFilter(bin, v)}, true
	},
	OpBetween: func(bin string, kind store.IndexKind, vs []types.Value) ([]*store.Filter, bool) {
		lo, ok := indexValue(kind, vs[0])
		if !ok || kind != store.IndexNumeric {
			return nil, false
		}
		hi, ok := indexValue(kind, vs[1])
		if !ok {
			return nil, false
		}
		return rangeFilter(bin, lo.Int, hi.Int)
	},
	OpGt: bounded(func(v int64) (int64, int64, bool) {
		return v + 1, math.MaxInt64, v < math.MaxInt64
	}),
	OpGe: bounded(func(v int64) (int64, int64, bool) {
		return v, math.MaxInt64, true
	}),
	OpLt: bounded(func(v int64) (int64, int64, bool) {
		return math.MinInt64, v - 1, v > math.MinInt64
	}),
	OpLe: bounded(func(v int64) (int64, int64, bool) {
		return math.MinInt64, v, true
	}),
	OpIn: func(bin string, kind store.IndexKind, vs []types.Value) ([]*store.Filter, bool) {
		converted := make([]types.Value, len(vs))
		for i, v := range vs {
			c, ok := indexValue(kind, v)
			if !ok {
				return nil, false
			}
			converted[i] = c
		}
		var out []*store.Filter
		for _, v := range distinctValues(converted) {
			out = append(out, equalFilter(bin, v))
		}
		return out, len(out) > 0
	},
}

// indexValue converts a literal to the value an index of kind holds for
// it. A numeric index holds integers, so numeric text and integral floats
// are read as their integer. A string index is only served by text:
// a number equals several spellings ("7", "07", " 7"), only one of which
// a string lookup could find.
func indexValue(kind store.IndexKind, v types.Value) (types.Value, bool) {
	switch kind {
	case store.IndexNumeric:
		switch v.Kind {
		case types.KindInt:
			return v, true
		case types.KindFloat:
			if i, err := types.Coerce(v, types.KindInt); err == nil {
				return i, true
			}
		case types.KindString:
			if n, ok := types.ParseNumber(v.Str); ok {
				return indexValue(kind, n)
			}
		}
	case store.IndexString:
		if v.Kind == types.KindString {
			return v, true
		}
	}
	return types.Null, false
}

func equalFilter(bin string, v types.Value) *store.Filter {
	return &store.Filter{Bin: bin, Kind: store.FilterEqual, Value: v}
}

func rangeFilter(bin string, begin, end int64) ([]*store.Filter, bool) {
	return []*store.Filter{{Bin: bin, Kind: store.FilterRange, Begin: begin, End: end}}, true
}

// bounded builds the rule of a one-sided integer comparison.
func bounded(bounds func(v int64) (begin, end int64, ok bool)) indexRule {
	return func(bin string, kind store.IndexKind, vs []types.Value) ([]*store.Filter, bool) {
		if kind != store.IndexNumeric {
			return nil, false
		}
		v, ok := indexValue(kind, vs[0])
		if !ok {
			return nil, false
		}
		begin, end, ok := bounds(v.Int)
		if !ok {
			return nil, false
		}
		return rangeFilter(bin, begin, end)
	}
}

// distinctValues drops repeated literals, keeping the first occurrence.
func distinctValues(vs []types.Value) []types.Value {
	var out []types.Value
	for _, v := range vs {
		dup := false
		for _, o := range out {
			if o.Kind == v.Kind && order.Equal(o, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
