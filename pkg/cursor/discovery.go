// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"sort"

	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// DefaultDiscoveryLimit is how many records are sampled to type columns
// when the caller does not say otherwise.
const DefaultDiscoveryLimit = 10

// Discover resolves the projection of opts against sampled records.
//
// A wildcard column expands to the enabled special fields followed by the
// union of bin names seen in sample, in first-seen order (bins of one
// record in name order). Every other column keeps its position; a special
// field name that is enabled reads record metadata, an expression column
// is computed, anything else reads the bin of that name. Columns are typed
// from their first non-null value; columns never seen stay types.Unknown.
//
// The projection is modified in place and also returned with the
// wildcard expanded.
func Discover(opts Options, sample []*store.Record) []*types.Column {
	out := make([]*types.Column, 0, len(opts.Columns))
	for _, c := range opts.Columns {
		if !c.IsWildcard() {
			out = append(out, c)
			continue
		}
		out = append(out, opts.Special.Columns(opts.Namespace, opts.Set)...)
		for _, name := range binNames(sample) {
			out = append(out, types.NewColumn(types.RoleData, opts.Namespace, opts.Set, name, name))
		}
	}

	for _, c := range out {
		if c.Type != types.Unknown {
			continue
		}
		get := extractor(c, opts)
		for _, rec := range sample {
			// A sample that fails to compute leaves the column untyped;
			// the error surfaces when the row is read.
			if v, err := get(rec); err == nil {
				c.Discover(v)
			}
			if c.Type != types.Unknown {
				break
			}
		}
	}
	return out
}

func binNames(sample []*store.Record) []string {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range sample {
		if rec == nil {
			continue
		}
		batch := make([]string, 0, len(rec.Bins))
		for name := range rec.Bins {
			if !seen[name] {
				seen[name] = true
				batch = append(batch, name)
			}
		}
		sort.Strings(batch)
		names = append(names, batch...)
	}
	return names
}

type extractFunc func(*store.Record) (types.Value, error)

// extractor returns how a column reads its value from a record.
func extractor(c *types.Column, opts Options) extractFunc {
	if c.Role() == types.RoleExpression {
		if x, ok := opts.Compute[c.Label()]; ok {
			return func(rec *store.Record) (types.Value, error) {
				return x.Eval(reader(rec, opts.Special))
			}
		}
	}
	get := field(c.Name(), opts.Special)
	return func(rec *store.Record) (types.Value, error) {
		return get(rec), nil
	}
}

// reader exposes the bins and enabled special fields of rec to an
// expression.
func reader(rec *store.Record, fields special.Set) expr.Reader {
	return func(name string) types.Value {
		return field(name, fields)(rec)
	}
}

func field(name string, fields special.Set) func(*store.Record) types.Value {
	if f, ok := special.Lookup(name); ok && fields.Has(f) {
		return f.Value
	}
	return func(rec *store.Record) types.Value {
		if rec == nil {
			return types.Null
		}
		v, ok := rec.Bins[name]
		if !ok {
			return types.Null
		}
		return types.FromNative(v)
	}
}
