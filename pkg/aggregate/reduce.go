// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"context"
	"fmt"
	"slices"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

// Reduce merges the partial results streamed by an aggregation script into
// the final rows of s. The stream is drained on first use of the returned
// cursor and closed afterwards.
func Reduce(ctx context.Context, rs store.Recordset, s *Spec) cursor.Cursor {
	return cursor.Lazy(func() (cursor.Cursor, error) {
		defer rs.Close()
		t := newTable(s)
		items := 0
		for res := range rs.Results() {
			if res.Err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", s, res.Err)
			}
			if res.Record == nil {
				continue
			}
			items++
			if err := t.absorb(res.Record.Bins[store.AggregateBin]); err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", s, err)
			}
		}
		cols, rows := t.result()
		logger.Ctx(ctx).Debug().
			Str("aggregation", s.String()).
			Int("items", items).
			Int("groups", len(rows)).
			Msg("reduced script results")
		return cursor.NewRows(cols, rows), nil
	}, rs.Close)
}

// absorb merges one script result item.
func (t *table) absorb(item any) error {
	if item == nil {
		return nil
	}
	m, ok := asMap(item)
	if !ok {
		return fmt.Errorf("script result is %T, want map", item)
	}
	s := t.spec

	if len(s.Groups) == 0 {
		return t.mergeInto(t.groups[0], m)
	}

	keys, err := sortedKeys(m)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if s.Distinct != "" {
			t.group(distinctKey(k.values[0]), k.values)
			continue
		}
		g := t.group(k.text, k.values)
		partials, ok := asMap(m[k.text])
		if !ok {
			return fmt.Errorf("group %q holds %T, want map", k.text, m[k.text])
		}
		if err := t.mergeInto(g, partials); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) mergeInto(g *group, partials map[string]any) error {
	for i, f := range t.spec.Functions {
		p, err := f.Name.decode(partials[f.Arg().Label()])
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		f.Name.merge(&g.partials[i], p)
	}
	return nil
}

type groupKey struct {
	text   string
	values []types.Value
}

// sortedKeys decodes the composite keys of one item and orders them by
// value, since a script map carries no order of its own.
func sortedKeys(m map[string]any) ([]groupKey, error) {
	keys := make([]groupKey, 0, len(m))
	for text := range m {
		values, err := udf.DecodeKey(text)
		if err != nil {
			return nil, err
		}
		keys = append(keys, groupKey{text: text, values: values})
	}
	slices.SortFunc(keys, func(a, b groupKey) int {
		for i := 0; i < len(a.values) && i < len(b.values); i++ {
			if c := order.Compare(a.values[i], b.values[i]); c != 0 {
				return c
			}
		}
		return len(a.values) - len(b.values)
	})
	return keys, nil
}

// Rows aggregates c on the client. Every row contributes the values
// labelled by the group bins and function fields of s. c is drained on
// first use and closed afterwards.
func Rows(ctx context.Context, c cursor.Cursor, s *Spec) cursor.Cursor {
	return cursor.Lazy(func() (cursor.Cursor, error) {
		defer c.Close()
		t := newTable(s)
		n := 0
		for c.Next() {
			n++
			t.fold(c.Row())
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
		cols, rows := t.result()
		logger.Ctx(ctx).Debug().
			Str("aggregation", s.String()).
			Int("rows", n).
			Int("groups", len(rows)).
			Msg("aggregated rows")
		return cursor.NewRows(cols, rows), nil
	}, c.Close)
}

func (t *table) fold(r *types.Row) {
	s := t.spec
	var g *group
	if len(s.Groups) == 0 {
		g = t.groups[0]
	} else {
		values := make([]types.Value, len(s.Groups))
		for i, bin := range s.Groups {
			values[i] = r.Get(bin)
		}
		g = t.group(udf.EncodeKey(values...), values)
	}
	for i, f := range s.Functions {
		v := types.Int(1)
		if f.Field != types.Wildcard {
			v = r.Get(f.Field)
		}
		f.Name.contribute(&g.partials[i], v, f.Distinct)
	}
}
