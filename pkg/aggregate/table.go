// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

type group struct {
	values   []types.Value
	partials []partial
}

// table accumulates groups in the order they are first seen.
type table struct {
	spec   *Spec
	index  map[string]*group
	groups []*group
}

func newTable(s *Spec) *table {
	t := &table{spec: s, index: make(map[string]*group)}
	if len(s.Groups) == 0 {
		// Aggregates without GROUP BY report one row even over no input.
		t.group("", nil)
	}
	return t
}

func (t *table) group(key string, values []types.Value) *group {
	if g, ok := t.index[key]; ok {
		return g
	}
	g := &group{values: values, partials: make([]partial, len(t.spec.Functions))}
	t.index[key] = g
	t.groups = append(t.groups, g)
	return g
}

// result renders the groups as rows of the output projection. Column types
// are derived from the reduced values; counts are always BIGINT.
func (t *table) result() ([]*types.Column, []*types.Row) {
	s := t.spec
	cols := types.CloneColumns(s.columns)
	labels := types.Labels(cols)
	for _, c := range cols {
		c.Type = types.Unknown
	}

	rows := make([]*types.Row, 0, len(t.groups))
	for _, g := range t.groups {
		values := make([]types.Value, len(cols))
		for i, src := range s.sources {
			if src >= 0 {
				if src < len(g.values) {
					values[i] = g.values[src]
				}
				continue
			}
			f := s.Functions[-1-src]
			values[i] = f.Name.final(g.partials[-1-src])
		}
		for i, c := range cols {
			c.Observe(values[i])
		}
		rows = append(rows, types.RowOf(labels, values))
	}

	for i, src := range s.sources {
		if src < 0 && s.Functions[-1-src].Name == Count {
			cols[i].Type = types.BigInt
		}
	}
	return cols, rows
}
