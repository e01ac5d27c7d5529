// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import "github.com/LeeDigitalWorks/binql/pkg/types"

type visible struct {
	state
	inner    Cursor
	resolved bool
	columns  []*types.Column
	labels   []string
	row      *types.Row
}

// Visible hides the columns the planner added only to evaluate predicates
// or ordering.
func Visible(c Cursor) Cursor {
	return &visible{inner: c}
}

func (v *visible) resolve() error {
	if v.resolved {
		return nil
	}
	cols, err := v.inner.Columns()
	if err != nil {
		return err
	}
	v.resolved = true
	for _, c := range cols {
		if c.Role() != types.RoleHidden {
			v.columns = append(v.columns, c)
		}
	}
	v.labels = types.Labels(v.columns)
	return nil
}

func (v *visible) Columns() ([]*types.Column, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if err := v.resolve(); err != nil {
		v.fail(err)
		return nil, err
	}
	return v.columns, nil
}

func (v *visible) Next() bool {
	v.row = nil
	if v.closed || v.pos == AfterLast {
		return false
	}
	if err := v.resolve(); err != nil {
		return v.fail(err)
	}
	if !v.inner.Next() {
		if err := v.inner.Err(); err != nil {
			return v.fail(err)
		}
		return v.advance(false)
	}
	r := v.inner.Row()
	if r.Len() == len(v.labels) {
		v.row = r
	} else {
		out := types.NewRow(len(v.labels))
		for _, l := range v.labels {
			out.Set(l, r.Get(l))
		}
		v.row = out
	}
	return v.advance(true)
}

func (v *visible) Row() *types.Row { return v.row }

func (v *visible) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.pos = AfterLast
	v.row = nil
	return v.inner.Close()
}
