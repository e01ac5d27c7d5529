// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"errors"
	"slices"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

type chain struct {
	state
	sources []Cursor
	cur     int
	// pending is set when resolving metadata already moved sources[cur]
	// onto its first row.
	pending  bool
	resolved bool
	columns  []*types.Column
	labels   []string
	row      *types.Row
}

// Chain concatenates cursors. Column metadata comes from the first source
// that has rows, or from the first source when none does. Rows of later
// sources are relabelled to match it.
func Chain(sources ...Cursor) Cursor {
	return &chain{sources: sources}
}

func (c *chain) resolve() error {
	if c.resolved {
		return nil
	}
	c.resolved = true
	if len(c.sources) == 0 {
		return nil
	}
	for i, src := range c.sources {
		if src.Next() {
			c.cur, c.pending = i, true
			return c.describe(src)
		}
		if err := src.Err(); err != nil {
			return err
		}
	}
	c.cur = len(c.sources)
	return c.describe(c.sources[0])
}

func (c *chain) describe(src Cursor) error {
	cols, err := src.Columns()
	if err != nil {
		return err
	}
	c.columns = cols
	c.labels = types.Labels(cols)
	return nil
}

func (c *chain) Columns() ([]*types.Column, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := c.resolve(); err != nil {
		c.fail(err)
		return nil, err
	}
	return c.columns, nil
}

func (c *chain) Next() bool {
	c.row = nil
	if c.closed || c.pos == AfterLast {
		return false
	}
	if err := c.resolve(); err != nil {
		return c.fail(err)
	}
	for c.cur < len(c.sources) {
		src := c.sources[c.cur]
		if c.pending || src.Next() {
			c.pending = false
			c.row = c.relabel(src.Row())
			return c.advance(true)
		}
		if err := src.Err(); err != nil {
			return c.fail(err)
		}
		c.cur++
	}
	return c.advance(false)
}

func (c *chain) relabel(r *types.Row) *types.Row {
	if r == nil || r.Len() != len(c.labels) || slices.Equal(r.Labels(), c.labels) {
		return r
	}
	return types.RowOf(c.labels, r.Values())
}

func (c *chain) Row() *types.Row { return c.row }

func (c *chain) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pos = AfterLast
	c.row = nil
	var errs []error
	for _, src := range c.sources {
		errs = append(errs, src.Close())
	}
	return errors.Join(errs...)
}
