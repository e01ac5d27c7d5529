// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import "github.com/LeeDigitalWorks/binql/pkg/types"

type distinct struct {
	state
	inner    Cursor
	resolved bool
	labels   []string
	seen     map[uint64][]*types.Row
	row      *types.Row
}

// Distinct drops rows whose visible values equal a row already yielded.
// Rows are compared by canonical value, so 1, 1.0 and '1' are duplicates.
// Hidden columns do not take part.
func Distinct(c Cursor) Cursor {
	return &distinct{inner: c, seen: make(map[uint64][]*types.Row)}
}

// resolve picks the labels rows are compared on.
func (d *distinct) resolve() error {
	if d.resolved {
		return nil
	}
	cols, err := d.inner.Columns()
	if err != nil {
		return err
	}
	d.resolved = true
	for _, c := range cols {
		if c.Role() != types.RoleHidden {
			d.labels = append(d.labels, c.Label())
		}
	}
	return nil
}

// key projects r onto the compared labels.
func (d *distinct) key(r *types.Row) *types.Row {
	if len(d.labels) == r.Len() {
		return r
	}
	k := types.NewRow(len(d.labels))
	for _, l := range d.labels {
		k.Set(l, r.Get(l))
	}
	return k
}

func (d *distinct) Columns() ([]*types.Column, error) { return d.inner.Columns() }

func (d *distinct) Next() bool {
	d.row = nil
	if d.closed || d.pos == AfterLast {
		return false
	}
	if err := d.resolve(); err != nil {
		return d.fail(err)
	}
	for d.inner.Next() {
		r := d.inner.Row()
		k := d.key(r)
		h := k.Hash()
		if d.contains(h, k) {
			continue
		}
		d.seen[h] = append(d.seen[h], k)
		d.row = r
		return d.advance(true)
	}
	if err := d.inner.Err(); err != nil {
		return d.fail(err)
	}
	return d.advance(false)
}

func (d *distinct) contains(h uint64, r *types.Row) bool {
	for _, o := range d.seen[h] {
		if o.Duplicates(r) {
			return true
		}
	}
	return false
}

func (d *distinct) Row() *types.Row { return d.row }

func (d *distinct) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.pos = AfterLast
	d.row = nil
	d.seen = nil
	return d.inner.Close()
}
