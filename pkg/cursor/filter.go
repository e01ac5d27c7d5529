// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import "github.com/LeeDigitalWorks/binql/pkg/types"

// Predicate decides whether a row is kept.
type Predicate func(*types.Row) (bool, error)

type filtered struct {
	state
	inner Cursor
	keep  Predicate
	row   *types.Row
}

// Filter yields only the rows of c for which keep returns true. An error
// from keep stops iteration.
func Filter(c Cursor, keep Predicate) Cursor {
	return &filtered{inner: c, keep: keep}
}

func (f *filtered) Columns() ([]*types.Column, error) { return f.inner.Columns() }

func (f *filtered) Next() bool {
	f.row = nil
	if f.closed || f.pos == AfterLast {
		return false
	}
	for f.inner.Next() {
		r := f.inner.Row()
		ok, err := f.keep(r)
		if err != nil {
			return f.fail(err)
		}
		if ok {
			f.row = r
			return f.advance(true)
		}
	}
	if err := f.inner.Err(); err != nil {
		return f.fail(err)
	}
	return f.advance(false)
}

func (f *filtered) Row() *types.Row { return f.row }

func (f *filtered) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.pos = AfterLast
	f.row = nil
	return f.inner.Close()
}
