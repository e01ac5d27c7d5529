// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Buffer materializes another cursor on first use and serves its rows with
// random access.
type Buffer struct {
	inner   Cursor
	loaded  bool
	arrange func([]*types.Row)
	columns []*types.Column
	rows    []*types.Row
	// idx is -1 before the first row and len(rows) after the last.
	idx    int
	err    error
	closed bool
}

var _ Scrollable = (*Buffer)(nil)

// NewBuffer wraps c. The inner cursor is drained and closed lazily.
func NewBuffer(c Cursor) *Buffer {
	return &Buffer{inner: c, idx: -1}
}

// NewRows serves rows that are already in memory.
func NewRows(cols []*types.Column, rows []*types.Row) *Buffer {
	return &Buffer{loaded: true, columns: cols, rows: rows, idx: -1}
}

func (b *Buffer) load() bool {
	if b.loaded {
		return b.err == nil
	}
	b.loaded = true
	cols, err := b.inner.Columns()
	if err != nil {
		b.err = err
		b.inner.Close()
		return false
	}
	b.columns = cols
	b.rows, b.err = Collect(b.inner)
	if b.err != nil {
		b.rows = nil
		return false
	}
	if b.arrange != nil {
		b.arrange(b.rows)
	}
	return true
}

func (b *Buffer) Columns() ([]*types.Column, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if !b.load() {
		return nil, b.err
	}
	return b.columns, nil
}

// Len returns the number of buffered rows.
func (b *Buffer) Len() int {
	b.load()
	return len(b.rows)
}

// Rows exposes the buffered rows.
func (b *Buffer) Rows() []*types.Row {
	b.load()
	return b.rows
}

func (b *Buffer) Next() bool {
	return b.Relative(1)
}

func (b *Buffer) Row() *types.Row {
	if b.closed || b.idx < 0 || b.idx >= len(b.rows) {
		return nil
	}
	return b.rows[b.idx]
}

func (b *Buffer) Position() Position {
	switch {
	case b.closed || (b.loaded && b.idx >= len(b.rows)):
		return AfterLast
	case b.idx < 0:
		return BeforeFirst
	}
	return OnRow
}

func (b *Buffer) RowNumber() int {
	if b.Position() != OnRow {
		return 0
	}
	return b.idx + 1
}

func (b *Buffer) Err() error { return b.err }

// move clamps i into [-1, len] and reports whether it lands on a row.
func (b *Buffer) move(i int) bool {
	if b.closed || !b.load() {
		return false
	}
	switch {
	case i < 0:
		b.idx = -1
	case i >= len(b.rows):
		b.idx = len(b.rows)
	default:
		b.idx = i
	}
	return b.idx >= 0 && b.idx < len(b.rows)
}

func (b *Buffer) First() bool { return b.move(0) }

func (b *Buffer) Last() bool {
	if !b.load() {
		return false
	}
	return b.move(len(b.rows) - 1)
}

func (b *Buffer) Absolute(n int) bool {
	if !b.load() {
		return false
	}
	switch {
	case n > 0:
		return b.move(n - 1)
	case n < 0:
		if -n > len(b.rows) {
			return b.move(-1)
		}
		return b.move(len(b.rows) + n)
	}
	return b.move(-1)
}

func (b *Buffer) Relative(n int) bool {
	if !b.load() {
		return false
	}
	return b.move(b.idx + n)
}

func (b *Buffer) BeforeFirst() { b.move(-1) }

func (b *Buffer) AfterLast() {
	if b.load() {
		b.move(len(b.rows))
	}
}

func (b *Buffer) IsFirst() bool { return b.Position() == OnRow && b.idx == 0 }

func (b *Buffer) IsLast() bool { return b.Position() == OnRow && b.idx == len(b.rows)-1 }

func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.rows = nil
	if b.inner != nil && !b.loaded {
		return b.inner.Close()
	}
	return nil
}
