// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import "github.com/LeeDigitalWorks/binql/pkg/types"

type limited struct {
	state
	inner   Cursor
	offset  int
	limit   int
	skipped bool
	served  int
	row     *types.Row
}

// Limit skips offset rows of c and then yields at most n rows. A negative
// n means no limit.
func Limit(c Cursor, offset, n int) Cursor {
	return &limited{inner: c, offset: offset, limit: n}
}

func (l *limited) Columns() ([]*types.Column, error) { return l.inner.Columns() }

func (l *limited) Next() bool {
	l.row = nil
	if l.closed || l.pos == AfterLast {
		return false
	}
	if l.limit >= 0 && l.served >= l.limit {
		return l.advance(false)
	}
	if !l.skipped {
		l.skipped = true
		for i := 0; i < l.offset; i++ {
			if !l.inner.Next() {
				return l.done()
			}
		}
	}
	if !l.inner.Next() {
		return l.done()
	}
	l.served++
	l.row = l.inner.Row()
	return l.advance(true)
}

func (l *limited) done() bool {
	if err := l.inner.Err(); err != nil {
		return l.fail(err)
	}
	return l.advance(false)
}

func (l *limited) Row() *types.Row { return l.row }

func (l *limited) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.pos = AfterLast
	l.row = nil
	return l.inner.Close()
}
