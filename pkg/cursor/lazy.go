// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import "github.com/LeeDigitalWorks/binql/pkg/types"

type lazy struct {
	build   func() (Cursor, error)
	abandon func() error
	inner   Cursor
	err     error
	closed  bool
}

// Lazy defers building a cursor until it is first used. Aggregations use
// it so that executing a plan does not block on draining the source.
// abandon, if not nil, releases what build would have consumed when the
// cursor is closed before first use.
func Lazy(build func() (Cursor, error), abandon func() error) Cursor {
	return &lazy{build: build, abandon: abandon}
}

func (l *lazy) get() Cursor {
	if l.inner == nil && l.err == nil && !l.closed {
		l.inner, l.err = l.build()
		l.build = nil
	}
	return l.inner
}

func (l *lazy) Columns() ([]*types.Column, error) {
	if l.closed {
		return nil, ErrClosed
	}
	if c := l.get(); c != nil {
		return c.Columns()
	}
	return nil, l.err
}

func (l *lazy) Next() bool {
	if c := l.get(); c != nil {
		return c.Next()
	}
	return false
}

func (l *lazy) Row() *types.Row {
	if l.inner == nil {
		return nil
	}
	return l.inner.Row()
}

func (l *lazy) Position() Position {
	switch {
	case l.inner != nil:
		return l.inner.Position()
	case l.err != nil || l.closed:
		return AfterLast
	}
	return BeforeFirst
}

func (l *lazy) RowNumber() int {
	if l.inner == nil {
		return 0
	}
	return l.inner.RowNumber()
}

func (l *lazy) Err() error {
	if l.inner != nil {
		return l.inner.Err()
	}
	return l.err
}

func (l *lazy) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	switch {
	case l.inner != nil:
		return l.inner.Close()
	case l.build != nil && l.abandon != nil:
		l.build = nil
		return l.abandon()
	}
	return nil
}
