// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package cursor turns the store's native result shapes (a record, a batch,
// a query stream, a scan callback) into one pull-based row cursor, and
// provides the wrappers the planner composes on top: filter, buffer, chain,
// sort, distinct, offset/limit and projection.
package cursor

import (
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

var (
	ErrColumnIndex = errors.New("column index out of range")
	ErrClosed      = errors.New("cursor closed")
)

// Position is where a cursor stands relative to its rows.
type Position uint8

const (
	BeforeFirst Position = iota
	OnRow
	AfterLast
)

func (p Position) String() string {
	switch p {
	case BeforeFirst:
		return "before-first"
	case OnRow:
		return "on-row"
	case AfterLast:
		return "after-last"
	}
	return fmt.Sprintf("position(%d)", p)
}

// Cursor is a forward iterator over rows.
//
// A new cursor is BeforeFirst. Next moves to the following row and reports
// whether there is one; once it returns false the cursor is AfterLast and
// every later Next returns false again. Err reports what stopped iteration
// early, if anything.
type Cursor interface {
	// Columns returns the column metadata, discovering types if needed.
	Columns() ([]*types.Column, error)
	Next() bool
	// Row returns the current row, nil unless Position is OnRow.
	Row() *types.Row
	Position() Position
	// RowNumber is the 1-based number of the current row, 0 off a row.
	RowNumber() int
	Err() error
	Close() error
}

// Scrollable is a cursor with random access over materialized rows.
type Scrollable interface {
	Cursor
	First() bool
	Last() bool
	// Absolute moves to row n (1-based); negative n counts from the end.
	Absolute(n int) bool
	Relative(n int) bool
	BeforeFirst()
	AfterLast()
	IsFirst() bool
	IsLast() bool
}

// Value returns the i-th column of the current row.
func Value(c Cursor, i int) (types.Value, error) {
	r := c.Row()
	if r == nil {
		return types.Null, fmt.Errorf("%w: no current row", ErrColumnIndex)
	}
	if i < 0 || i >= r.Len() {
		return types.Null, fmt.Errorf("%w: %d not in [0,%d)", ErrColumnIndex, i, r.Len())
	}
	v, _ := r.At(i)
	return v, nil
}

// Collect drains c and closes it.
func Collect(c Cursor) ([]*types.Row, error) {
	defer c.Close()
	var out []*types.Row
	for c.Next() {
		out = append(out, c.Row())
	}
	return out, c.Err()
}

// state tracks position for cursors that only move forward.
type state struct {
	pos    Position
	rowNum int
	err    error
	closed bool
}

// advance records the outcome of an attempt to move to the next row.
func (s *state) advance(ok bool) bool {
	if s.pos == AfterLast {
		return false
	}
	if !ok {
		s.pos = AfterLast
		return false
	}
	s.pos = OnRow
	s.rowNum++
	return true
}

// fail stops the cursor with err.
func (s *state) fail(err error) bool {
	if s.err == nil {
		s.err = err
	}
	s.pos = AfterLast
	return false
}

func (s *state) Position() Position { return s.pos }
func (s *state) Err() error         { return s.err }

func (s *state) RowNumber() int {
	if s.pos != OnRow {
		return 0
	}
	return s.rowNum
}
