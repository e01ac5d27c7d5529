// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package order compares dynamically typed values and rows for ORDER BY,
// residual filtering and aggregation.
package order

import (
	"bytes"
	"cmp"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Compare orders two values ascending. Null sorts before every non-null
// value. Values of different kinds are brought to a common kind first:
// numbers compare numerically, a string that parses as a number compares
// as that number, "true"/"false" compare as booleans against a boolean,
// and strings compare with bytes by their UTF-8 encoding.
func Compare(a, b types.Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}

	if a.Kind == b.Kind {
		return compareSame(a, b)
	}

	switch {
	case a.Kind.Numeric() && b.Kind.Numeric():
		return compareNumbers(a, b)
	case a.Kind.Numeric() && b.Kind == types.KindString:
		if n, ok := types.ParseNumber(b.Str); ok {
			return compareNumbers(a, n)
		}
	case a.Kind == types.KindString && b.Kind.Numeric():
		if n, ok := types.ParseNumber(a.Str); ok {
			return compareNumbers(n, b)
		}
	case a.Kind == types.KindBool || b.Kind == types.KindBool:
		ab, aerr := types.Coerce(a, types.KindBool)
		bb, berr := types.Coerce(b, types.KindBool)
		if aerr == nil && berr == nil && (a.Kind == types.KindString || b.Kind == types.KindString) {
			return compareBools(ab.Bool, bb.Bool)
		}
	case a.Kind == types.KindBytes || b.Kind == types.KindBytes:
		ab, _ := types.Coerce(a, types.KindBytes)
		bb, _ := types.Coerce(b, types.KindBytes)
		return bytes.Compare(ab.Bytes, bb.Bytes)
	case a.Kind == types.KindTime || b.Kind == types.KindTime:
		at, aerr := types.Coerce(a, types.KindTime)
		bt, berr := types.Coerce(b, types.KindTime)
		if aerr == nil && berr == nil {
			return compareSame(at, bt)
		}
	}

	// No common kind: fall back to the printed form so the order is
	// still total.
	return strings.Compare(a.String(), b.String())
}

func compareSame(a, b types.Value) int {
	switch a.Kind {
	case types.KindInt:
		return cmp.Compare(a.Int, b.Int)
	case types.KindFloat:
		return cmp.Compare(a.Float, b.Float)
	case types.KindString:
		return strings.Compare(a.Str, b.Str)
	case types.KindBytes:
		return bytes.Compare(a.Bytes, b.Bytes)
	case types.KindBool:
		return compareBools(a.Bool, b.Bool)
	case types.KindTime:
		if a.TimeOfDay || b.TimeOfDay {
			return cmp.Compare(secondOfDay(a.Time), secondOfDay(b.Time))
		}
		return a.Time.Compare(b.Time)
	}
	return 0
}

func compareNumbers(a, b types.Value) int {
	if a.Kind == types.KindInt && b.Kind == types.KindInt {
		return cmp.Compare(a.Int, b.Int)
	}
	af, _ := types.Coerce(a, types.KindFloat)
	bf, _ := types.Coerce(b, types.KindFloat)
	return cmp.Compare(af.Float, bf.Float)
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// secondOfDay truncates a time-of-day to whole seconds.
func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// Equal reports whether a and b compare equal.
func Equal(a, b types.Value) bool {
	return Compare(a, b) == 0
}
