// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CoercionError reports a value that cannot be read as the requested kind.
type CoercionError struct {
	From  Kind
	To    Kind
	Value string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot convert %s value %q to %s", e.From, e.Value, e.To)
}

func coercionError(v Value, to Kind) error {
	return &CoercionError{From: v.Kind, To: to, Value: v.String()}
}

// Coerce converts v to kind k. Null converts to Null for every target.
// Every typed read, comparison, filter and hash goes through here.
func Coerce(v Value, k Kind) (Value, error) {
	if v.Kind == k || v.Kind == KindNull {
		return v, nil
	}
	switch k {
	case KindNull:
		return Null, nil
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindString:
		return String(v.String()), nil
	case KindBytes:
		switch v.Kind {
		case KindString:
			return Bytes([]byte(v.Str)), nil
		default:
			return Bytes([]byte(v.String())), nil
		}
	case KindBool:
		return toBool(v)
	case KindTime:
		return toTime(v)
	}
	return Null, coercionError(v, k)
}

func toInt(v Value) (Value, error) {
	switch v.Kind {
	case KindFloat:
		if v.Float != math.Trunc(v.Float) || v.Float > math.MaxInt64 || v.Float < math.MinInt64 {
			return Null, coercionError(v, KindInt)
		}
		return Int(int64(v.Float)), nil
	case KindBool:
		if v.Bool {
			return Int(1), nil
		}
		return Int(0), nil
	case KindString:
		s := strings.TrimSpace(v.Str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return Int(int64(f)), nil
		}
	case KindTime:
		return Int(v.Time.UnixMilli()), nil
	}
	return Null, coercionError(v, KindInt)
}

func toFloat(v Value) (Value, error) {
	switch v.Kind {
	case KindInt:
		return Float(float64(v.Int)), nil
	case KindBool:
		if v.Bool {
			return Float(1), nil
		}
		return Float(0), nil
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return Float(f), nil
		}
	}
	return Null, coercionError(v, KindFloat)
}

func toBool(v Value) (Value, error) {
	switch v.Kind {
	case KindInt:
		return Bool(v.Int != 0), nil
	case KindFloat:
		return Bool(v.Float != 0), nil
	case KindString:
		switch v.Str {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
	}
	return Null, coercionError(v, KindBool)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	time.DateOnly,
}

func toTime(v Value) (Value, error) {
	switch v.Kind {
	case KindInt:
		return Time(time.UnixMilli(v.Int).UTC()), nil
	case KindString:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return Time(t), nil
			}
		}
		if t, err := time.Parse(time.TimeOnly, v.Str); err == nil {
			return Clock(t), nil
		}
	}
	return Null, coercionError(v, KindTime)
}

// ParseNumber reads s as the narrowest numeric kind that round-trips it:
// text without '.' (or an exponent) is an Int, anything else a Float.
// Integers that overflow int64 fall back to Float.
func ParseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null, false
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Null, false
	}
	return Float(f), true
}
