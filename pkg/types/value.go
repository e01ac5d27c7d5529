// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package types holds the schemaless value model shared by every layer:
// tagged values, the single coercion function, SQL type mapping, column
// descriptors and rows.
package types

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies which field of a Value is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
	KindBool
	KindTime
)

var kindNames = [...]string{
	KindNull:   "null",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBytes:  "bytes",
	KindBool:   "bool",
	KindTime:   "time",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Numeric reports whether k is Int or Float.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Value is a tagged union over the dynamic types a bin can hold.
// The zero Value is Null.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	Bool  bool
	Time  time.Time
	// TimeOfDay marks a Time value that carries no date part.
	TimeOfDay bool
}

var Null = Value{}

func Int(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value   { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value    { return Value{Kind: KindBytes, Bytes: b} }
func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Time(t time.Time) Value  { return Value{Kind: KindTime, Time: t} }
func Clock(t time.Time) Value { return Value{Kind: KindTime, Time: t, TimeOfDay: true} }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// FromNative converts a value returned by a store client into a Value.
// Unknown types (lists, maps, GeoJSON) are carried as their printed form.
func FromNative(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case Value:
		return t
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case bool:
		return Bool(t)
	case time.Time:
		return Time(t)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Native returns the Go value held by v, nil for Null.
func (v Value) Native() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	default:
		return nil
	}
}

// String renders v the way the CLI prints it.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBytes:
		return hex.EncodeToString(v.Bytes)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		if v.TimeOfDay {
			return v.Time.Format(time.TimeOnly)
		}
		return v.Time.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v.Native())
	}
}
