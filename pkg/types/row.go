// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

// Row is an ordered label -> value map. Lookups are by label; duplicate
// labels resolve to the first occurrence.
type Row struct {
	labels []string
	values []Value
	index  map[string]int
}

func NewRow(capacity int) *Row {
	return &Row{
		labels: make([]string, 0, capacity),
		values: make([]Value, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

// RowOf builds a row from parallel label and value slices.
func RowOf(labels []string, values []Value) *Row {
	r := NewRow(len(labels))
	for i, l := range labels {
		r.Set(l, values[i])
	}
	return r
}

// Set appends label or overwrites its existing value.
func (r *Row) Set(label string, v Value) {
	if i, ok := r.index[label]; ok {
		r.values[i] = v
		return
	}
	r.index[label] = len(r.labels)
	r.labels = append(r.labels, label)
	r.values = append(r.values, v)
}

func (r *Row) Len() int          { return len(r.values) }
func (r *Row) Labels() []string  { return r.labels }
func (r *Row) Values() []Value   { return r.values }
func (r *Row) Has(l string) bool { _, ok := r.index[l]; return ok }

// Get returns the value stored under label, Null when absent.
func (r *Row) Get(label string) Value {
	if r == nil {
		return Null
	}
	if i, ok := r.index[label]; ok {
		return r.values[i]
	}
	return Null
}

// At returns the i-th value.
func (r *Row) At(i int) (Value, error) {
	if i < 0 || i >= len(r.values) {
		return Null, fmt.Errorf("column index %d out of range [0,%d)", i, len(r.values))
	}
	return r.values[i], nil
}

func (r *Row) Int(label string) (int64, error) {
	v, err := Coerce(r.Get(label), KindInt)
	return v.Int, err
}

func (r *Row) Float(label string) (float64, error) {
	v, err := Coerce(r.Get(label), KindFloat)
	return v.Float, err
}

func (r *Row) String(label string) (string, error) {
	v := r.Get(label)
	if v.IsNull() {
		return "", nil
	}
	v, err := Coerce(v, KindString)
	return v.Str, err
}

func (r *Row) Bool(label string) (bool, error) {
	v, err := Coerce(r.Get(label), KindBool)
	return v.Bool, err
}

func (r *Row) Bytes(label string) ([]byte, error) {
	v, err := Coerce(r.Get(label), KindBytes)
	return v.Bytes, err
}

func (r *Row) Time(label string) (time.Time, error) {
	v, err := Coerce(r.Get(label), KindTime)
	return v.Time, err
}

// Clone copies the row so later Set calls do not affect the original.
func (r *Row) Clone() *Row {
	return RowOf(append([]string(nil), r.labels...), append([]Value(nil), r.values...))
}

// Hash returns a hash of the canonical row values, so rows that
// Duplicates reports equal always hash the same.
func (r *Row) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range r.values {
		v = Canonical(v)
		h.Write([]byte{byte(v.Kind)})
		switch v.Kind {
		case KindInt:
			binary.LittleEndian.PutUint64(buf[:], uint64(v.Int))
			h.Write(buf[:])
		case KindFloat:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float))
			h.Write(buf[:])
		case KindTime:
			if v.TimeOfDay {
				h.Write([]byte(v.Time.Format(time.TimeOnly)))
			} else {
				binary.LittleEndian.PutUint64(buf[:], uint64(v.Time.UnixNano()))
				h.Write(buf[:])
			}
		default:
			h.Write([]byte(v.String()))
		}
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Duplicates reports whether r and o hold the same canonical values in
// the same order.
func (r *Row) Duplicates(o *Row) bool {
	if len(r.values) != len(o.values) {
		return false
	}
	for i := range r.values {
		if !sameCanonical(Canonical(r.values[i]), Canonical(o.values[i])) {
			return false
		}
	}
	return true
}

func sameCanonical(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindBool:
		return a.Bool == b.Bool
	case KindTime:
		if a.TimeOfDay || b.TimeOfDay {
			return a.TimeOfDay == b.TimeOfDay && a.Time.Format(time.TimeOnly) == b.Time.Format(time.TimeOnly)
		}
		return a.Time.Equal(b.Time)
	}
	return a.Str == b.Str
}

// Canonical maps v to the form DISTINCT compares: numeric text is read as
// its number, integral floats become Int, "true" and "false" become Bool
// and bytes are read as text.
func Canonical(v Value) Value {
	switch v.Kind {
	case KindBytes:
		return Canonical(String(string(v.Bytes)))
	case KindString:
		if n, ok := ParseNumber(v.Str); ok {
			return Canonical(n)
		}
		if b, err := toBool(v); err == nil {
			return b
		}
	case KindFloat:
		if v.Float == math.Trunc(v.Float) && v.Float >= math.MinInt64 && v.Float < math.MaxInt64 {
			return Int(int64(v.Float))
		}
	}
	return v
}
