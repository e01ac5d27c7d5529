// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

// Func names an aggregate function.
type Func string

const (
	Count  Func = "count"
	Sum    Func = "sum"
	Avg    Func = "avg"
	Min    Func = "min"
	Max    Func = "max"
	SumSqs Func = "sumsqs"
)

var funcs = []Func{Count, Sum, Avg, Min, Max, SumSqs}

// LookupFunc resolves a function name case-insensitively.
func LookupFunc(name string) (Func, bool) {
	for _, f := range funcs {
		if strings.EqualFold(string(f), name) {
			return f, true
		}
	}
	return "", false
}

// partial is the running state of one aggregate. For avg, v holds the sum
// and n the count; for count distinct, seen holds the values counted.
type partial struct {
	set  bool
	v    types.Value
	n    int64
	seen map[string]struct{}
}

// contribute folds one input value into p.
func (f Func) contribute(p *partial, v types.Value, distinct bool) {
	if f == Count {
		if v.IsNull() {
			return
		}
		if distinct {
			if p.seen == nil {
				p.seen = make(map[string]struct{})
			}
			p.seen[distinctKey(v)] = struct{}{}
			p.n = int64(len(p.seen))
		} else {
			p.n++
		}
		p.set = true
		return
	}
	if !v.Kind.Numeric() {
		return
	}
	switch f {
	case SumSqs:
		f.merge(p, partial{set: true, v: square(v)})
	case Avg:
		f.merge(p, partial{set: true, v: v, n: 1})
	default:
		f.merge(p, partial{set: true, v: v})
	}
}

// merge folds the partial o into p.
func (f Func) merge(p *partial, o partial) {
	if !o.set {
		return
	}
	if !p.set {
		*p = o
		return
	}
	switch f {
	case Count:
		p.n += o.n
	case Sum, SumSqs:
		p.v = add(p.v, o.v)
	case Avg:
		p.v = add(p.v, o.v)
		p.n += o.n
	case Min:
		if order.Compare(o.v, p.v) < 0 {
			p.v = o.v
		}
	case Max:
		if order.Compare(o.v, p.v) > 0 {
			p.v = o.v
		}
	}
}

// final is the value reported for p.
func (f Func) final(p partial) types.Value {
	switch f {
	case Count:
		return types.Int(p.n)
	case Avg:
		if !p.set || p.n == 0 {
			return types.Null
		}
		sum, _ := types.Coerce(p.v, types.KindFloat)
		return types.Float(sum.Float / float64(p.n))
	}
	if !p.set {
		return types.Null
	}
	return p.v
}

// decode reads a partial emitted by an aggregation script: a number, or for
// avg a map holding "sum" and "count".
func (f Func) decode(raw any) (partial, error) {
	if raw == nil {
		return partial{}, nil
	}
	if f == Avg {
		m, ok := asMap(raw)
		if !ok {
			return partial{}, fmt.Errorf("avg partial is %T, want map", raw)
		}
		sum := types.FromNative(m["sum"])
		count, err := types.Coerce(types.FromNative(m["count"]), types.KindInt)
		if err != nil || !sum.Kind.Numeric() {
			return partial{}, fmt.Errorf("malformed avg partial %v", raw)
		}
		return partial{set: true, v: sum, n: count.Int}, nil
	}
	v := types.FromNative(raw)
	if !v.Kind.Numeric() {
		return partial{}, fmt.Errorf("%s partial is %T, want number", f, raw)
	}
	if f == Count {
		n, err := types.Coerce(v, types.KindInt)
		if err != nil {
			return partial{}, err
		}
		return partial{set: true, n: n.Int}, nil
	}
	return partial{set: true, v: v}, nil
}

// add keeps integer sums integral until they overflow.
func add(a, b types.Value) types.Value {
	if a.Kind == types.KindInt && b.Kind == types.KindInt {
		s := a.Int + b.Int
		if (a.Int > 0 && b.Int > 0 && s < 0) || (a.Int < 0 && b.Int < 0 && s >= 0) {
			return types.Float(float64(a.Int) + float64(b.Int))
		}
		return types.Int(s)
	}
	af, _ := types.Coerce(a, types.KindFloat)
	bf, _ := types.Coerce(b, types.KindFloat)
	return types.Float(af.Float + bf.Float)
}

func square(v types.Value) types.Value {
	if v.Kind == types.KindInt && v.Int > -math.MaxInt32 && v.Int < math.MaxInt32 {
		return types.Int(v.Int * v.Int)
	}
	f, _ := types.Coerce(v, types.KindFloat)
	return types.Float(f.Float * f.Float)
}

// distinctKey identifies a value for count(distinct ...) by its canonical
// form, the same one DISTINCT rows are compared by.
func distinctKey(v types.Value) string {
	return udf.EncodeKey(types.Canonical(v))
}

// asMap accepts both map shapes a store may return for a script map.
func asMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}
