// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package expr evaluates the scalar expressions a statement may project,
// such as "year + 1" or "upper(name)". Expressions read the bins of one
// record at a time; NULL operands make arithmetic NULL.
package expr

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrArity           = errors.New("wrong number of arguments")
	ErrOperand         = errors.New("bad operand")
)

// Reader returns the value of a bin or special field, Null when absent.
type Reader func(name string) types.Value

// Expr is a compiled scalar expression. It holds no state and may be
// evaluated concurrently.
type Expr interface {
	Eval(read Reader) (types.Value, error)
	String() string
	collect(bins []string) []string
}

// Bins lists the bins e reads, in first-use order.
func Bins(e Expr) []string {
	var out []string
	for _, b := range e.collect(nil) {
		if !contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type literal struct{ v types.Value }

// Literal is a constant.
func Literal(v types.Value) Expr { return literal{v} }

func (l literal) Eval(Reader) (types.Value, error) { return l.v, nil }
func (l literal) collect(bins []string) []string   { return bins }

func (l literal) String() string {
	switch l.v.Kind {
	case types.KindString:
		return "'" + strings.ReplaceAll(l.v.Str, "'", "''") + "'"
	case types.KindNull:
		return "NULL"
	}
	return l.v.String()
}

type bin struct{ name string }

// Bin reads a bin, or a special field, of the record.
func Bin(name string) Expr { return bin{name} }

func (b bin) Eval(read Reader) (types.Value, error) { return read(b.name), nil }
func (b bin) collect(bins []string) []string        { return append(bins, b.name) }
func (b bin) String() string                        { return b.name }

type negate struct{ x Expr }

func Negate(x Expr) Expr { return negate{x} }

func (n negate) Eval(read Reader) (types.Value, error) {
	v, err := n.x.Eval(read)
	if err != nil || v.IsNull() {
		return v, err
	}
	v, err = number(v)
	if err != nil {
		return types.Null, fmt.Errorf("-%s: %w", n.x, err)
	}
	if v.Kind == types.KindInt && v.Int != math.MinInt64 {
		return types.Int(-v.Int), nil
	}
	f, _ := types.Coerce(v, types.KindFloat)
	return types.Float(-f.Float), nil
}

func (n negate) collect(bins []string) []string { return n.x.collect(bins) }
func (n negate) String() string                 { return "-" + n.x.String() }

// Op is an arithmetic operator.
type Op string

const (
	Add    Op = "+"
	Sub    Op = "-"
	Mul    Op = "*"
	Div    Op = "/"
	IntDiv Op = "div"
	Mod    Op = "%"
)

var ops = []Op{Add, Sub, Mul, Div, IntDiv, Mod}

// ParseOp resolves an operator token; "mod" is accepted for "%".
func ParseOp(s string) (Op, bool) {
	s = strings.ToLower(s)
	if s == "mod" {
		return Mod, true
	}
	for _, op := range ops {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

type arith struct {
	op   Op
	l, r Expr
}

// Arith applies op to two operands. Integers stay integral until they
// overflow; "/" always divides as floats and division by zero is NULL.
func Arith(op Op, l, r Expr) Expr { return arith{op: op, l: l, r: r} }

func (a arith) Eval(read Reader) (types.Value, error) {
	l, err := a.l.Eval(read)
	if err != nil {
		return types.Null, err
	}
	r, err := a.r.Eval(read)
	if err != nil {
		return types.Null, err
	}
	if l.IsNull() || r.IsNull() {
		return types.Null, nil
	}
	if l, err = number(l); err != nil {
		return types.Null, fmt.Errorf("%s: %w", a, err)
	}
	if r, err = number(r); err != nil {
		return types.Null, fmt.Errorf("%s: %w", a, err)
	}
	if l.Kind == types.KindInt && r.Kind == types.KindInt {
		if v, ok := intArith(a.op, l.Int, r.Int); ok {
			return v, nil
		}
	}
	lf, _ := types.Coerce(l, types.KindFloat)
	rf, _ := types.Coerce(r, types.KindFloat)
	return floatArith(a.op, lf.Float, rf.Float), nil
}

// intArith reports ok=false when the result does not fit an int64 or is
// not an integer, leaving it to float arithmetic.
func intArith(op Op, x, y int64) (types.Value, bool) {
	switch op {
	case Add:
		s := x + y
		if (x > 0 && y > 0 && s < 0) || (x < 0 && y < 0 && s >= 0) {
			return types.Null, false
		}
		return types.Int(s), true
	case Sub:
		d := x - y
		if (x >= 0 && y < 0 && d < 0) || (x < 0 && y > 0 && d >= 0) {
			return types.Null, false
		}
		return types.Int(d), true
	case Mul:
		if x == 0 || y == 0 {
			return types.Int(0), true
		}
		p := x * y
		if p/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return types.Null, false
		}
		return types.Int(p), true
	case IntDiv, Mod:
		if y == 0 {
			return types.Null, true
		}
		if x == math.MinInt64 && y == -1 {
			return types.Null, false
		}
		if op == IntDiv {
			return types.Int(x / y), true
		}
		return types.Int(x % y), true
	}
	return types.Null, false
}

func floatArith(op Op, x, y float64) types.Value {
	switch op {
	case Add:
		return types.Float(x + y)
	case Sub:
		return types.Float(x - y)
	case Mul:
		return types.Float(x * y)
	case Div:
		if y == 0 {
			return types.Null
		}
		return types.Float(x / y)
	case IntDiv:
		if y == 0 {
			return types.Null
		}
		return types.Float(math.Trunc(x / y))
	case Mod:
		if y == 0 {
			return types.Null
		}
		return types.Float(math.Mod(x, y))
	}
	return types.Null
}

func (a arith) collect(bins []string) []string { return a.r.collect(a.l.collect(bins)) }

func (a arith) String() string {
	return a.l.String() + " " + string(a.op) + " " + a.r.String()
}

// number reads v as a number: numeric text is parsed, booleans are 0 or 1
// and times are their Unix milliseconds.
func number(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindInt, types.KindFloat:
		return v, nil
	case types.KindString:
		if n, ok := types.ParseNumber(v.Str); ok {
			return n, nil
		}
	case types.KindBool, types.KindTime:
		return types.Coerce(v, types.KindInt)
	}
	return types.Null, fmt.Errorf("%w: %s is not a number", ErrOperand, v)
}
