// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package expr

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/google/uuid"
)

// now is the clock behind now() and the date functions called without a
// value. Tests replace it.
var now = time.Now

type function struct {
	min, max int // max < 0 is variadic
	// strict functions return NULL when any argument is NULL, without
	// calling fn.
	strict bool
	fn     func(args []types.Value) (types.Value, error)
}

func (f function) arity() string {
	switch {
	case f.max < 0:
		return fmt.Sprintf("at least %d", f.min)
	case f.min == f.max:
		return fmt.Sprint(f.min)
	}
	return fmt.Sprintf("%d to %d", f.min, f.max)
}

var functions = map[string]function{}

func register(f function, names ...string) {
	for _, n := range names {
		functions[n] = f
	}
}

// IsFunction reports whether name is a known scalar function.
func IsFunction(name string) bool {
	_, ok := functions[strings.ToLower(name)]
	return ok
}

// Functions lists the scalar function names, sorted.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for n := range functions {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

type call struct {
	name string
	f    function
	args []Expr
}

// Call builds a call of the named scalar function, checking its arity.
func Call(name string, args ...Expr) (Expr, error) {
	lower := strings.ToLower(name)
	f, ok := functions[lower]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) < f.min || (f.max >= 0 && len(args) > f.max) {
		return nil, fmt.Errorf("%w: %s takes %s, got %d", ErrArity, lower, f.arity(), len(args))
	}
	return call{name: lower, f: f, args: args}, nil
}

func (c call) Eval(read Reader) (types.Value, error) {
	vals := make([]types.Value, len(c.args))
	for i, a := range c.args {
		v, err := a.Eval(read)
		if err != nil {
			return types.Null, err
		}
		if c.f.strict && v.IsNull() {
			return types.Null, nil
		}
		vals[i] = v
	}
	v, err := c.f.fn(vals)
	if err != nil {
		return types.Null, fmt.Errorf("%s: %w", c, err)
	}
	return v, nil
}

func (c call) collect(bins []string) []string {
	for _, a := range c.args {
		bins = a.collect(bins)
	}
	return bins
}

func (c call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

// text reads v as a string; bytes are taken as raw text.
func text(v types.Value) string {
	if v.Kind == types.KindBytes {
		return string(v.Bytes)
	}
	return v.String()
}

func integer(v types.Value) (int64, error) {
	n, err := number(v)
	if err != nil {
		return 0, err
	}
	i, err := types.Coerce(n, types.KindInt)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrOperand, v)
	}
	return i.Int, nil
}

func float(v types.Value) (float64, error) {
	n, err := number(v)
	if err != nil {
		return 0, err
	}
	f, _ := types.Coerce(n, types.KindFloat)
	return f.Float, nil
}

// instant reads v as a point in time; NULL is the current time and
// numbers are Unix milliseconds.
func instant(v types.Value) (time.Time, error) {
	switch v.Kind {
	case types.KindNull:
		return now(), nil
	case types.KindFloat:
		return time.UnixMilli(int64(v.Float)).UTC(), nil
	}
	t, err := types.Coerce(v, types.KindTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s is not a time", ErrOperand, v)
	}
	return t.Time, nil
}

// floatResult maps NaN and the infinities to NULL.
func floatResult(f float64) types.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return types.Null
	}
	return types.Float(f)
}

// integral returns f as an Int when it is whole and fits, else a Float.
func integral(f float64) types.Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return types.Int(int64(f))
	}
	return floatResult(f)
}

func unaryMath(fn func(float64) float64) function {
	return function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		x, err := float(a[0])
		if err != nil {
			return types.Null, err
		}
		return floatResult(fn(x)), nil
	}}
}

func binaryMath(fn func(x, y float64) float64) function {
	return function{min: 2, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		x, err := float(a[0])
		if err != nil {
			return types.Null, err
		}
		y, err := float(a[1])
		if err != nil {
			return types.Null, err
		}
		return floatResult(fn(x, y)), nil
	}}
}

func stringFunc(fn func(string) string) function {
	return function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		return types.String(fn(text(a[0]))), nil
	}}
}

// datePart extracts a calendar field; called without a value, or with
// NULL, it reads the current time.
func datePart(fn func(time.Time) int) function {
	return function{min: 0, max: 1, fn: func(a []types.Value) (types.Value, error) {
		v := types.Null
		if len(a) == 1 {
			v = a[0]
		}
		t, err := instant(v)
		if err != nil {
			return types.Null, err
		}
		return types.Int(int64(fn(t))), nil
	}}
}

// runeIndex is the 1-based rune position of sub in s at or after the
// 1-based position from, or 0.
func runeIndex(s, sub string, from int) int {
	if from < 1 {
		return 0
	}
	runes := []rune(s)
	if from > len(runes)+1 {
		return 0
	}
	i := strings.Index(string(runes[from-1:]), sub)
	if i < 0 {
		return 0
	}
	return from + utf8.RuneCountInString(string(runes[from-1:])[:i])
}

// substring follows SQL: positions are 1-based and a negative start
// counts from the end.
func substring(s string, start, length int64, hasLength bool) string {
	runes := []rune(s)
	n := int64(len(runes))
	switch {
	case start > 0:
		start--
	case start < 0:
		start += n
	default:
		return ""
	}
	if start < 0 || start >= n {
		return ""
	}
	end := n
	if hasLength {
		if length <= 0 {
			return ""
		}
		end = min(n, start+length)
	}
	return string(runes[start:end])
}

func init() {
	register(function{min: 1, max: 1, fn: func(a []types.Value) (types.Value, error) {
		switch a[0].Kind {
		case types.KindNull:
			return types.Int(0), nil
		case types.KindBytes:
			return types.Int(int64(len(a[0].Bytes))), nil
		}
		return types.Int(int64(utf8.RuneCountInString(text(a[0])))), nil
	}}, "len", "length", "char_length")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		s := text(a[0])
		if s == "" {
			return types.Int(0), nil
		}
		r, _ := utf8.DecodeRuneInString(s)
		return types.Int(int64(r)), nil
	}}, "ascii")

	register(function{min: 1, max: -1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		var sb strings.Builder
		for _, v := range a {
			c, err := integer(v)
			if err != nil {
				return types.Null, err
			}
			sb.WriteRune(rune(c))
		}
		return types.String(sb.String()), nil
	}}, "char")

	register(function{min: 2, max: 3, strict: true, fn: func(a []types.Value) (types.Value, error) {
		from := int64(1)
		if len(a) == 3 {
			var err error
			if from, err = integer(a[2]); err != nil {
				return types.Null, err
			}
		}
		return types.Int(int64(runeIndex(text(a[1]), text(a[0]), int(from)))), nil
	}}, "locate")

	register(function{min: 2, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		return types.Int(int64(runeIndex(text(a[0]), text(a[1]), 1))), nil
	}}, "instr")

	register(function{min: 2, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		return types.Int(int64(strings.Compare(text(a[0]), text(a[1])))), nil
	}}, "strcmp")

	register(function{min: 2, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := integer(a[1])
		if err != nil {
			return types.Null, err
		}
		runes := []rune(text(a[0]))
		return types.String(string(runes[:max(0, min(int64(len(runes)), n))])), nil
	}}, "left")

	register(function{min: 2, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := integer(a[1])
		if err != nil {
			return types.Null, err
		}
		runes := []rune(text(a[0]))
		return types.String(string(runes[int64(len(runes))-max(0, min(int64(len(runes)), n)):])), nil
	}}, "right")

	register(function{min: 2, max: 3, strict: true, fn: func(a []types.Value) (types.Value, error) {
		start, err := integer(a[1])
		if err != nil {
			return types.Null, err
		}
		var length int64
		if len(a) == 3 {
			if length, err = integer(a[2]); err != nil {
				return types.Null, err
			}
		}
		return types.String(substring(text(a[0]), start, length, len(a) == 3)), nil
	}}, "substring", "substr")

	register(function{min: 3, max: 3, strict: true, fn: func(a []types.Value) (types.Value, error) {
		return types.String(strings.ReplaceAll(text(a[0]), text(a[1]), text(a[2]))), nil
	}}, "replace")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := integer(a[0])
		if err != nil {
			return types.Null, err
		}
		return types.String(strings.Repeat(" ", int(max(0, n)))), nil
	}}, "space")

	register(stringFunc(strings.TrimSpace), "trim")
	register(stringFunc(func(s string) string { return strings.TrimLeft(s, " ") }), "ltrim")
	register(stringFunc(func(s string) string { return strings.TrimRight(s, " ") }), "rtrim")
	register(stringFunc(strings.ToLower), "lower", "lcase")
	register(stringFunc(strings.ToUpper), "upper", "ucase")
	register(stringFunc(func(s string) string {
		runes := []rune(s)
		slices.Reverse(runes)
		return string(runes)
	}), "reverse")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		if a[0].Kind == types.KindBytes {
			hex := make([]string, len(a[0].Bytes))
			for i, b := range a[0].Bytes {
				hex[i] = fmt.Sprintf("%02X", b)
			}
			return types.String(strings.Join(hex, " ")), nil
		}
		return types.String(a[0].String()), nil
	}}, "str")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		return types.String(base64.StdEncoding.EncodeToString([]byte(text(a[0])))), nil
	}}, "to_base64")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		b, err := base64.StdEncoding.DecodeString(text(a[0]))
		if err != nil {
			return types.Null, fmt.Errorf("%w: %v", ErrOperand, err)
		}
		return types.Bytes(b), nil
	}}, "from_base64")

	register(function{min: 1, max: -1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		var sb strings.Builder
		for _, v := range a {
			sb.WriteString(text(v))
		}
		return types.String(sb.String()), nil
	}}, "concat")

	register(function{min: 2, max: -1, fn: func(a []types.Value) (types.Value, error) {
		if a[0].IsNull() {
			return types.Null, nil
		}
		parts := make([]string, 0, len(a)-1)
		for _, v := range a[1:] {
			if !v.IsNull() {
				parts = append(parts, text(v))
			}
		}
		return types.String(strings.Join(parts, text(a[0]))), nil
	}}, "concat_ws")

	register(function{min: 1, max: -1, fn: func(a []types.Value) (types.Value, error) {
		for _, v := range a {
			if !v.IsNull() {
				return v, nil
			}
		}
		return types.Null, nil
	}}, "coalesce", "ifnull")

	register(function{min: 0, max: 0, fn: func([]types.Value) (types.Value, error) {
		return types.String(uuid.NewString()), nil
	}}, "uuid")

	register(function{min: 0, max: 0, fn: func([]types.Value) (types.Value, error) {
		return types.Time(now()), nil
	}}, "now", "current_timestamp")

	register(function{min: 0, max: 1, fn: func(a []types.Value) (types.Value, error) {
		v := types.Null
		if len(a) == 1 {
			v = a[0]
		}
		t, err := instant(v)
		if err != nil {
			return types.Null, err
		}
		return types.Time(t), nil
	}}, "date")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		t, err := instant(a[0])
		if err != nil {
			return types.Null, err
		}
		return types.Int(t.UnixMilli()), nil
	}}, "epoch", "millis")

	register(datePart(func(t time.Time) int { return t.Year() }), "year")
	register(datePart(func(t time.Time) int { return int(t.Month()) }), "month")
	register(datePart(time.Time.Day), "dayofmonth", "day")
	register(datePart(time.Time.Hour), "hour")
	register(datePart(time.Time.Minute), "minute")
	register(datePart(time.Time.Second), "second")
	register(datePart(func(t time.Time) int { return t.Nanosecond() / int(time.Millisecond) }), "millisecond")

	register(function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := number(a[0])
		if err != nil {
			return types.Null, err
		}
		if n.Kind == types.KindInt && n.Int != math.MinInt64 {
			if n.Int < 0 {
				return types.Int(-n.Int), nil
			}
			return n, nil
		}
		f, _ := types.Coerce(n, types.KindFloat)
		return types.Float(math.Abs(f.Float)), nil
	}}, "abs")

	register(integralMath(math.Ceil), "ceil", "ceiling")
	register(integralMath(math.Floor), "floor")

	register(function{min: 1, max: 2, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := number(a[0])
		if err != nil {
			return types.Null, err
		}
		var digits int64
		if len(a) == 2 {
			if digits, err = integer(a[1]); err != nil {
				return types.Null, err
			}
		}
		if n.Kind == types.KindInt && digits >= 0 {
			return n, nil
		}
		f, _ := types.Coerce(n, types.KindFloat)
		if digits == 0 {
			return integral(math.Round(f.Float)), nil
		}
		scale := math.Pow(10, float64(digits))
		return floatResult(math.Round(f.Float*scale) / scale), nil
	}}, "round")

	register(unaryMath(math.Sqrt), "sqrt")
	register(unaryMath(math.Exp), "exp")
	register(unaryMath(math.Log), "ln")
	register(unaryMath(math.Log10), "log10")
	register(unaryMath(math.Log2), "log2")
	register(unaryMath(math.Sin), "sin")
	register(unaryMath(math.Cos), "cos")
	register(unaryMath(math.Tan), "tan")
	register(unaryMath(math.Asin), "asin")
	register(unaryMath(math.Acos), "acos")
	register(unaryMath(math.Atan), "atan")
	register(unaryMath(func(x float64) float64 { return 1 / math.Tan(x) }), "cot")
	register(unaryMath(func(x float64) float64 { return x * 180 / math.Pi }), "degrees")
	register(unaryMath(func(x float64) float64 { return x * math.Pi / 180 }), "radians")
	register(binaryMath(math.Atan2), "atan2")
	register(binaryMath(math.Pow), "pow", "power")

	register(function{min: 2, max: 2, fn: func(a []types.Value) (types.Value, error) {
		return Arith(Mod, Literal(a[0]), Literal(a[1])).Eval(nil)
	}}, "mod")

	register(function{min: 0, max: 0, fn: func([]types.Value) (types.Value, error) {
		return types.Float(math.Pi), nil
	}}, "pi")

	register(function{min: 0, max: 0, fn: func([]types.Value) (types.Value, error) {
		return types.Float(rand.Float64()), nil
	}}, "rand")
}

// integralMath keeps integers as they are and rounds floats to an Int
// when the result fits.
func integralMath(fn func(float64) float64) function {
	return function{min: 1, max: 1, strict: true, fn: func(a []types.Value) (types.Value, error) {
		n, err := number(a[0])
		if err != nil {
			return types.Null, err
		}
		if n.Kind == types.KindInt {
			return n, nil
		}
		return integral(fn(n.Float)), nil
	}}
}
