// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"regexp"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// truth is a three-valued logic result; comparisons with null are unknown.
type truth uint8

const (
	unknown truth = iota
	no
	yes
)

func truthOf(b bool) truth {
	if b {
		return yes
	}
	return no
}

// Matches reports whether the predicate holds for the values returned by
// get. A nil predicate matches everything. Unknown is not a match.
func (p *Predicate) Matches(get func(column string) types.Value) bool {
	if p == nil {
		return true
	}
	return p.eval(get) == yes
}

func (p *Predicate) eval(get func(string) types.Value) truth {
	switch p.Op {
	case OpAnd:
		out := yes
		for _, c := range p.Children {
			switch c.eval(get) {
			case no:
				return no
			case unknown:
				out = unknown
			}
		}
		return out
	case OpOr:
		out := no
		for _, c := range p.Children {
			switch c.eval(get) {
			case yes:
				return yes
			case unknown:
				out = unknown
			}
		}
		return out
	case OpNot:
		switch p.Children[0].eval(get) {
		case yes:
			return no
		case no:
			return yes
		}
		return unknown
	}

	v := get(p.Column)
	switch p.Op {
	case OpIsNull:
		return truthOf(v.IsNull())
	case OpIsNotNull:
		return truthOf(!v.IsNull())
	}
	if v.IsNull() {
		return unknown
	}

	switch p.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if p.Values[0].IsNull() {
			return unknown
		}
		c := order.Compare(v, p.Values[0])
		switch p.Op {
		case OpEq:
			return truthOf(c == 0)
		case OpNe:
			return truthOf(c != 0)
		case OpLt:
			return truthOf(c < 0)
		case OpLe:
			return truthOf(c <= 0)
		case OpGt:
			return truthOf(c > 0)
		default:
			return truthOf(c >= 0)
		}
	case OpBetween, OpNotBetween:
		lo, hi := p.Values[0], p.Values[1]
		if lo.IsNull() || hi.IsNull() {
			return unknown
		}
		in := order.Compare(v, lo) >= 0 && order.Compare(v, hi) <= 0
		return truthOf(in == (p.Op == OpBetween))
	case OpIn, OpNotIn:
		sawNull := false
		for _, x := range p.Values {
			if x.IsNull() {
				sawNull = true
				continue
			}
			if order.Equal(v, x) {
				return truthOf(p.Op == OpIn)
			}
		}
		if sawNull {
			return unknown
		}
		return truthOf(p.Op == OpNotIn)
	case OpLike, OpNotLike:
		s, err := types.Coerce(v, types.KindString)
		if err != nil {
			return unknown
		}
		return truthOf(p.pattern.MatchString(s.Str) == (p.Op == OpLike))
	}
	return unknown
}

// likePattern compiles a LIKE pattern: % matches any run, _ one
// character, and escape makes the following character literal.
func likePattern(pattern string, escape rune) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == escape:
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(regexp.QuoteMeta(string(escape)))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
