// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Op is a predicate operator.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpBetween
	OpNotBetween
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpIsNull
	OpIsNotNull
	OpAnd
	OpOr
	OpNot
)

var opNames = [...]string{
	OpEq:         "=",
	OpNe:         "!=",
	OpLt:         "<",
	OpLe:         "<=",
	OpGt:         ">",
	OpGe:         ">=",
	OpBetween:    "BETWEEN",
	OpNotBetween: "NOT BETWEEN",
	OpIn:         "IN",
	OpNotIn:      "NOT IN",
	OpLike:       "LIKE",
	OpNotLike:    "NOT LIKE",
	OpIsNull:     "IS NULL",
	OpIsNotNull:  "IS NOT NULL",
	OpAnd:        "AND",
	OpOr:         "OR",
	OpNot:        "NOT",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

// flipped is the operator that keeps the meaning of "lit op col" when
// rewritten as "col op lit".
func (o Op) flipped() Op {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}

// Predicate is a node of a WHERE or HAVING tree. Leaves compare one
// column with literal values; AND, OR and NOT combine Children. A
// predicate is immutable once parsed.
type Predicate struct {
	Op       Op
	Column   string
	Values   []types.Value
	Children []*Predicate

	pattern *regexp.Regexp
}

func leaf(op Op, column string, values ...types.Value) *Predicate {
	return &Predicate{Op: op, Column: column, Values: values}
}

func and(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, Children: children}
}

func (p *Predicate) IsLeaf() bool {
	return p.Op != OpAnd && p.Op != OpOr && p.Op != OpNot
}

// Conjuncts flattens nested ANDs. A predicate that is not an AND is its
// own single conjunct.
func (p *Predicate) Conjuncts() []*Predicate {
	return p.flatten(OpAnd)
}

// Disjuncts flattens nested ORs.
func (p *Predicate) Disjuncts() []*Predicate {
	return p.flatten(OpOr)
}

func (p *Predicate) flatten(op Op) []*Predicate {
	if p.Op != op {
		return []*Predicate{p}
	}
	var out []*Predicate
	for _, c := range p.Children {
		out = append(out, c.flatten(op)...)
	}
	return out
}

// Columns lists the columns the predicate reads, in first-use order.
func (p *Predicate) Columns() []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(*Predicate)
	walk = func(n *Predicate) {
		if n.IsLeaf() {
			if !seen[n.Column] {
				seen[n.Column] = true
				out = append(out, n.Column)
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(p)
	return out
}

// Rename returns a copy of p with every column passed through fn.
func (p *Predicate) Rename(fn func(string) string) *Predicate {
	if p == nil {
		return nil
	}
	cp := *p
	if p.IsLeaf() {
		cp.Column = fn(p.Column)
		return &cp
	}
	cp.Children = make([]*Predicate, len(p.Children))
	for i, c := range p.Children {
		cp.Children[i] = c.Rename(fn)
	}
	return &cp
}

// without returns the conjunction of p's conjuncts other than drop, nil
// when none remain.
func (p *Predicate) without(drop *Predicate) *Predicate {
	var keep []*Predicate
	for _, c := range p.Conjuncts() {
		if c != drop {
			keep = append(keep, c)
		}
	}
	switch len(keep) {
	case 0:
		return nil
	case 1:
		return keep[0]
	}
	return and(keep...)
}

func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	switch p.Op {
	case OpAnd, OpOr:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
			if !c.IsLeaf() && c.Op != OpNot {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, " "+p.Op.String()+" ")
	case OpNot:
		return "NOT (" + p.Children[0].String() + ")"
	case OpIsNull, OpIsNotNull:
		return p.Column + " " + p.Op.String()
	case OpBetween, OpNotBetween:
		return fmt.Sprintf("%s %s %s AND %s", p.Column, p.Op, literal(p.Values[0]), literal(p.Values[1]))
	case OpIn, OpNotIn:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = literal(v)
		}
		return fmt.Sprintf("%s %s (%s)", p.Column, p.Op, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %s", p.Column, p.Op, literal(p.Values[0]))
}

func literal(v types.Value) string {
	switch v.Kind {
	case types.KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case types.KindNull:
		return "NULL"
	}
	return v.String()
}
