// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregate implements GROUP BY, DISTINCT and aggregate functions,
// either by merging the partial results of server-side scripts or by
// folding rows on the client.
package aggregate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

var (
	ErrUnknownFunction = errors.New("unknown aggregate function")
	ErrInvalidDistinct = errors.New("distinct cannot be combined with other projections")
	ErrNotGrouped      = errors.New("column must appear in GROUP BY or an aggregate")
	ErrNotPushable     = errors.New("aggregation cannot run as a server-side script")
)

// Function is one aggregate call of the projection.
type Function struct {
	Name Func
	// Field is the bin aggregated, "*" for count(*).
	Field    string
	Distinct bool
	// Label is the output column label.
	Label string
}

// Arg is the script argument computing f.
func (f Function) Arg() udf.Arg {
	return udf.Arg{Kind: string(f.Name), Bin: f.Field}
}

func (f Function) String() string {
	if f.Distinct {
		return fmt.Sprintf("%s(distinct %s)", f.Name, f.Field)
	}
	return fmt.Sprintf("%s(%s)", f.Name, f.Field)
}

// Spec describes the aggregation of one statement.
type Spec struct {
	Groups    []string
	Functions []Function
	// Distinct is the bin of a single-column SELECT DISTINCT.
	Distinct string

	columns []*types.Column
	// sources maps every output column to a group (>= 0) or a function
	// (encoded as -1 - index).
	sources []int
}

var callPattern = regexp.MustCompile(`(?i)^\s*(\w+)\s*\(\s*(distinct\s+)?(\w+|\*)\s*\)\s*$`)

// ParseCall splits an aggregate expression such as "sum(age)" or
// "count(distinct name)".
func ParseCall(expr string) (Function, error) {
	m := callPattern.FindStringSubmatch(expr)
	if m == nil {
		return Function{}, fmt.Errorf("%w: %s", ErrUnknownFunction, expr)
	}
	name, ok := LookupFunc(m[1])
	if !ok {
		return Function{}, fmt.Errorf("%w: %s", ErrUnknownFunction, m[1])
	}
	f := Function{Name: name, Field: m[3], Distinct: m[2] != "", Label: expr}
	if f.Field == types.Wildcard && (name != Count || f.Distinct) {
		return Function{}, fmt.Errorf("%w: %s(*)", ErrUnknownFunction, m[1])
	}
	return f, nil
}

// SpecFrom builds the aggregation for a projection. Columns with
// RoleAggregated carry the call in their expression, RoleGroup columns
// name a grouping bin. It returns nil when the statement aggregates
// nothing, including a multi-column DISTINCT, which is de-duplicated row
// by row instead.
func SpecFrom(columns []*types.Column, groupBy []string, distinct bool) (*Spec, error) {
	s := &Spec{Groups: groupBy}
	var data []*types.Column
	for _, c := range columns {
		switch c.Role() {
		case types.RoleAggregated:
			f, err := ParseCall(c.Expression())
			if err != nil {
				return nil, err
			}
			f.Label = c.Label()
			s.sources = append(s.sources, -1-len(s.Functions))
			s.Functions = append(s.Functions, f)
			s.columns = append(s.columns, c)
		case types.RoleGroup:
			i := indexOf(groupBy, c.Name())
			if i < 0 {
				return nil, fmt.Errorf("%w: %s", ErrNotGrouped, c.Name())
			}
			s.sources = append(s.sources, i)
			s.columns = append(s.columns, c)
		case types.RoleData, types.RoleExpression:
			data = append(data, c)
		}
	}

	switch {
	case distinct && len(s.Functions) > 0:
		return nil, ErrInvalidDistinct
	case len(s.Functions) == 0 && len(groupBy) == 0:
		if distinct && len(data) == 1 && !data[0].IsWildcard() && data[0].Role() == types.RoleData {
			c := data[0]
			return &Spec{
				Groups:   []string{c.Name()},
				Distinct: c.Name(),
				columns:  []*types.Column{c},
				sources:  []int{0},
			}, nil
		}
		return nil, nil
	}
	if len(data) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotGrouped, data[0].Label())
	}
	return s, nil
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if strings.EqualFold(v, name) {
			return i
		}
	}
	return -1
}

// Columns is the output projection of the aggregation.
func (s *Spec) Columns() []*types.Column {
	return s.columns
}

// Fields lists every bin the aggregation reads, in first-use order.
func (s *Spec) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != types.Wildcard && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, g := range s.Groups {
		add(g)
	}
	for _, f := range s.Functions {
		add(f.Field)
	}
	return out
}

func (s *Spec) String() string {
	if s.Distinct != "" {
		return "distinct " + s.Distinct
	}
	parts := make([]string, len(s.Functions))
	for i, f := range s.Functions {
		parts[i] = f.String()
	}
	out := strings.Join(parts, ", ")
	if len(s.Groups) > 0 {
		out += " group by " + strings.Join(s.Groups, ", ")
	}
	return out
}
