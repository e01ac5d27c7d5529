// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "fmt"

// Role says where a column's values come from.
type Role uint8

const (
	RoleData Role = iota
	RoleHidden
	RoleAggregated
	RoleGroup
	RoleExpression
)

func (r Role) String() string {
	switch r {
	case RoleData:
		return "data"
	case RoleHidden:
		return "hidden"
	case RoleAggregated:
		return "aggregated"
	case RoleGroup:
		return "group"
	case RoleExpression:
		return "expression"
	default:
		return fmt.Sprintf("role(%d)", r)
	}
}

// Wildcard is the name of the column that stands for "every bin".
const Wildcard = "*"

// Column describes one projected column. Identity is fixed at creation;
// Type is filled in by discovery, which may run after the column list is
// built, so a list of columns must never be shared by two statements.
type Column struct {
	role       Role
	catalog    string
	table      string
	name       string
	label      string
	expression string

	Type SQLType
}

func NewColumn(role Role, catalog, table, name, label string) *Column {
	return &Column{
		role:    role,
		catalog: catalog,
		table:   table,
		name:    name,
		label:   label,
	}
}

// NewExpressionColumn builds a column computed from expr, for instance
// "sum(age)".
func NewExpressionColumn(role Role, catalog, table, expr, label string) *Column {
	c := NewColumn(role, catalog, table, expr, label)
	c.expression = expr
	return c
}

func (c *Column) Role() Role         { return c.role }
func (c *Column) Catalog() string    { return c.catalog }
func (c *Column) Table() string      { return c.table }
func (c *Column) Name() string       { return c.name }
func (c *Column) Expression() string { return c.expression }

// Label is the name the column is exposed under; the bin name unless aliased.
func (c *Column) Label() string {
	if c.label == "" {
		return c.name
	}
	return c.label
}

func (c *Column) IsWildcard() bool {
	return c.name == Wildcard
}

// Computed reports whether the column's values are calculated rather than
// read from a bin of the same name.
func (c *Column) Computed() bool {
	return c.role == RoleAggregated || c.role == RoleExpression
}

// Discover types the column from v unless it already has a type.
func (c *Column) Discover(v Value) {
	if c.Type == Unknown && !v.IsNull() {
		c.Type = SQLTypeOf(v)
	}
}

// Observe widens the column type with the type of v. Nulls are ignored.
func (c *Column) Observe(v Value) {
	if v.IsNull() {
		return
	}
	c.Type = WiderSQLType(c.Type, SQLTypeOf(v))
}

// Clone returns a copy that shares no state with c.
func (c *Column) Clone() *Column {
	cp := *c
	return &cp
}

// Equal compares identity; the discovered type is not part of it.
func (c *Column) Equal(o *Column) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.role == o.role &&
		c.catalog == o.catalog &&
		c.table == o.table &&
		c.name == o.name &&
		c.label == o.label
}

func (c *Column) String() string {
	return fmt.Sprintf("%s.%s.%s AS %s (%s %s)", c.catalog, c.table, c.name, c.Label(), c.role, c.Type)
}

// CloneColumns deep-copies a column list.
func CloneColumns(cols []*Column) []*Column {
	out := make([]*Column, len(cols))
	for i, c := range cols {
		out[i] = c.Clone()
	}
	return out
}

// Labels returns the label of every column in order.
func Labels(cols []*Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Label()
	}
	return out
}
