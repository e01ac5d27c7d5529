// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/aggregate"
	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/xwb1989/sqlparser"
)

// Select is one parsed SELECT over a single set.
type Select struct {
	Namespace string
	Set       string
	// Columns is the projection template. A "*" column stands for every
	// bin and is only expanded once records are read.
	Columns []*types.Column
	// Expressions holds the compiled form of each RoleExpression column,
	// keyed by label.
	Expressions map[string]expr.Expr
	Distinct    bool
	Where       *Predicate
	GroupBy     []string
	// Having reads output labels.
	Having *Predicate
	// OrderBy keys name an output label, or a bin when no projected
	// column matches.
	OrderBy []order.Key
	Offset  int
	// Limit is -1 when the statement has no LIMIT.
	Limit int
}

// Statement is a parsed query: a single SELECT or the UNION of several.
type Statement struct {
	SQL   string
	Parts []*Select
	// Distinct is set unless every union in the statement is UNION ALL.
	Distinct bool
	OrderBy  []order.Key
	Offset   int
	Limit    int
}

// IsUnion reports whether the statement combines more than one SELECT.
func (s *Statement) IsUnion() bool {
	return len(s.Parts) > 1
}

// Parse parses a SELECT or UNION statement. Tables without a namespace
// qualifier resolve to namespace.
func Parse(sql, namespace string) (*Statement, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, newError(CodeInvalidQuery, "", "SQL parse error: %v", err)
	}

	st := &Statement{SQL: sql, Limit: -1}
	switch s := stmt.(type) {
	case *sqlparser.Select:
		sel, err := parseSelect(s, namespace)
		if err != nil {
			return nil, err
		}
		st.Parts = []*Select{sel}
	case *sqlparser.ParenSelect:
		if err := st.addParts(s, namespace); err != nil {
			return nil, err
		}
	case *sqlparser.Union:
		if err := st.addParts(s.Left, namespace); err != nil {
			return nil, err
		}
		if err := st.addParts(s.Right, namespace); err != nil {
			return nil, err
		}
		if s.Type != sqlparser.UnionAllStr {
			st.Distinct = true
		}
		labels := visibleLabels(st.Parts[0].Columns)
		if st.OrderBy, err = unionOrder(s.OrderBy, labels); err != nil {
			return nil, err
		}
		if st.Offset, st.Limit, err = parseLimit(s.Limit); err != nil {
			return nil, err
		}
	default:
		return nil, newError(CodeUnsupportedSyntax, sqlparser.String(stmt), "only SELECT statements are supported")
	}
	return st, nil
}

// addParts flattens the operands of a UNION.
func (st *Statement) addParts(s sqlparser.SelectStatement, namespace string) error {
	switch s := s.(type) {
	case *sqlparser.Select:
		sel, err := parseSelect(s, namespace)
		if err != nil {
			return err
		}
		st.Parts = append(st.Parts, sel)
	case *sqlparser.ParenSelect:
		return st.addParts(s.Select, namespace)
	case *sqlparser.Union:
		if len(s.OrderBy) > 0 || s.Limit != nil {
			return newError(CodeUnsupportedSyntax, sqlparser.String(s), "ORDER BY or LIMIT on a nested UNION")
		}
		if s.Type != sqlparser.UnionAllStr {
			st.Distinct = true
		}
		if err := st.addParts(s.Left, namespace); err != nil {
			return err
		}
		return st.addParts(s.Right, namespace)
	default:
		return newError(CodeUnsupportedSyntax, sqlparser.String(s), "unsupported statement")
	}
	return nil
}

func parseSelect(s *sqlparser.Select, namespace string) (*Select, error) {
	sel := &Select{Distinct: s.Distinct != "", Limit: -1}

	var err error
	if sel.Namespace, sel.Set, err = parseFrom(s.From, namespace); err != nil {
		return nil, err
	}
	if sel.GroupBy, err = parseGroupBy(s.GroupBy); err != nil {
		return nil, err
	}
	if sel.Columns, sel.Expressions, err = parseColumns(s.SelectExprs, sel.Namespace, sel.Set, sel.GroupBy); err != nil {
		return nil, err
	}
	if s.Where != nil {
		if sel.Where, err = parsePredicate(s.Where.Expr, binRef); err != nil {
			return nil, err
		}
	}
	if s.Having != nil {
		if sel.Having, err = parsePredicate(s.Having.Expr, outputRef(sel.Columns)); err != nil {
			return nil, err
		}
	}
	if sel.OrderBy, err = parseOrder(s.OrderBy, sel.Columns); err != nil {
		return nil, err
	}
	if sel.Offset, sel.Limit, err = parseLimit(s.Limit); err != nil {
		return nil, err
	}
	return sel, nil
}

func parseFrom(from sqlparser.TableExprs, namespace string) (string, string, error) {
	if len(from) != 1 {
		return "", "", newError(CodeUnsupportedSyntax, sqlparser.String(from), "joins are not supported")
	}
	t, ok := from[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", "", newError(CodeUnsupportedSyntax, sqlparser.String(from), "joins are not supported")
	}
	name, ok := t.Expr.(sqlparser.TableName)
	if !ok {
		return "", "", newError(CodeUnsupportedSyntax, sqlparser.String(t.Expr), "subqueries are not supported")
	}
	if !name.Qualifier.IsEmpty() {
		namespace = name.Qualifier.String()
	}
	if namespace == "" {
		return "", "", newError(CodeInvalidQuery, sqlparser.String(name), "no namespace given and no default namespace set")
	}
	return namespace, name.Name.String(), nil
}

func parseGroupBy(groupBy sqlparser.GroupBy) ([]string, error) {
	var out []string
	for _, e := range groupBy {
		col, ok := e.(*sqlparser.ColName)
		if !ok {
			return nil, newError(CodeUnsupportedSyntax, sqlparser.String(e), "GROUP BY accepts bin names only")
		}
		out = append(out, columnName(col))
	}
	return out, nil
}

// columnName is the bin a column reference reads. Special field names are
// canonicalized so that projection and predicates agree on them.
func columnName(col *sqlparser.ColName) string {
	name := col.Name.String()
	if f, ok := special.Lookup(name); ok {
		return f.String()
	}
	return name
}

func parseColumns(exprs sqlparser.SelectExprs, namespace, set string, groupBy []string) ([]*types.Column, map[string]expr.Expr, error) {
	out := make([]*types.Column, 0, len(exprs))
	var computed map[string]expr.Expr
	for _, e := range exprs {
		switch e := e.(type) {
		case *sqlparser.StarExpr:
			out = append(out, types.NewColumn(types.RoleData, namespace, set, types.Wildcard, types.Wildcard))
		case *sqlparser.AliasedExpr:
			c, x, err := parseColumn(e, namespace, set, groupBy)
			if err != nil {
				return nil, nil, err
			}
			if x != nil {
				if prev, ok := computed[c.Label()]; ok && prev.String() != x.String() {
					return nil, nil, newError(CodeInvalidQuery, c.Label(), "two expressions share a label")
				}
				if computed == nil {
					computed = make(map[string]expr.Expr)
				}
				computed[c.Label()] = x
			}
			out = append(out, c)
		default:
			return nil, nil, newError(CodeUnsupportedSyntax, sqlparser.String(e), "unsupported projection")
		}
	}
	return out, computed, nil
}

// parseColumn returns the compiled expression too when the column is
// computed per record.
func parseColumn(e *sqlparser.AliasedExpr, namespace, set string, groupBy []string) (*types.Column, expr.Expr, error) {
	alias := e.As.String()
	switch x := e.Expr.(type) {
	case *sqlparser.ColName:
		name := columnName(x)
		label := alias
		if label == "" {
			label = name
		}
		role := types.RoleData
		if contains(groupBy, name) {
			role = types.RoleGroup
		}
		return types.NewColumn(role, namespace, set, name, label), nil, nil
	case *sqlparser.FuncExpr:
		if !isAggregate(x) {
			break
		}
		call, err := aggregateCall(x)
		if err != nil {
			return nil, nil, err
		}
		label := alias
		if label == "" {
			label = call
		}
		return types.NewExpressionColumn(types.RoleAggregated, namespace, set, call, label), nil, nil
	}
	return computedColumn(e.Expr, alias, namespace, set)
}

// aggregateCall normalizes an aggregate function call to the text form
// the aggregation engine parses, for instance "count(distinct name)".
func aggregateCall(f *sqlparser.FuncExpr) (string, error) {
	text := sqlparser.String(f)
	if !f.Qualifier.IsEmpty() {
		return "", newError(CodeUnsupportedSyntax, text, "qualified function names are not supported")
	}
	name, ok := aggregate.LookupFunc(f.Name.String())
	if !ok {
		return "", newError(CodeUnknownFunction, f.Name.String(), "unknown function")
	}
	if len(f.Exprs) != 1 {
		return "", newError(CodeInvalidQuery, text, "%s takes exactly one argument", name)
	}

	var arg string
	switch a := f.Exprs[0].(type) {
	case *sqlparser.StarExpr:
		arg = types.Wildcard
	case *sqlparser.AliasedExpr:
		col, ok := a.Expr.(*sqlparser.ColName)
		if !ok {
			return "", newError(CodeUnsupportedSyntax, text, "aggregate arguments must be bin names")
		}
		arg = columnName(col)
	default:
		return "", newError(CodeUnsupportedSyntax, text, "unsupported aggregate argument")
	}

	expr := fmt.Sprintf("%s(%s)", name, arg)
	if f.Distinct {
		expr = fmt.Sprintf("%s(distinct %s)", name, arg)
	}
	if _, err := aggregate.ParseCall(expr); err != nil {
		return "", aggregateError(err)
	}
	return expr, nil
}

// columnRef resolves an operand to the column a predicate reads. ok is
// false when the operand is not a column reference at all.
type columnRef func(sqlparser.Expr) (column string, ok bool, err error)

// binRef resolves WHERE operands: bins and special fields.
func binRef(e sqlparser.Expr) (string, bool, error) {
	switch x := e.(type) {
	case *sqlparser.ColName:
		return columnName(x), true, nil
	case *sqlparser.FuncExpr:
		return "", false, newError(CodeUnsupportedSyntax, sqlparser.String(x), "functions are not supported in WHERE")
	}
	return "", false, nil
}

// outputRef resolves HAVING operands against the projection: labels,
// grouped bins and projected aggregate calls.
func outputRef(cols []*types.Column) columnRef {
	return func(e sqlparser.Expr) (string, bool, error) {
		switch x := e.(type) {
		case *sqlparser.ColName:
			label, ok := outputLabel(cols, x)
			if !ok {
				return "", false, newError(CodeInvalidQuery, sqlparser.String(x), "HAVING must reference a projected column")
			}
			return label, true, nil
		case *sqlparser.FuncExpr:
			label, err := aggregateLabel(cols, x)
			return label, err == nil, err
		}
		return "", false, nil
	}
}

// outputLabel matches a column reference with a projected label first,
// then with the bin of a projected column.
func outputLabel(cols []*types.Column, col *sqlparser.ColName) (string, bool) {
	name := col.Name.String()
	for _, c := range cols {
		if !c.IsWildcard() && c.Label() == name {
			return c.Label(), true
		}
	}
	canonical := columnName(col)
	for _, c := range cols {
		if !c.IsWildcard() && !c.Computed() && c.Name() == canonical {
			return c.Label(), true
		}
	}
	return "", false
}

// expressionLabel matches an expression with a projected expression
// column of the same text.
func expressionLabel(cols []*types.Column, e sqlparser.Expr) (string, bool) {
	text := sqlparser.String(e)
	for _, c := range cols {
		if c.Role() == types.RoleExpression && c.Expression() == text {
			return c.Label(), true
		}
	}
	return "", false
}

func aggregateLabel(cols []*types.Column, f *sqlparser.FuncExpr) (string, error) {
	expr, err := aggregateCall(f)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if c.Role() == types.RoleAggregated && c.Expression() == expr {
			return c.Label(), nil
		}
	}
	return "", newError(CodeInvalidQuery, expr, "aggregate must also be projected")
}

var comparisonOps = map[string]Op{
	sqlparser.EqualStr:        OpEq,
	sqlparser.NotEqualStr:     OpNe,
	sqlparser.LessThanStr:     OpLt,
	sqlparser.LessEqualStr:    OpLe,
	sqlparser.GreaterThanStr:  OpGt,
	sqlparser.GreaterEqualStr: OpGe,
	sqlparser.InStr:           OpIn,
	sqlparser.NotInStr:        OpNotIn,
	sqlparser.LikeStr:         OpLike,
	sqlparser.NotLikeStr:      OpNotLike,
}

func parsePredicate(e sqlparser.Expr, ref columnRef) (*Predicate, error) {
	switch x := e.(type) {
	case *sqlparser.AndExpr:
		return combine(OpAnd, x.Left, x.Right, ref)
	case *sqlparser.OrExpr:
		return combine(OpOr, x.Left, x.Right, ref)
	case *sqlparser.NotExpr:
		inner, err := parsePredicate(x.Expr, ref)
		if err != nil {
			return nil, err
		}
		return &Predicate{Op: OpNot, Children: []*Predicate{inner}}, nil
	case *sqlparser.ParenExpr:
		return parsePredicate(x.Expr, ref)
	case *sqlparser.ComparisonExpr:
		return parseComparison(x, ref)
	case *sqlparser.RangeCond:
		column, err := operandColumn(x.Left, ref, x)
		if err != nil {
			return nil, err
		}
		lo, err := parseValue(x.From)
		if err != nil {
			return nil, err
		}
		hi, err := parseValue(x.To)
		if err != nil {
			return nil, err
		}
		op := OpBetween
		if x.Operator == sqlparser.NotBetweenStr {
			op = OpNotBetween
		}
		return leaf(op, column, lo, hi), nil
	case *sqlparser.IsExpr:
		column, err := operandColumn(x.Expr, ref, x)
		if err != nil {
			return nil, err
		}
		switch x.Operator {
		case sqlparser.IsNullStr:
			return leaf(OpIsNull, column), nil
		case sqlparser.IsNotNullStr:
			return leaf(OpIsNotNull, column), nil
		}
	}
	return nil, newError(CodeUnsupportedSyntax, sqlparser.String(e), "unsupported condition")
}

func combine(op Op, left, right sqlparser.Expr, ref columnRef) (*Predicate, error) {
	l, err := parsePredicate(left, ref)
	if err != nil {
		return nil, err
	}
	r, err := parsePredicate(right, ref)
	if err != nil {
		return nil, err
	}
	p := &Predicate{Op: op}
	for _, c := range []*Predicate{l, r} {
		if c.Op == op {
			p.Children = append(p.Children, c.Children...)
		} else {
			p.Children = append(p.Children, c)
		}
	}
	return p, nil
}

func operandColumn(e sqlparser.Expr, ref columnRef, whole sqlparser.SQLNode) (string, error) {
	column, ok, err := ref(e)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newError(CodeUnsupportedSyntax, sqlparser.String(whole), "condition must test a column")
	}
	return column, nil
}

func parseComparison(x *sqlparser.ComparisonExpr, ref columnRef) (*Predicate, error) {
	text := sqlparser.String(x)
	op, ok := comparisonOps[x.Operator]
	if !ok {
		return nil, newError(CodeUnsupportedSyntax, text, "unsupported operator %q", x.Operator)
	}

	left, leftCol, err := ref(x.Left)
	if err != nil {
		return nil, err
	}
	right, rightCol, err := ref(x.Right)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpIn, OpNotIn:
		if !leftCol {
			return nil, newError(CodeUnsupportedSyntax, text, "IN must test a column")
		}
		tuple, ok := x.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, newError(CodeUnsupportedSyntax, text, "IN accepts a list of literals only")
		}
		values := make([]types.Value, len(tuple))
		for i, e := range tuple {
			if values[i], err = parseValue(e); err != nil {
				return nil, err
			}
		}
		return leaf(op, left, values...), nil
	case OpLike, OpNotLike:
		if !leftCol {
			return nil, newError(CodeUnsupportedSyntax, text, "LIKE must test a column")
		}
		return parseLike(op, left, x)
	}

	switch {
	case leftCol && rightCol:
		return nil, newError(CodeUnsupportedSyntax, text, "comparing two columns is not supported")
	case leftCol:
		v, err := parseValue(x.Right)
		if err != nil {
			return nil, err
		}
		return leaf(op, left, v), nil
	case rightCol:
		v, err := parseValue(x.Left)
		if err != nil {
			return nil, err
		}
		return leaf(op.flipped(), right, v), nil
	}
	return nil, newError(CodeUnsupportedSyntax, text, "condition must test a column")
}

func parseLike(op Op, column string, x *sqlparser.ComparisonExpr) (*Predicate, error) {
	v, err := parseValue(x.Right)
	if err != nil {
		return nil, err
	}
	if v.Kind != types.KindString {
		return nil, newError(CodeInvalidQuery, sqlparser.String(x), "LIKE pattern must be a string")
	}
	escape := '\\'
	if x.Escape != nil {
		e, err := parseValue(x.Escape)
		if err != nil {
			return nil, err
		}
		r := []rune(e.Str)
		if e.Kind != types.KindString || len(r) != 1 {
			return nil, newError(CodeInvalidQuery, sqlparser.String(x), "ESCAPE must be a single character")
		}
		escape = r[0]
	}
	re, err := likePattern(v.Str, escape)
	if err != nil {
		return nil, newError(CodeInvalidQuery, sqlparser.String(x), "bad LIKE pattern: %v", err)
	}
	p := leaf(op, column, v)
	p.pattern = re
	return p, nil
}

// parseValue converts a literal.
func parseValue(e sqlparser.Expr) (types.Value, error) {
	switch x := e.(type) {
	case *sqlparser.SQLVal:
		return sqlValue(x)
	case *sqlparser.NullVal:
		return types.Null, nil
	case sqlparser.BoolVal:
		return types.Bool(bool(x)), nil
	case *sqlparser.ParenExpr:
		return parseValue(x.Expr)
	case *sqlparser.UnaryExpr:
		if x.Operator == sqlparser.UMinusStr {
			v, err := parseValue(x.Expr)
			if err != nil {
				return types.Null, err
			}
			switch v.Kind {
			case types.KindInt:
				return types.Int(-v.Int), nil
			case types.KindFloat:
				return types.Float(-v.Float), nil
			}
		}
	}
	return types.Null, newError(CodeUnsupportedSyntax, sqlparser.String(e), "expected a literal")
}

func sqlValue(x *sqlparser.SQLVal) (types.Value, error) {
	text := string(x.Val)
	switch x.Type {
	case sqlparser.StrVal:
		return types.String(text), nil
	case sqlparser.IntVal, sqlparser.FloatVal:
		if v, ok := types.ParseNumber(text); ok {
			return v, nil
		}
	case sqlparser.HexNum:
		if i, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(text), "0x"), 16, 64); err == nil {
			return types.Int(i), nil
		}
	case sqlparser.HexVal:
		if b, err := hex.DecodeString(text); err == nil {
			return types.Bytes(b), nil
		}
	case sqlparser.ValArg:
		return types.Null, newError(CodeUnsupportedSyntax, text, "placeholders are not supported")
	}
	return types.Null, newError(CodeInvalidQuery, sqlparser.String(x), "bad literal")
}

func parseOrder(orderBy sqlparser.OrderBy, cols []*types.Column) ([]order.Key, error) {
	var keys []order.Key
	for _, o := range orderBy {
		k := order.Key{Desc: o.Direction == sqlparser.DescScr}
		switch x := o.Expr.(type) {
		case *sqlparser.ColName:
			if label, ok := outputLabel(cols, x); ok {
				k.Label = label
			} else {
				k.Label = columnName(x)
			}
		case *sqlparser.FuncExpr:
			if label, ok := expressionLabel(cols, x); ok {
				k.Label = label
				break
			}
			label, err := aggregateLabel(cols, x)
			if err != nil {
				return nil, err
			}
			k.Label = label
		case *sqlparser.SQLVal:
			label, err := positional(x, cols)
			if err != nil {
				return nil, err
			}
			k.Label = label
		default:
			label, ok := expressionLabel(cols, o.Expr)
			if !ok {
				return nil, newError(CodeUnsupportedSyntax, sqlparser.String(o.Expr), "ORDER BY expressions must also be projected")
			}
			k.Label = label
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// positional resolves ORDER BY n to the label of the n-th projection.
func positional(x *sqlparser.SQLVal, cols []*types.Column) (string, error) {
	text := sqlparser.String(x)
	if x.Type != sqlparser.IntVal {
		return "", newError(CodeUnsupportedSyntax, text, "unsupported ORDER BY expression")
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(cols) {
		return "", newError(CodeInvalidQuery, text, "ORDER BY position out of range")
	}
	for _, c := range cols[:n] {
		if c.IsWildcard() {
			return "", newError(CodeUnsupportedSyntax, text, "ORDER BY position after *")
		}
	}
	return cols[n-1].Label(), nil
}

// unionOrder resolves the ORDER BY of a UNION against the labels of its
// first SELECT. Labels behind a "*" are only known at run time and are
// not checked.
func unionOrder(orderBy sqlparser.OrderBy, labels []string) ([]order.Key, error) {
	var keys []order.Key
	for _, o := range orderBy {
		k := order.Key{Desc: o.Direction == sqlparser.DescScr}
		text := sqlparser.String(o.Expr)
		switch x := o.Expr.(type) {
		case *sqlparser.ColName:
			k.Label = x.Name.String()
		case *sqlparser.FuncExpr:
			k.Label = text
			if expr, err := aggregateCall(x); err == nil {
				k.Label = expr
			}
		case *sqlparser.SQLVal:
			n, err := strconv.Atoi(text)
			if x.Type != sqlparser.IntVal || err != nil || n < 1 || n > len(labels) {
				return nil, newError(CodeInvalidQuery, text, "ORDER BY position out of range")
			}
			k.Label = labels[n-1]
		default:
			return nil, newError(CodeUnsupportedSyntax, text, "unsupported ORDER BY expression")
		}
		if !contains(labels, k.Label) && !contains(labels, types.Wildcard) {
			return nil, newError(CodeInvalidQuery, text, "ORDER BY of a UNION must name a column of the first SELECT")
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseLimit(l *sqlparser.Limit) (int, int, error) {
	if l == nil {
		return 0, -1, nil
	}
	offset := 0
	if l.Offset != nil {
		n, err := count(l.Offset)
		if err != nil {
			return 0, 0, err
		}
		offset = n
	}
	n, err := count(l.Rowcount)
	if err != nil {
		return 0, 0, err
	}
	return offset, n, nil
}

func count(e sqlparser.Expr) (int, error) {
	v, err := parseValue(e)
	if err != nil {
		return 0, err
	}
	if v.Kind != types.KindInt || v.Int < 0 {
		return 0, newError(CodeInvalidQuery, sqlparser.String(e), "LIMIT and OFFSET must be non-negative integers")
	}
	return int(v.Int), nil
}

func visibleLabels(cols []*types.Column) []string {
	var out []string
	for _, c := range cols {
		if c.Role() != types.RoleHidden {
			out = append(out, c.Label())
		}
	}
	return out
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
