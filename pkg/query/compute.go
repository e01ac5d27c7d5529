// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/aggregate"
	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/xwb1989/sqlparser"
)

// isAggregate reports whether a projected call goes to the aggregation
// engine. Names neither engine knows go there too, so that they are
// reported as unknown functions.
func isAggregate(f *sqlparser.FuncExpr) bool {
	name := f.Name.String()
	if _, ok := aggregate.LookupFunc(name); ok {
		return true
	}
	return !expr.IsFunction(name)
}

// computedColumn compiles a scalar projection such as "year + 1" into an
// expression column.
func computedColumn(e sqlparser.Expr, alias, namespace, set string) (*types.Column, expr.Expr, error) {
	x, err := compile(e)
	if err != nil {
		return nil, nil, err
	}
	text := sqlparser.String(e)
	label := alias
	if label == "" {
		label = text
	}
	return types.NewExpressionColumn(types.RoleExpression, namespace, set, text, label), x, nil
}

func compile(e sqlparser.Expr) (expr.Expr, error) {
	text := sqlparser.String(e)
	switch x := e.(type) {
	case *sqlparser.ColName:
		return expr.Bin(columnName(x)), nil
	case *sqlparser.SQLVal, *sqlparser.NullVal, sqlparser.BoolVal:
		v, err := parseValue(x)
		if err != nil {
			return nil, err
		}
		return expr.Literal(v), nil
	case *sqlparser.ParenExpr:
		return compile(x.Expr)
	case *sqlparser.UnaryExpr:
		inner, err := compile(x.Expr)
		if err != nil {
			return nil, err
		}
		switch x.Operator {
		case sqlparser.UMinusStr:
			return expr.Negate(inner), nil
		case sqlparser.UPlusStr:
			return inner, nil
		}
		return nil, newError(CodeUnsupportedSyntax, text, "unsupported operator %q", x.Operator)
	case *sqlparser.BinaryExpr:
		op, ok := expr.ParseOp(x.Operator)
		if !ok {
			return nil, newError(CodeUnsupportedSyntax, text, "unsupported operator %q", x.Operator)
		}
		l, err := compile(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := compile(x.Right)
		if err != nil {
			return nil, err
		}
		return expr.Arith(op, l, r), nil
	case *sqlparser.FuncExpr:
		return compileCall(x)
	case *sqlparser.SubstrExpr:
		args := []expr.Expr{expr.Bin(columnName(x.Name))}
		for _, a := range []sqlparser.Expr{x.From, x.To} {
			if a == nil {
				continue
			}
			c, err := compile(a)
			if err != nil {
				return nil, err
			}
			args = append(args, c)
		}
		c, err := expr.Call("substring", args...)
		if err != nil {
			return nil, exprError(err, text)
		}
		return c, nil
	}
	return nil, newError(CodeUnsupportedSyntax, text, "unsupported expression")
}

func compileCall(f *sqlparser.FuncExpr) (expr.Expr, error) {
	text := sqlparser.String(f)
	name := f.Name.String()
	switch {
	case !f.Qualifier.IsEmpty():
		return nil, newError(CodeUnsupportedSyntax, text, "qualified function names are not supported")
	case f.Distinct:
		return nil, newError(CodeUnsupportedSyntax, text, "DISTINCT is only allowed in aggregates")
	}
	if _, ok := aggregate.LookupFunc(name); ok {
		return nil, newError(CodeUnsupportedSyntax, text, "aggregates cannot be used inside expressions")
	}
	if !expr.IsFunction(name) {
		return nil, newError(CodeUnknownFunction, name, "unknown function")
	}
	args := make([]expr.Expr, 0, len(f.Exprs))
	for _, a := range f.Exprs {
		ae, ok := a.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, newError(CodeUnsupportedSyntax, text, "unsupported argument %s", strings.TrimSpace(sqlparser.String(a)))
		}
		c, err := compile(ae.Expr)
		if err != nil {
			return nil, err
		}
		args = append(args, c)
	}
	c, err := expr.Call(name, args...)
	if err != nil {
		return nil, exprError(err, text)
	}
	return c, nil
}
