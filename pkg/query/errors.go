// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/aggregate"
	"github.com/LeeDigitalWorks/binql/pkg/expr"
)

// Error codes reported for statements that cannot be planned.
const (
	CodeInvalidQuery      = "InvalidQuery"
	CodeUnsupportedSyntax = "UnsupportedSyntax"
	CodeUnknownFunction   = "UnknownFunction"
	CodeInvalidDistinct   = "InvalidDistinct"
)

// Error is a statement-shape error. It is always returned before the
// store is contacted.
type Error struct {
	Code    string
	Message string
	// Fragment is the part of the statement at fault: a predicate, a
	// column or a function name.
	Fragment string
}

func (e *Error) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Fragment)
}

func newError(code, fragment, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Fragment: fragment}
}

// aggregateError maps the aggregation engine's planning errors onto codes.
func aggregateError(err error) error {
	var code string
	var sentinel error
	switch {
	case errors.Is(err, aggregate.ErrUnknownFunction):
		code, sentinel = CodeUnknownFunction, aggregate.ErrUnknownFunction
	case errors.Is(err, aggregate.ErrInvalidDistinct):
		code, sentinel = CodeInvalidDistinct, aggregate.ErrInvalidDistinct
	case errors.Is(err, aggregate.ErrNotGrouped):
		code, sentinel = CodeInvalidQuery, aggregate.ErrNotGrouped
	default:
		return err
	}
	return &Error{
		Code:     code,
		Message:  sentinel.Error(),
		Fragment: strings.TrimPrefix(strings.TrimPrefix(err.Error(), sentinel.Error()), ": "),
	}
}

// exprError maps a scalar function lookup failure onto a code.
func exprError(err error, fragment string) error {
	switch {
	case errors.Is(err, expr.ErrUnknownFunction):
		return newError(CodeUnknownFunction, fragment, "unknown function")
	case errors.Is(err, expr.ErrArity):
		return newError(CodeInvalidQuery, fragment, "%v", err)
	}
	return err
}

// ErrorCode returns the code of a planning error, or "" for any other
// error.
func ErrorCode(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
