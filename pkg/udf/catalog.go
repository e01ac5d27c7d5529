// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package udf owns the server-side aggregation scripts: their Lua sources,
// the argument convention used to call them, the composite group key
// format they emit, and one-time registration with a store.
package udf

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

//go:embed lua/*.lua
var sources embed.FS

// Script package names.
const (
	Distinct = "distinct"
	GroupBy  = "groupby"
	Stats    = "stats"
)

// Script is a registered stream UDF module.
type Script struct {
	Package  string
	Function string
	Body     []byte
}

// FileName is the name the script is registered under.
func (s Script) FileName() string {
	return s.Package + ".lua"
}

var entryPoints = map[string]string{
	Distinct: "distinct",
	GroupBy:  "groupby",
	Stats:    "single_bin_stats",
}

var catalog = loadCatalog()

func loadCatalog() map[string]Script {
	scripts := make(map[string]Script, len(entryPoints))
	for pkg, fn := range entryPoints {
		body, err := sources.ReadFile(path.Join("lua", pkg+".lua"))
		if err != nil {
			panic(fmt.Sprintf("udf: missing embedded script %s: %v", pkg, err))
		}
		scripts[pkg] = Script{Package: pkg, Function: fn, Body: body}
	}
	return scripts
}

// Catalog returns every script, ordered by package name.
func Catalog() []Script {
	out := make([]Script, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out
}

// Lookup returns the script registered under pkg.
func Lookup(pkg string) (Script, bool) {
	s, ok := catalog[pkg]
	return s, ok
}

// Argument kinds understood by the scripts besides aggregate function names.
const (
	ArgGroupBy  = "groupby"
	ArgDistinct = "distinct"
)

// Arg is one "<kind>:<bin>" script argument.
type Arg struct {
	Kind string
	Bin  string
}

func (a Arg) String() string {
	return a.Kind + ":" + a.Bin
}

// Label is the key under which the scripts report an aggregate.
func (a Arg) Label() string {
	return a.Kind + "(" + a.Bin + ")"
}

// Invocation is a call of one script function.
type Invocation struct {
	Script Script
	Args   []Arg
}

func NewInvocation(pkg string, args ...Arg) (Invocation, error) {
	s, ok := Lookup(pkg)
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", store.ErrUDFNotFound, pkg)
	}
	return Invocation{Script: s, Args: args}, nil
}

// Aggregation converts the invocation into the store call.
func (i Invocation) Aggregation() store.Aggregation {
	args := make([]types.Value, len(i.Args))
	for n, a := range i.Args {
		args[n] = types.String(a.String())
	}
	return store.Aggregation{
		Package:  i.Script.Package,
		Function: i.Script.Function,
		Args:     args,
	}
}

func (i Invocation) String() string {
	parts := make([]string, len(i.Args))
	for n, a := range i.Args {
		parts[n] = a.String()
	}
	return fmt.Sprintf("%s.%s(%s)", i.Script.Package, i.Script.Function, strings.Join(parts, ", "))
}

// ParseArgs reads the arguments of a store.Aggregation back into Args.
func ParseArgs(agg store.Aggregation) ([]Arg, error) {
	out := make([]Arg, 0, len(agg.Args))
	for _, v := range agg.Args {
		kind, bin, ok := strings.Cut(v.Str, ":")
		if v.Kind != types.KindString || !ok || kind == "" || bin == "" {
			return nil, fmt.Errorf("malformed %s argument %q", agg.Package, v.String())
		}
		out = append(out, Arg{Kind: kind, Bin: bin})
	}
	return out, nil
}
