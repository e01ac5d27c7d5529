// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Strategy is the native operation a statement is answered with.
type Strategy uint8

const (
	StrategyScan Strategy = iota
	StrategyPKFetch
	StrategyPKBatch
	StrategyIndexQuery
	StrategyAggregate
)

var strategyNames = [...]string{
	StrategyScan:       "scan",
	StrategyPKFetch:    "pk_fetch",
	StrategyPKBatch:    "pk_batch",
	StrategyIndexQuery: "index_query",
	StrategyAggregate:  "aggregate",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", s)
}

// Access is how the rows matching a predicate are read.
type Access struct {
	Strategy Strategy
	// Keys are the primary keys of a fetch.
	Keys []types.Value
	// Filters hold one index filter per query; IN runs several.
	Filters []*store.Filter
	// Residual is evaluated on every row the store returns. It is nil
	// when the store answers the predicate exactly.
	Residual *Predicate
}

// IndexLookup reports whether bin has a secondary index and which kind
// of values it holds.
type IndexLookup func(ctx context.Context, bin string) (kind store.IndexKind, ok bool, err error)

var pkColumn = special.PK.String()

// Classify picks the cheapest access that answers where:
//
//   - no predicate scans the set;
//   - PK = v fetches one key, PK IN (...) or an OR of PK equalities
//     fetches a batch, also when ANDed with other conditions;
//   - a condition on an indexed bin whose literals the index kind can
//     serve queries the index, keeping the whole predicate as residual
//     when it has other conjuncts;
//   - anything else scans with the predicate as residual.
//
// Key and index forms the store cannot serve degrade to a scan.
func Classify(ctx context.Context, where *Predicate, lookup IndexLookup) (Access, error) {
	if where == nil {
		return Access{Strategy: StrategyScan}, nil
	}

	conjuncts := where.Conjuncts()
	for _, c := range conjuncts {
		keys, ok := primaryKeys(c)
		if !ok {
			continue
		}
		a := Access{Strategy: StrategyPKBatch, Keys: keys, Residual: where.without(c)}
		if len(keys) == 1 {
			a.Strategy = StrategyPKFetch
		}
		return a, nil
	}

	for _, c := range conjuncts {
		if !c.IsLeaf() {
			continue
		}
		if _, ok := special.Lookup(c.Column); ok {
			continue
		}
		rule, ok := indexOps[c.Op]
		if !ok {
			continue
		}
		kind, indexed, err := lookup(ctx, c.Column)
		if err != nil {
			return Access{}, fmt.Errorf("index lookup for %s: %w", c.Column, err)
		}
		if !indexed {
			continue
		}
		filters, ok := rule(c.Column, kind, c.Values)
		if !ok {
			continue
		}
		a := Access{Strategy: StrategyIndexQuery, Filters: filters}
		if len(conjuncts) > 1 {
			a.Residual = where
		}
		return a, nil
	}

	return Access{Strategy: StrategyScan, Residual: where}, nil
}

// primaryKeys returns the keys selected by p when p is a disjunction of
// primary-key equalities and IN lists.
func primaryKeys(p *Predicate) ([]types.Value, bool) {
	var keys []types.Value
	for _, d := range p.Disjuncts() {
		if !d.IsLeaf() || d.Column != pkColumn {
			return nil, false
		}
		switch d.Op {
		case OpEq, OpIn:
			keys = append(keys, d.Values...)
		default:
			return nil, false
		}
	}
	for _, k := range keys {
		switch k.Kind {
		case types.KindInt, types.KindString, types.KindBytes:
		default:
			return nil, false
		}
	}
	keys = distinctValues(keys)
	return keys, len(keys) > 0
}
