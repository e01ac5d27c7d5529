// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/aggregate"
	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Execute runs the plan against client and returns the result cursor.
// Store errors are wrapped with the strategy and set they occurred on.
// The caller must close the cursor.
func (p *Plan) Execute(ctx context.Context, client store.Client) (cursor.Cursor, error) {
	start := time.Now()
	c, err := p.open(ctx, client)
	if err != nil {
		recordStatement(p.Strategy(), time.Since(start), 0, err)
		return nil, err
	}
	return &instrumented{Cursor: c, strategy: p.Strategy(), start: start}, nil
}

func (p *Plan) open(ctx context.Context, client store.Client) (cursor.Cursor, error) {
	if len(p.Parts) == 1 {
		return p.Parts[0].open(ctx, client)
	}

	// Later parts start when the chain reaches them.
	parts := make([]cursor.Cursor, len(p.Parts))
	for i, sp := range p.Parts {
		if i == 0 {
			c, err := sp.open(ctx, client)
			if err != nil {
				return nil, err
			}
			parts[0] = c
			continue
		}
		parts[i] = cursor.Lazy(func() (cursor.Cursor, error) {
			return sp.open(ctx, client)
		}, nil)
	}

	var c cursor.Cursor = cursor.Chain(parts...)
	if p.Distinct {
		c = cursor.Distinct(c)
	}
	return arrange(c, p.OrderBy, p.Offset, p.Limit), nil
}

// open builds the cursor of one SELECT: the native source, then the
// residual filter, aggregation, HAVING, DISTINCT, ordering and limits.
// Hidden columns are dropped last.
func (sp *SelectPlan) open(ctx context.Context, client store.Client) (cursor.Cursor, error) {
	c, err := sp.source(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%s %s.%s: %w", sp.Strategy, sp.Namespace, sp.Set, err)
	}
	if sp.residual != nil {
		c = cursor.Filter(c, matcher(sp.residual))
	}
	if sp.Aggregate != nil && sp.Invocation == nil {
		c = aggregate.Rows(ctx, c, sp.Aggregate)
	}
	if sp.Having != nil {
		c = cursor.Filter(c, matcher(sp.Having))
	}
	if sp.Distinct {
		c = cursor.Distinct(c)
	}
	return cursor.Visible(arrange(c, sp.OrderBy, sp.Offset, sp.Limit)), nil
}

func arrange(c cursor.Cursor, keys []order.Key, offset, limit int) cursor.Cursor {
	if len(keys) > 0 {
		c = cursor.Sort(c, order.New(keys...))
	}
	if offset > 0 || limit >= 0 {
		c = cursor.Limit(c, offset, limit)
	}
	return c
}

func matcher(p *Predicate) cursor.Predicate {
	return func(r *types.Row) (bool, error) {
		return p.Matches(r.Get), nil
	}
}

func (sp *SelectPlan) source(ctx context.Context, client store.Client) (cursor.Cursor, error) {
	if sp.Invocation != nil {
		agg := sp.Invocation.Aggregation()
		rs, err := sp.run(sp.Aggregate.Fields(), func(stmt *store.Statement) (store.Recordset, error) {
			return client.QueryAggregate(ctx, sp.policy, stmt, agg)
		})
		if err != nil {
			return nil, err
		}
		return aggregate.Reduce(ctx, store.Concat(ctx, rs...), sp.Aggregate), nil
	}

	opts := cursor.Options{
		Namespace:      sp.Namespace,
		Set:            sp.Set,
		Columns:        types.CloneColumns(sp.columns),
		Special:        sp.special,
		DiscoveryLimit: sp.discoveryLimit,
		Compute:        sp.compute,
	}
	switch sp.Access.Strategy {
	case StrategyPKFetch:
		rec, err := client.Get(ctx, sp.policy, sp.key(sp.Access.Keys[0]), sp.bins...)
		if err != nil {
			return nil, err
		}
		return cursor.NewRecords([]*store.Record{rec}, opts), nil
	case StrategyPKBatch:
		keys := make([]*store.Key, len(sp.Access.Keys))
		for i, k := range sp.Access.Keys {
			keys[i] = sp.key(k)
		}
		recs, err := client.BatchGet(ctx, sp.policy, keys, sp.bins...)
		if err != nil {
			return nil, err
		}
		return cursor.NewRecords(recs, opts), nil
	case StrategyIndexQuery:
		rs, err := sp.run(sp.bins, func(stmt *store.Statement) (store.Recordset, error) {
			return client.Query(ctx, sp.policy, stmt)
		})
		if err != nil {
			return nil, err
		}
		return cursor.NewRecordset(store.Concat(ctx, rs...), opts), nil
	}
	return cursor.NewScan(ctx, func(ctx context.Context, fn store.ScanFunc) error {
		return client.Scan(ctx, sp.policy, sp.Namespace, sp.Set, fn, sp.bins...)
	}, opts), nil
}

func (sp *SelectPlan) key(v types.Value) *store.Key {
	return &store.Key{Namespace: sp.Namespace, Set: sp.Set, UserKey: v}
}

// run opens one statement per index filter, or a single unfiltered
// statement for a scan. On error the streams already opened are closed.
func (sp *SelectPlan) run(bins []string, open func(*store.Statement) (store.Recordset, error)) ([]store.Recordset, error) {
	filters := sp.Access.Filters
	if len(filters) == 0 {
		filters = []*store.Filter{nil}
	}
	sets := make([]store.Recordset, 0, len(filters))
	for _, f := range filters {
		rs, err := open(&store.Statement{Namespace: sp.Namespace, Set: sp.Set, Bins: bins, Filter: f})
		if err != nil {
			for _, s := range sets {
				s.Close()
			}
			if f != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
			return nil, err
		}
		sets = append(sets, rs)
	}
	return sets, nil
}

// instrumented records the statement's metrics when it is closed.
type instrumented struct {
	cursor.Cursor
	strategy Strategy
	start    time.Time
	rows     int
	recorded bool
}

func (c *instrumented) Next() bool {
	if c.Cursor.Next() {
		c.rows++
		return true
	}
	return false
}

func (c *instrumented) Close() error {
	err := c.Cursor.Close()
	if !c.recorded {
		c.recorded = true
		failed := c.Cursor.Err()
		if failed == nil {
			failed = err
		}
		recordStatement(c.strategy, time.Since(c.start), c.rows, failed)
	}
	return err
}
