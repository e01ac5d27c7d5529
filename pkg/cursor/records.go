// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Options configures a record cursor.
type Options struct {
	Namespace string
	Set       string
	// Columns is the projection. It is expanded and typed in place during
	// discovery, so it must not be shared with another cursor.
	Columns []*types.Column
	Special special.Set
	// DiscoveryLimit caps how many records are sampled to type columns.
	// Zero means DefaultDiscoveryLimit.
	DiscoveryLimit int
	// Compute holds the expressions of RoleExpression columns, keyed by
	// label.
	Compute map[string]expr.Expr
}

func (o Options) limit() int {
	if o.DiscoveryLimit <= 0 {
		return DefaultDiscoveryLimit
	}
	return o.DiscoveryLimit
}

// Records is a cursor over native store records.
//
// On first use it pulls up to DiscoveryLimit records into a lookahead
// buffer, resolves the projection against them, and then replays the
// buffer before reading further from the source. Every shape of store
// result behaves the same once wrapped.
type Records struct {
	state
	src  source
	opts Options

	discovered bool
	columns    []*types.Column
	extract    []extractFunc
	lookahead  []*store.Record
	// pending is a source error met while sampling. It is reported once
	// the records sampled before it have been replayed.
	pending error
	row     *types.Row
}

// NewRecords wraps an already fetched set of records; nil entries (missing
// keys of a batch) are skipped.
func NewRecords(recs []*store.Record, opts Options) *Records {
	return newRecords(&sliceSource{recs: recs}, opts)
}

// NewRecordset wraps a query stream. Closing the cursor closes rs.
func NewRecordset(rs store.Recordset, opts Options) *Records {
	return newRecords(&recordsetSource{rs: rs}, opts)
}

// NewScan starts scan on a worker goroutine and wraps its output. The
// worker stops when the cursor is closed or ctx is done.
func NewScan(ctx context.Context, scan ScanFunc, opts Options) *Records {
	return newRecords(newScanSource(ctx, scan), opts)
}

func newRecords(src source, opts Options) *Records {
	return &Records{src: src, opts: opts}
}

func (c *Records) discover() error {
	if c.discovered {
		return nil
	}
	c.discovered = true

	limit := c.opts.limit()
	for len(c.lookahead) < limit {
		rec, err := c.src.next()
		if err != nil {
			if len(c.lookahead) == 0 {
				return err
			}
			c.pending = err
			break
		}
		if rec == nil {
			break
		}
		c.lookahead = append(c.lookahead, rec)
	}
	discoverySamples.Observe(float64(len(c.lookahead)))

	c.columns = Discover(c.opts, c.lookahead)
	c.extract = make([]extractFunc, len(c.columns))
	for i, col := range c.columns {
		c.extract[i] = extractor(col, c.opts)
	}
	return nil
}

func (c *Records) Columns() ([]*types.Column, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := c.discover(); err != nil {
		c.fail(err)
		return nil, err
	}
	return c.columns, nil
}

func (c *Records) Next() bool {
	c.row = nil
	if c.closed || c.pos == AfterLast {
		return false
	}
	if err := c.discover(); err != nil {
		return c.fail(err)
	}

	var rec *store.Record
	if len(c.lookahead) > 0 {
		rec = c.lookahead[0]
		c.lookahead[0] = nil
		c.lookahead = c.lookahead[1:]
	} else if c.pending != nil {
		return c.fail(c.pending)
	} else {
		var err error
		if rec, err = c.src.next(); err != nil {
			return c.fail(err)
		}
	}
	if rec == nil {
		return c.advance(false)
	}

	row := types.NewRow(len(c.columns))
	for i, col := range c.columns {
		v, err := c.extract[i](rec)
		if err != nil {
			return c.fail(fmt.Errorf("column %s: %w", col.Label(), err))
		}
		row.Set(col.Label(), v)
	}
	c.row = row
	return c.advance(true)
}

func (c *Records) Row() *types.Row { return c.row }

// Close releases the source. It is safe to call more than once.
func (c *Records) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.row = nil
	c.lookahead = nil
	c.pos = AfterLast
	return c.src.close()
}
