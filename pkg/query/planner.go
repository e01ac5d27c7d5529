// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package query plans SQL SELECT statements onto the native operations of
// the store (key fetches, batch fetches, secondary-index queries, scans
// and stream aggregations) and executes the plans as cursors.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/aggregate"
	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

// Indexes answers whether a bin carries a secondary index, and of which
// kind. store.Client implements it.
type Indexes interface {
	Indexed(ctx context.Context, namespace, set, bin string) (store.IndexKind, bool, error)
}

// Options configures a Planner.
type Options struct {
	// Namespace qualifies tables named without one.
	Namespace string
	// Policy is used for every store call of the planned statements. Its
	// send flags decide which special fields are exposed. Nil means
	// store.DefaultPolicy().
	Policy *store.Policy
	// DiscoveryLimit caps the records sampled to type columns.
	DiscoveryLimit int
}

// Planner turns SQL text into executable plans.
type Planner struct {
	indexes Indexes
	opts    Options
	special special.Set
}

func NewPlanner(indexes Indexes, opts Options) *Planner {
	if opts.Policy == nil {
		opts.Policy = store.DefaultPolicy()
	}
	return &Planner{
		indexes: indexes,
		opts:    opts,
		special: special.Resolve(opts.Policy),
	}
}

// SpecialFields is the set of record metadata columns plans expose.
func (p *Planner) SpecialFields() special.Set {
	return p.special
}

// Plan parses and plans sql. Statement-shape errors are *Error values.
func (p *Planner) Plan(ctx context.Context, sql string) (*Plan, error) {
	st, err := Parse(sql, p.opts.Namespace)
	if err != nil {
		recordError(err)
		return nil, err
	}

	plan := &Plan{
		SQL:      sql,
		Distinct: st.Distinct,
		OrderBy:  st.OrderBy,
		Offset:   st.Offset,
		Limit:    st.Limit,
	}
	for _, sel := range st.Parts {
		sp, err := p.planSelect(ctx, sel)
		if err != nil {
			recordError(err)
			return nil, err
		}
		plan.Parts = append(plan.Parts, sp)
	}

	logger.Ctx(ctx).Debug().
		Str("strategy", plan.Strategy().String()).
		Str("plan", plan.String()).
		Msg("planned statement")
	return plan, nil
}

func (p *Planner) planSelect(ctx context.Context, sel *Select) (*SelectPlan, error) {
	spec, err := aggregate.SpecFrom(sel.Columns, sel.GroupBy, sel.Distinct)
	if err != nil {
		return nil, aggregateError(err)
	}

	access, err := Classify(ctx, sel.Where, func(ctx context.Context, bin string) (store.IndexKind, bool, error) {
		return p.indexes.Indexed(ctx, sel.Namespace, sel.Set, bin)
	})
	if err != nil {
		return nil, fmt.Errorf("plan %s.%s: %w", sel.Namespace, sel.Set, err)
	}

	sp := &SelectPlan{
		Namespace:      sel.Namespace,
		Set:            sel.Set,
		Strategy:       access.Strategy,
		Access:         access,
		Having:         sel.Having,
		Offset:         sel.Offset,
		Limit:          sel.Limit,
		policy:         p.opts.Policy,
		special:        p.special,
		discoveryLimit: p.opts.DiscoveryLimit,
	}

	b := newBinder(sel.Namespace, sel.Set)
	if spec == nil {
		b.project(sel.Columns)
		b.compute = sel.Expressions
		sp.compute = sel.Expressions
		sp.Distinct = sel.Distinct
		for _, k := range sel.OrderBy {
			if !b.visible(k.Label) {
				k.Label = b.bind(k.Label)
			}
			sp.OrderBy = append(sp.OrderBy, k)
		}
	} else {
		sp.Strategy = StrategyAggregate
		sp.Aggregate = spec
		labels := types.Labels(spec.Columns())
		for _, k := range sel.OrderBy {
			if !slices.Contains(labels, k.Label) {
				return nil, newError(CodeInvalidQuery, k.Label, "ORDER BY of an aggregation must name one of its columns")
			}
		}
		sp.OrderBy = sel.OrderBy

		if pushable(access, spec) {
			inv, err := aggregate.Choose(spec)
			switch {
			case err == nil:
				sp.Invocation = &inv
			case !errors.Is(err, aggregate.ErrNotPushable):
				return nil, err
			}
		}
		if sp.Invocation == nil {
			for _, f := range spec.Fields() {
				b.source(f)
			}
		}
	}

	sp.residual = access.Residual.Rename(b.bind)
	sp.columns = b.columns
	sp.bins = b.bins()
	return sp, nil
}

// pushable reports whether the aggregation can run as a stream script
// over the access: the script sees every record the store selects, so
// there must be nothing left to filter, and it reads bins only.
func pushable(a Access, s *aggregate.Spec) bool {
	if a.Residual != nil {
		return false
	}
	if a.Strategy != StrategyScan && a.Strategy != StrategyIndexQuery {
		return false
	}
	for _, f := range s.Fields() {
		if _, ok := special.Lookup(f); ok {
			return false
		}
	}
	return true
}

// binder builds the column list a plan reads from records: the
// projection, plus hidden columns for bins that only predicates and
// ordering read.
type binder struct {
	namespace string
	set       string
	columns   []*types.Column
	wildcard  bool
	labels    map[string]bool
	bound     map[string]string
	compute   map[string]expr.Expr
}

func newBinder(namespace, set string) *binder {
	return &binder{
		namespace: namespace,
		set:       set,
		labels:    make(map[string]bool),
		bound:     make(map[string]string),
	}
}

func (b *binder) project(cols []*types.Column) {
	for _, c := range cols {
		b.columns = append(b.columns, c)
		if c.IsWildcard() {
			b.wildcard = true
			continue
		}
		b.labels[c.Label()] = true
	}
}

// visible reports whether label names an explicitly projected column.
func (b *binder) visible(label string) bool {
	for _, c := range b.columns {
		if !c.IsWildcard() && c.Role() != types.RoleHidden && c.Label() == label {
			return true
		}
	}
	return false
}

// source adds a hidden column labelled with its own bin name, which is
// how client-side aggregation reads its inputs.
func (b *binder) source(bin string) {
	if _, ok := b.bound[bin]; ok {
		return
	}
	b.columns = append(b.columns, types.NewColumn(types.RoleHidden, b.namespace, b.set, bin, bin))
	b.labels[bin] = true
	b.bound[bin] = bin
}

// bind returns the row label under which bin can be read, adding a
// hidden column when no projected column reads it. Hidden labels are
// prefixed with '#' so they never shadow bins a "*" expands to.
func (b *binder) bind(bin string) string {
	if label, ok := b.bound[bin]; ok {
		return label
	}
	for _, c := range b.columns {
		if !c.IsWildcard() && !c.Computed() && c.Name() == bin {
			b.bound[bin] = c.Label()
			return c.Label()
		}
	}
	label := "#" + bin
	for b.labels[label] {
		label = "#" + label
	}
	b.columns = append(b.columns, types.NewColumn(types.RoleHidden, b.namespace, b.set, bin, label))
	b.labels[label] = true
	b.bound[bin] = label
	return label
}

// bins lists the bins to request from the store; nil requests all of
// them.
func (b *binder) bins() []string {
	if b.wildcard {
		return nil
	}
	var out []string
	add := func(bin string) {
		if _, ok := special.Lookup(bin); ok {
			return
		}
		if !slices.Contains(out, bin) {
			out = append(out, bin)
		}
	}
	for _, c := range b.columns {
		switch {
		case c.Role() == types.RoleExpression:
			if x, ok := b.compute[c.Label()]; ok {
				for _, bin := range expr.Bins(x) {
					add(bin)
				}
			}
		case !c.Computed():
			add(c.Name())
		}
	}
	return out
}

// Plan is an executable statement. A plan holds no per-execution state
// and may be executed any number of times, concurrently.
type Plan struct {
	SQL   string
	Parts []*SelectPlan
	// Distinct, OrderBy, Offset and Limit apply to the combined rows of
	// a UNION.
	Distinct bool
	OrderBy  []order.Key
	Offset   int
	Limit    int
}

// Strategy is the access strategy of the first SELECT.
func (p *Plan) Strategy() Strategy {
	return p.Parts[0].Strategy
}

func (p *Plan) String() string {
	if len(p.Parts) == 1 {
		return p.Parts[0].String()
	}
	parts := make([]string, len(p.Parts))
	for i, sp := range p.Parts {
		parts[i] = "(" + sp.String() + ")"
	}
	op := " union all "
	if p.Distinct {
		op = " union "
	}
	out := strings.Join(parts, op)
	return out + describeTail(p.OrderBy, p.Offset, p.Limit)
}

// SelectPlan is the plan of one SELECT.
type SelectPlan struct {
	Namespace string
	Set       string
	Strategy  Strategy
	Access    Access
	// Aggregate is nil for statements that do not aggregate.
	Aggregate *aggregate.Spec
	// Invocation is the stream script computing Aggregate on the server;
	// nil when the aggregation runs on the client.
	Invocation *udf.Invocation
	Having     *Predicate
	Distinct   bool
	OrderBy    []order.Key
	Offset     int
	Limit      int

	// columns is the record projection template, hidden columns included.
	// Executions work on copies.
	columns  []*types.Column
	compute  map[string]expr.Expr
	residual *Predicate
	bins     []string

	policy         *store.Policy
	special        special.Set
	discoveryLimit int
}

func (sp *SelectPlan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s.%s", sp.Strategy, sp.Namespace, sp.Set)
	switch {
	case len(sp.Access.Keys) > 0:
		keys := make([]string, len(sp.Access.Keys))
		for i, k := range sp.Access.Keys {
			keys[i] = literal(k)
		}
		fmt.Fprintf(&b, " keys [%s]", strings.Join(keys, ", "))
	case len(sp.Access.Filters) > 0:
		filters := make([]string, len(sp.Access.Filters))
		for i, f := range sp.Access.Filters {
			filters[i] = f.String()
		}
		fmt.Fprintf(&b, " index [%s]", strings.Join(filters, "; "))
	}
	if sp.Access.Residual != nil {
		fmt.Fprintf(&b, " filter (%s)", sp.Access.Residual)
	}
	if sp.Aggregate != nil {
		if sp.Invocation != nil {
			fmt.Fprintf(&b, " udf %s", sp.Invocation)
		} else {
			fmt.Fprintf(&b, " client %s", sp.Aggregate)
		}
	}
	if sp.Having != nil {
		fmt.Fprintf(&b, " having (%s)", sp.Having)
	}
	if sp.Distinct {
		b.WriteString(" distinct")
	}
	b.WriteString(describeTail(sp.OrderBy, sp.Offset, sp.Limit))
	return b.String()
}

func describeTail(keys []order.Key, offset, limit int) string {
	var b strings.Builder
	if len(keys) > 0 {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k.String()
		}
		b.WriteString(" order by " + strings.Join(parts, ", "))
	}
	if offset > 0 {
		fmt.Fprintf(&b, " offset %d", offset)
	}
	if limit >= 0 {
		fmt.Fprintf(&b, " limit %d", limit)
	}
	return b.String()
}
