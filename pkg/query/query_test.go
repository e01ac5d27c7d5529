// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"context"
	"testing"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/store/local"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sendKey = &store.Policy{SendKey: true}

// people opens an in-memory store holding five musicians with an index
// on year and the aggregation scripts registered.
func people(t *testing.T) *local.Store {
	t.Helper()
	return musicians(t, true)
}

func musicians(t *testing.T, indexed bool) *local.Store {
	t.Helper()
	ctx := context.Background()
	s, err := local.Open(ctx, local.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rows := []map[string]any{
		{"id": 1, "name": "John", "year": 1940, "band": "Beatles"},
		{"id": 2, "name": "Paul", "year": 1942, "band": "Beatles"},
		{"id": 3, "name": "George", "year": 1943, "band": "Beatles"},
		{"id": 4, "name": "Ringo", "year": 1940, "band": "Beatles"},
		{"id": 5, "name": "Mick", "year": 1943, "band": "Stones"},
	}
	for _, r := range rows {
		k := &store.Key{Namespace: "test", Set: "people", UserKey: types.FromNative(r["id"])}
		require.NoError(t, s.Put(ctx, sendKey, k, r))
	}
	if indexed {
		require.NoError(t, s.CreateIndex(ctx, "test", "people", "year", store.IndexNumeric))
	}
	require.NoError(t, udf.NewRegistrar(s).Ensure(ctx))
	return s
}

func newTestPlanner(s *local.Store) *Planner {
	return NewPlanner(s, Options{Namespace: "test", Policy: sendKey})
}

func run(t *testing.T, s *local.Store, sql string) ([]*types.Row, *Plan) {
	t.Helper()
	ctx := context.Background()
	plan, err := newTestPlanner(s).Plan(ctx, sql)
	require.NoError(t, err)
	c, err := plan.Execute(ctx, s)
	require.NoError(t, err)
	rows, err := cursor.Collect(c)
	require.NoError(t, err)
	return rows, plan
}

func column(t *testing.T, rows []*types.Row, label string) []any {
	t.Helper()
	out := make([]any, len(rows))
	for i, r := range rows {
		require.True(t, r.Has(label), "row %d has no %q: %v", i, label, r.Labels())
		out[i] = r.Get(label).Native()
	}
	return out
}

func TestQueryStrategies(t *testing.T) {
	t.Parallel()
	s := people(t)

	tests := []struct {
		name     string
		sql      string
		strategy Strategy
		want     []any
	}{
		{
			name:     "key fetch",
			sql:      "SELECT name FROM people WHERE PK = 3",
			strategy: StrategyPKFetch,
			want:     []any{"George"},
		},
		{
			name:     "missing key",
			sql:      "SELECT name FROM people WHERE PK = 42",
			strategy: StrategyPKFetch,
			want:     []any{},
		},
		{
			name:     "key batch",
			sql:      "SELECT name FROM people WHERE PK IN (2, 1, 42) ORDER BY name",
			strategy: StrategyPKBatch,
			want:     []any{"John", "Paul"},
		},
		{
			name:     "key batch with residual",
			sql:      "SELECT name FROM people WHERE (PK = 1 OR PK = 3) AND year > 1941",
			strategy: StrategyPKBatch,
			want:     []any{"George"},
		},
		{
			name:     "index range",
			sql:      "SELECT name FROM people WHERE year BETWEEN 1940 AND 1942 ORDER BY name",
			strategy: StrategyIndexQuery,
			want:     []any{"John", "Paul", "Ringo"},
		},
		{
			name:     "index open range",
			sql:      "SELECT name FROM people WHERE year > 1941 ORDER BY name",
			strategy: StrategyIndexQuery,
			want:     []any{"George", "Mick", "Paul"},
		},
		{
			name:     "index in",
			sql:      "SELECT name FROM people WHERE year IN (1942, 1943) AND band = 'Beatles' ORDER BY name",
			strategy: StrategyIndexQuery,
			want:     []any{"George", "Paul"},
		},
		{
			name:     "scan",
			sql:      "SELECT name FROM people WHERE name > 'M' ORDER BY name",
			strategy: StrategyScan,
			want:     []any{"Mick", "Paul", "Ringo"},
		},
		{
			name:     "scan like",
			sql:      "SELECT name FROM people WHERE name LIKE '%o%' ORDER BY name DESC",
			strategy: StrategyScan,
			want:     []any{"Ringo", "John", "George"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rows, plan := run(t, s, tt.sql)
			assert.Equal(t, tt.strategy, plan.Strategy(), plan.String())
			assert.Equal(t, tt.want, column(t, rows, "name"))
		})
	}
}

func TestQueryAggregatePushdown(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, plan := run(t, s, "SELECT band, count(*) AS n, min(year) FROM people GROUP BY band ORDER BY band")
	assert.Equal(t, StrategyAggregate, plan.Strategy())
	require.NotNil(t, plan.Parts[0].Invocation, plan.String())
	assert.Equal(t, []any{"Beatles", "Stones"}, column(t, rows, "band"))
	assert.Equal(t, []any{int64(4), int64(1)}, column(t, rows, "n"))
	assert.Equal(t, []any{int64(1940), int64(1943)}, column(t, rows, "min(year)"))

	rows, plan = run(t, s, "SELECT count(*), avg(year) FROM people")
	require.NotNil(t, plan.Parts[0].Invocation)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Int(5), rows[0].Get("count(*)"))
	avg, err := rows[0].Float("avg(year)")
	require.NoError(t, err)
	assert.InDelta(t, 1941.6, avg, 1e-9)

	rows, plan = run(t, s, "SELECT DISTINCT band FROM people ORDER BY band")
	require.NotNil(t, plan.Parts[0].Invocation)
	assert.Equal(t, []any{"Beatles", "Stones"}, column(t, rows, "band"))
}

func TestQueryAggregateClientSide(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, plan := run(t, s, "SELECT band, sum(year) FROM people WHERE name LIKE '%o%' GROUP BY band")
	assert.Equal(t, StrategyAggregate, plan.Strategy())
	assert.Nil(t, plan.Parts[0].Invocation, "a residual filter keeps the aggregation on the client")
	require.Len(t, rows, 1)
	assert.Equal(t, types.String("Beatles"), rows[0].Get("band"))
	assert.Equal(t, types.Int(5823), rows[0].Get("sum(year)"))
	assert.Equal(t, []string{"band", "sum(year)"}, rows[0].Labels())

	rows, plan = run(t, s, "SELECT count(distinct year) FROM people")
	assert.Nil(t, plan.Parts[0].Invocation)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Int(3), rows[0].Get("count(distinct year)"))
}

func TestQueryHaving(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, _ := run(t, s, "SELECT year, count(*) AS n FROM people GROUP BY year HAVING n > 1 ORDER BY year")
	assert.Equal(t, []any{int64(1940), int64(1943)}, column(t, rows, "year"))
	assert.Equal(t, []any{int64(2), int64(2)}, column(t, rows, "n"))
}

func TestQueryUnion(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, plan := run(t, s, "SELECT name FROM people WHERE PK = 1 UNION ALL SELECT name FROM people WHERE year = 1940 ORDER BY name")
	assert.Len(t, plan.Parts, 2)
	assert.Equal(t, []any{"John", "John", "Ringo"}, column(t, rows, "name"))

	rows, _ = run(t, s, "SELECT name FROM people WHERE PK = 1 UNION SELECT name FROM people WHERE year = 1940 ORDER BY name")
	assert.Equal(t, []any{"John", "Ringo"}, column(t, rows, "name"))

	rows, _ = run(t, s, "SELECT name FROM people WHERE PK = 1 UNION ALL SELECT name FROM people WHERE PK = 2 ORDER BY name DESC LIMIT 1")
	assert.Equal(t, []any{"Paul"}, column(t, rows, "name"))
}

func TestQueryOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, _ := run(t, s, "SELECT name FROM people ORDER BY year DESC, name LIMIT 1, 2")
	assert.Equal(t, []any{"Mick", "Paul"}, column(t, rows, "name"))

	// Ordering by a bin that is not projected does not leak it.
	rows, _ = run(t, s, "SELECT name FROM people ORDER BY id")
	assert.Equal(t, []any{"John", "Paul", "George", "Ringo", "Mick"}, column(t, rows, "name"))
	for _, r := range rows {
		assert.Equal(t, []string{"name"}, r.Labels())
	}
}

func TestQueryWildcard(t *testing.T) {
	t.Parallel()
	s := people(t)

	rows, _ := run(t, s, "SELECT * FROM people WHERE PK = 2")
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"PK", "band", "id", "name", "year"}, rows[0].Labels())
	assert.Equal(t, types.Int(2), rows[0].Get("PK"))

	rows, _ = run(t, s, "SELECT name AS who, * FROM people WHERE year = 1942")
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"who", "PK", "band", "id", "name", "year"}, rows[0].Labels())
}

func TestQueryExpressions(t *testing.T) {
	t.Parallel()
	s := people(t)
	ctx := context.Background()

	rows, plan := run(t, s, "SELECT name, upper(name) AS shout, year + 1 AS later FROM people WHERE year > 1941 ORDER BY later DESC, name")
	assert.Equal(t, []any{"GEORGE", "MICK", "PAUL"}, column(t, rows, "shout"))
	assert.Equal(t, []any{int64(1944), int64(1944), int64(1943)}, column(t, rows, "later"))
	assert.ElementsMatch(t, []string{"name", "year"}, plan.Parts[0].bins)

	c, err := plan.Execute(ctx, s)
	require.NoError(t, err)
	defer c.Close()
	cols, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, types.VarChar, cols[1].Type)
	assert.Equal(t, types.Integer, cols[2].Type)

	rows, plan = run(t, s, "SELECT concat(name, '@', PK) AS tag FROM people WHERE PK = 1")
	assert.Equal(t, StrategyPKFetch, plan.Strategy())
	assert.Equal(t, []any{"John@1"}, column(t, rows, "tag"))
	assert.Equal(t, []string{"name"}, plan.Parts[0].bins, "special fields are not requested as bins")

	rows, _ = run(t, s, "SELECT DISTINCT year div 10 AS decade FROM people")
	assert.Equal(t, []any{int64(194)}, column(t, rows, "decade"))

	bad, err := newTestPlanner(s).Plan(ctx, "SELECT name + 1 FROM people")
	require.NoError(t, err, "operand kinds are only known per record")
	c, err = bad.Execute(ctx, s)
	require.NoError(t, err)
	_, err = cursor.Collect(c)
	assert.ErrorIs(t, err, expr.ErrOperand)
}

func TestQueryColumnsTyped(t *testing.T) {
	t.Parallel()
	s := people(t)
	ctx := context.Background()

	plan, err := newTestPlanner(s).Plan(ctx, "SELECT name, year FROM people WHERE name = 'Mick'")
	require.NoError(t, err)
	c, err := plan.Execute(ctx, s)
	require.NoError(t, err)
	defer c.Close()

	cols, err := c.Columns()
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, types.VarChar, cols[0].Type)
	assert.Equal(t, types.Integer, cols[1].Type, "years fit in 32 bits")

	plan, err = newTestPlanner(s).Plan(ctx, "SELECT band, count(*) FROM people GROUP BY band")
	require.NoError(t, err)
	agg, err := plan.Execute(ctx, s)
	require.NoError(t, err)
	defer agg.Close()
	cols, err = agg.Columns()
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, types.VarChar, cols[0].Type)
	assert.Equal(t, types.BigInt, cols[1].Type, "counts are always BIGINT")
}

func TestIndexAgreesWithScan(t *testing.T) {
	t.Parallel()
	indexed := people(t)
	require.NoError(t, indexed.CreateIndex(context.Background(), "test", "people", "band", store.IndexString))
	plain := musicians(t, false)

	tests := []struct {
		cond     string
		strategy Strategy
	}{
		{cond: "year = '1940'", strategy: StrategyIndexQuery},
		{cond: "year = 1940.0", strategy: StrategyIndexQuery},
		{cond: "year IN ('1940', 1940, 1943)", strategy: StrategyIndexQuery},
		{cond: "year BETWEEN '1941' AND 1943", strategy: StrategyIndexQuery},
		{cond: "year >= '1943'", strategy: StrategyIndexQuery},
		{cond: "year = 'x'", strategy: StrategyScan},
		{cond: "year = 1940.5", strategy: StrategyScan},
		{cond: "band = 'Stones'", strategy: StrategyIndexQuery},
		{cond: "band = 7", strategy: StrategyScan},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			t.Parallel()
			sql := "SELECT id FROM people WHERE " + tt.cond + " ORDER BY id"
			got, plan := run(t, indexed, sql)
			assert.Equal(t, tt.strategy, plan.Strategy(), plan.String())
			want, _ := run(t, plain, sql)
			assert.Equal(t, column(t, want, "id"), column(t, got, "id"))
		})
	}
}

func TestPlanReuse(t *testing.T) {
	t.Parallel()
	s := people(t)
	ctx := context.Background()

	plan, err := newTestPlanner(s).Plan(ctx, "SELECT * FROM people WHERE PK IN (1, 5)")
	require.NoError(t, err)
	for range 2 {
		c, err := plan.Execute(ctx, s)
		require.NoError(t, err)
		rows, err := cursor.Collect(c)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"PK", "band", "id", "name", "year"}, rows[0].Labels())
	}
	assert.True(t, plan.Parts[0].columns[0].IsWildcard(), "execution must not expand the plan's projection")
}

func TestPlanErrors(t *testing.T) {
	t.Parallel()
	s := people(t)
	p := newTestPlanner(s)
	ctx := context.Background()

	tests := []struct {
		sql  string
		code string
	}{
		{sql: "SELECT median(year) FROM people", code: CodeUnknownFunction},
		{sql: "SELECT DISTINCT band, count(*) FROM people GROUP BY band", code: CodeInvalidDistinct},
		{sql: "SELECT name, count(*) FROM people", code: CodeInvalidQuery},
		{sql: "SELECT band, count(*) FROM people GROUP BY band ORDER BY year", code: CodeInvalidQuery},
		{sql: "SELECT band, upper(name) FROM people GROUP BY band", code: CodeInvalidQuery},
		{sql: "SELECT sum(year) + 1 FROM people", code: CodeUnsupportedSyntax},
		{sql: "SELECT nosuch(year) FROM people", code: CodeUnknownFunction},
	}
	for _, tt := range tests {
		_, err := p.Plan(ctx, tt.sql)
		require.Error(t, err, tt.sql)
		assert.Equal(t, tt.code, ErrorCode(err), "%s: %v", tt.sql, err)
	}
}

func TestPlanString(t *testing.T) {
	t.Parallel()
	s := people(t)
	p := newTestPlanner(s)
	ctx := context.Background()

	tests := []struct {
		sql  string
		want string
	}{
		{
			sql:  "SELECT name FROM people WHERE PK = 1",
			want: "pk_fetch test.people keys [1]",
		},
		{
			sql:  "SELECT name FROM people WHERE year >= 1942 AND band = 'Stones' LIMIT 3",
			want: "index_query test.people index [year BETWEEN 1942 AND 9223372036854775807] filter (year >= 1942 AND band = 'Stones') limit 3",
		},
		{
			sql:  "SELECT name FROM people WHERE name LIKE 'J%' ORDER BY name DESC",
			want: "scan test.people filter (name LIKE 'J%') order by name DESC",
		},
	}
	for _, tt := range tests {
		plan, err := p.Plan(ctx, tt.sql)
		require.NoError(t, err)
		assert.Equal(t, tt.want, plan.String())
	}
}
