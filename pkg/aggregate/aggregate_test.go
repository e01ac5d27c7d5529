// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"context"
	"testing"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
	"github.com/LeeDigitalWorks/binql/pkg/udf"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupCol(name string) *types.Column {
	return types.NewColumn(types.RoleGroup, "test", "t", name, name)
}

func call(expr string) *types.Column {
	return types.NewExpressionColumn(types.RoleAggregated, "test", "t", expr, expr)
}

func data(name string) *types.Column {
	return types.NewColumn(types.RoleData, "test", "t", name, name)
}

// items wraps script result maps, of either map shape, as a Recordset.
func items(ms ...any) store.Recordset {
	recs := make([]*store.Record, len(ms))
	for i, m := range ms {
		recs[i] = &store.Record{Bins: map[string]any{store.AggregateBin: m}}
	}
	return store.Slice(context.Background(), recs)
}

func collect(t *testing.T, c cursor.Cursor) [][]types.Value {
	t.Helper()
	rows, err := cursor.Collect(c)
	require.NoError(t, err)
	out := make([][]types.Value, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

func TestReduceGroupBy(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{groupCol("k"), call("sum(v)")}, []string{"k"}, false)
	require.NoError(t, err)

	rs := items(
		map[string]any{"string:x": map[string]any{"sum(v)": 1}},
		map[string]any{
			"string:y": map[string]any{"sum(v)": 2.5},
			"string:x": map[string]any{"sum(v)": 2},
		},
	)
	got := collect(t, Reduce(context.Background(), rs, spec))
	want := [][]types.Value{
		{types.String("x"), types.Int(3)},
		{types.String("y"), types.Float(2.5)},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestReduceCompositeKeys(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{groupCol("a"), groupCol("b"), call("count(*)")}, []string{"a", "b"}, false)
	require.NoError(t, err)

	k1 := udf.EncodeKey(types.Int(1), types.String("p"))
	k2 := udf.EncodeKey(types.Int(1), types.Null)
	rs := items(map[any]any{
		k1: map[any]any{"count(*)": int64(2)},
		k2: map[any]any{"count(*)": int64(5)},
	})
	c := Reduce(context.Background(), rs, spec)
	cols, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, types.BigInt, cols[2].Type)
	assert.Equal(t, types.Integer, cols[0].Type)

	got := collect(t, c)
	want := [][]types.Value{
		{types.Int(1), types.Null, types.Int(5)},
		{types.Int(1), types.String("p"), types.Int(2)},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestReduceStats(t *testing.T) {
	t.Parallel()

	cols := []*types.Column{call("count(*)"), call("sum(v)"), call("avg(v)"), call("min(v)"), call("max(v)"), call("sumsqs(v)")}
	spec, err := SpecFrom(cols, nil, false)
	require.NoError(t, err)

	rs := items(
		map[string]any{
			"count(*)": 2, "sum(v)": 3, "avg(v)": map[string]any{"sum": 3, "count": 2},
			"min(v)": 1, "max(v)": 2, "sumsqs(v)": 5,
		},
		map[string]any{
			"count(*)": 1, "sum(v)": 4, "avg(v)": map[any]any{"sum": 4, "count": 1},
			"min(v)": 4, "max(v)": 4, "sumsqs(v)": 16,
		},
	)
	got := collect(t, Reduce(context.Background(), rs, spec))
	want := [][]types.Value{{
		types.Int(3), types.Int(7), types.Float(7.0 / 3), types.Int(1), types.Int(4), types.Int(21),
	}}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestReduceEmptyStats(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{call("count(*)"), call("sum(v)")}, nil, false)
	require.NoError(t, err)
	got := collect(t, Reduce(context.Background(), items(), spec))
	assert.Equal(t, [][]types.Value{{types.Int(0), types.Null}}, got)
}

func TestReduceEmptyGroupBy(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{groupCol("k"), call("count(*)")}, []string{"k"}, false)
	require.NoError(t, err)
	got := collect(t, Reduce(context.Background(), items(), spec))
	assert.Empty(t, got)
}

func TestReduceDistinct(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{data("band")}, nil, true)
	require.NoError(t, err)
	require.Equal(t, "band", spec.Distinct)

	rs := items(
		map[string]any{"string:Beatles": 4},
		map[string]any{"string:Beatles": 1, "string:Abba": 2},
	)
	got := collect(t, Reduce(context.Background(), rs, spec))
	assert.Equal(t, [][]types.Value{{types.String("Beatles")}, {types.String("Abba")}}, got)
}

func TestReduceDistinctCanonical(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{data("code")}, nil, true)
	require.NoError(t, err)

	num := udf.EncodeKey(types.Int(123))
	text := udf.EncodeKey(types.String("123"))
	rs := items(
		map[string]any{num: 1},
		map[string]any{text: 3},
	)
	got := collect(t, Reduce(context.Background(), rs, spec))
	assert.Equal(t, [][]types.Value{{types.Int(123)}}, got)
}

func TestReduceBadKey(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{groupCol("k"), call("count(*)")}, []string{"k"}, false)
	require.NoError(t, err)
	rs := items(map[string]any{"table:1": map[string]any{"count(*)": 1}})
	_, err = cursor.Collect(Reduce(context.Background(), rs, spec))
	require.ErrorIs(t, err, udf.ErrUnknownTypeTag)
}

func TestReduceClosedUnread(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{call("count(*)")}, nil, false)
	require.NoError(t, err)
	c := Reduce(context.Background(), items(map[string]any{"count(*)": 1}), spec)
	require.NoError(t, c.Close())
}

func TestSumTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fn     string
		values []types.Value
		want   types.Value
	}{
		{name: "ints stay integral", fn: "sum(v)", values: []types.Value{types.Int(1), types.Int(2)}, want: types.Int(3)},
		{name: "any float widens", fn: "sum(v)", values: []types.Value{types.Int(1), types.Float(0.5)}, want: types.Float(1.5)},
		{name: "avg is float", fn: "avg(v)", values: []types.Value{types.Int(1), types.Int(2)}, want: types.Float(1.5)},
		{name: "nulls ignored", fn: "avg(v)", values: []types.Value{types.Null, types.Int(4)}, want: types.Float(4)},
		{name: "strings ignored", fn: "sum(v)", values: []types.Value{types.String("x"), types.Int(4)}, want: types.Int(4)},
		{name: "sum of nothing", fn: "sum(v)", values: []types.Value{types.Null}, want: types.Null},
		{name: "count skips nulls", fn: "count(v)", values: []types.Value{types.Null, types.String("a")}, want: types.Int(1)},
		{name: "count distinct", fn: "count(distinct v)", values: []types.Value{types.Int(1), types.Float(1), types.Int(2)}, want: types.Int(2)},
		{name: "count distinct numeric text", fn: "count(distinct v)", values: []types.Value{types.String("7"), types.Int(7), types.String("x")}, want: types.Int(2)},
		{name: "sumsqs", fn: "sumsqs(v)", values: []types.Value{types.Int(2), types.Int(3)}, want: types.Int(13)},
		{name: "min", fn: "min(v)", values: []types.Value{types.Int(5), types.Float(2.5), types.Int(3)}, want: types.Float(2.5)},
		{name: "max", fn: "max(v)", values: []types.Value{types.Int(5), types.Float(2.5), types.Int(3)}, want: types.Int(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec, err := SpecFrom([]*types.Column{call(tt.fn)}, nil, false)
			require.NoError(t, err)
			rows := make([]*types.Row, len(tt.values))
			for i, v := range tt.values {
				rows[i] = types.RowOf([]string{"v"}, []types.Value{v})
			}
			got := collect(t, Rows(context.Background(), cursor.NewRows([]*types.Column{data("v")}, rows), spec))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0][0])
		})
	}
}

func TestRowsGroupEncounterOrder(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{groupCol("k"), call("count(*)"), call("sum(v)")}, []string{"k"}, false)
	require.NoError(t, err)

	labels := []string{"k", "v"}
	src := cursor.NewRows([]*types.Column{data("k"), data("v")}, []*types.Row{
		types.RowOf(labels, []types.Value{types.String("x"), types.Int(1)}),
		types.RowOf(labels, []types.Value{types.String("y"), types.Int(7)}),
		types.RowOf(labels, []types.Value{types.String("x"), types.Int(2)}),
	})
	got := collect(t, Rows(context.Background(), src, spec))
	want := [][]types.Value{
		{types.String("x"), types.Int(2), types.Int(3)},
		{types.String("y"), types.Int(1), types.Int(7)},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestSpecFromErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		columns  []*types.Column
		groupBy  []string
		distinct bool
		wantErr  error
	}{
		{name: "unknown function", columns: []*types.Column{call("median(v)")}, wantErr: ErrUnknownFunction},
		{name: "sum star", columns: []*types.Column{call("sum(*)")}, wantErr: ErrUnknownFunction},
		{name: "distinct with aggregate", columns: []*types.Column{data("v"), call("count(*)")}, distinct: true, wantErr: ErrInvalidDistinct},
		{name: "ungrouped column", columns: []*types.Column{data("name"), call("count(*)")}, wantErr: ErrNotGrouped},
		{name: "group column not in group by", columns: []*types.Column{groupCol("a"), call("count(*)")}, groupBy: []string{"b"}, wantErr: ErrNotGrouped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SpecFrom(tt.columns, tt.groupBy, tt.distinct)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpecFromNoAggregation(t *testing.T) {
	t.Parallel()

	spec, err := SpecFrom([]*types.Column{data("a"), data("b")}, nil, true)
	require.NoError(t, err)
	assert.Nil(t, spec, "multi-column distinct de-duplicates rows instead")

	spec, err = SpecFrom([]*types.Column{data("a")}, nil, false)
	require.NoError(t, err)
	assert.Nil(t, spec)
}

func TestChoose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		columns  []*types.Column
		groupBy  []string
		distinct bool
		want     string
	}{
		{name: "group by", columns: []*types.Column{groupCol("k"), call("sum(v)")}, groupBy: []string{"k"}, want: "groupby.groupby(groupby:k, sum:v)"},
		{name: "distinct", columns: []*types.Column{data("k")}, distinct: true, want: "distinct.distinct(distinct:k)"},
		{name: "stats", columns: []*types.Column{call("count(*)"), call("AVG(v)")}, want: "stats.single_bin_stats(count:*, avg:v)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec, err := SpecFrom(tt.columns, tt.groupBy, tt.distinct)
			require.NoError(t, err)
			inv, err := Choose(spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inv.String())
		})
	}

	spec, err := SpecFrom([]*types.Column{call("count(distinct v)")}, nil, false)
	require.NoError(t, err)
	_, err = Choose(spec)
	require.ErrorIs(t, err, ErrNotPushable)
}
