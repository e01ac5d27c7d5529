// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/LeeDigitalWorks/binql/pkg/expr"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(pk int64, bins map[string]any) *store.Record {
	return &store.Record{
		Key:        &store.Key{Namespace: "test", Set: "people", UserKey: types.Int(pk), Digest: []byte{byte(pk)}},
		Bins:       bins,
		Generation: 1,
	}
}

func people() []*store.Record {
	return []*store.Record{
		record(1, map[string]any{"name": "John", "age": 30}),
		record(2, map[string]any{"name": "Paul", "age": 28, "band": "Beatles"}),
		record(3, map[string]any{"name": "Ringo"}),
	}
}

func star() []*types.Column {
	return []*types.Column{types.NewColumn(types.RoleData, "test", "people", types.Wildcard, "")}
}

func TestRecordsWildcardDiscovery(t *testing.T) {
	t.Parallel()

	c := NewRecords(people(), Options{Namespace: "test", Set: "people", Columns: star(), Special: special.Of(special.PK)})
	cols, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"PK", "age", "name", "band"}, types.Labels(cols))
	assert.Equal(t, types.Integer, cols[1].Type)
	assert.Equal(t, types.VarChar, cols[2].Type)

	rows, err := Collect(c)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, types.Int(1), rows[0].Get("PK"))
	assert.Equal(t, types.String("Beatles"), rows[1].Get("band"))
	assert.True(t, rows[2].Get("age").IsNull())
}

func TestRecordsDiscoveryLimit(t *testing.T) {
	t.Parallel()

	recs := people()
	c := NewRecords(recs, Options{Columns: star(), DiscoveryLimit: 1})
	cols, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name"}, types.Labels(cols), "band is outside the sample")

	rows, err := Collect(c)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "sampled records are replayed")
}

func TestRecordsDiscoveryDeterministic(t *testing.T) {
	t.Parallel()

	var first []string
	for i := 0; i < 20; i++ {
		cols, err := NewRecords(people(), Options{Columns: star()}).Columns()
		require.NoError(t, err)
		if first == nil {
			first = types.Labels(cols)
			continue
		}
		assert.Equal(t, first, types.Labels(cols))
	}
}

func TestRecordsExplicitProjection(t *testing.T) {
	t.Parallel()

	cols := []*types.Column{
		types.NewColumn(types.RoleData, "test", "people", "name", "n"),
		types.NewColumn(types.RoleData, "test", "people", "generation", ""),
		types.NewColumn(types.RoleData, "test", "people", "missing", ""),
	}
	c := NewRecords(people()[:1], Options{Columns: cols, Special: special.Of(special.Generation)})
	require.True(t, c.Next())
	r := c.Row()
	assert.Equal(t, types.String("John"), r.Get("n"))
	assert.Equal(t, types.Int(1), r.Get("generation"))
	assert.True(t, r.Get("missing").IsNull())
	assert.Equal(t, types.Unknown, cols[2].Type)
	require.NoError(t, c.Close())
}

func computed(label string) *types.Column {
	return types.NewExpressionColumn(types.RoleExpression, "test", "people", label, label)
}

func TestRecordsComputedColumns(t *testing.T) {
	t.Parallel()

	upper, err := expr.Call("upper", expr.Bin("name"))
	require.NoError(t, err)
	tag, err := expr.Call("concat", expr.Bin("name"), expr.Literal(types.String("#")), expr.Bin("PK"))
	require.NoError(t, err)

	cols := []*types.Column{
		types.NewColumn(types.RoleData, "test", "people", "name", ""),
		computed("next"),
		computed("shout"),
		computed("tag"),
	}
	c := NewRecords(people(), Options{
		Columns: cols,
		Special: special.Of(special.PK),
		Compute: map[string]expr.Expr{
			"next":  expr.Arith(expr.Add, expr.Bin("age"), expr.Literal(types.Int(1))),
			"shout": upper,
			"tag":   tag,
		},
	})
	got, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, types.Integer, got[1].Type)
	assert.Equal(t, types.VarChar, got[2].Type)

	rows, err := Collect(c)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, types.Int(31), rows[0].Get("next"))
	assert.Equal(t, types.String("JOHN"), rows[0].Get("shout"))
	assert.Equal(t, types.String("John#1"), rows[0].Get("tag"))
	assert.True(t, rows[2].Get("next").IsNull(), "missing bins compute to null")
	assert.Equal(t, types.String("RINGO"), rows[2].Get("shout"))
}

func TestRecordsComputeError(t *testing.T) {
	t.Parallel()

	c := NewRecords(people(), Options{
		Columns: []*types.Column{computed("bad")},
		Compute: map[string]expr.Expr{"bad": expr.Arith(expr.Add, expr.Bin("age"), expr.Bin("name"))},
	})
	cols, err := c.Columns()
	require.NoError(t, err)
	assert.Equal(t, types.Unknown, cols[0].Type)

	_, err = Collect(c)
	assert.ErrorIs(t, err, expr.ErrOperand)
	assert.ErrorContains(t, err, "column bad")
}

func TestRecordsSkipsMissingBatchEntries(t *testing.T) {
	t.Parallel()

	recs := people()
	c := NewRecords([]*store.Record{nil, recs[0], nil, recs[1]}, Options{Columns: star()})
	rows, err := Collect(c)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRecordsExhaustionIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewRecords(people(), Options{Columns: star()})
	assert.Equal(t, BeforeFirst, c.Position())
	assert.Equal(t, 0, c.RowNumber())
	for i := 1; c.Next(); i++ {
		assert.Equal(t, i, c.RowNumber())
		assert.Equal(t, OnRow, c.Position())
	}
	for i := 0; i < 3; i++ {
		assert.False(t, c.Next())
		assert.Equal(t, AfterLast, c.Position())
		assert.Nil(t, c.Row())
	}
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestRecordsetCursor(t *testing.T) {
	t.Parallel()

	rs := store.Slice(context.Background(), people())
	rows, err := Collect(NewRecordset(rs, Options{Columns: star()}))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestValueIndex(t *testing.T) {
	t.Parallel()

	c := NewRecords(people(), Options{Columns: star()})
	defer c.Close()
	_, err := Value(c, 0)
	require.ErrorIs(t, err, ErrColumnIndex)

	require.True(t, c.Next())
	v, err := Value(c, 1)
	require.NoError(t, err)
	assert.Equal(t, types.String("John"), v)
	_, err = Value(c, 5)
	require.ErrorIs(t, err, ErrColumnIndex)
}

func scanOf(n int) ScanFunc {
	return func(ctx context.Context, fn store.ScanFunc) error {
		for i := 0; i < n; i++ {
			if err := fn(record(int64(i), map[string]any{"i": i})); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestScanCursor(t *testing.T) {
	t.Parallel()

	rows, err := Collect(NewScan(context.Background(), scanOf(100), Options{Columns: star()}))
	require.NoError(t, err)
	require.Len(t, rows, 100)
	for i, r := range rows {
		assert.Equal(t, types.Int(int64(i)), r.Get("i"))
	}
}

func TestScanCursorCloseEarly(t *testing.T) {
	t.Parallel()

	c := NewScan(context.Background(), scanOf(1000), Options{Columns: star()})
	require.True(t, c.Next())
	require.True(t, c.Next())
	require.NoError(t, c.Close())
	assert.False(t, c.Next())
}

func TestScanCursorNeverRead(t *testing.T) {
	t.Parallel()

	c := NewScan(context.Background(), scanOf(1000), Options{Columns: star()})
	require.NoError(t, c.Close())
}

func TestScanCursorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("node unavailable")
	scan := func(ctx context.Context, fn store.ScanFunc) error {
		for i := 0; i < 3; i++ {
			if err := fn(record(int64(i), map[string]any{"i": i})); err != nil {
				return err
			}
		}
		return boom
	}
	c := NewScan(context.Background(), scan, Options{Columns: star()})
	n := 0
	for c.Next() {
		n++
	}
	assert.Equal(t, 3, n)
	require.ErrorIs(t, c.Err(), boom)
	require.NoError(t, c.Close())
}

func TestScanCursorErrorWhileSampling(t *testing.T) {
	t.Parallel()

	boom := errors.New("node unavailable")
	failAfter := func(n int) ScanFunc {
		return func(ctx context.Context, fn store.ScanFunc) error {
			for i := 0; i < n; i++ {
				if err := fn(record(int64(i), map[string]any{"i": i})); err != nil {
					return err
				}
			}
			return boom
		}
	}

	t.Run("sampled rows come first", func(t *testing.T) {
		t.Parallel()
		c := NewScan(context.Background(), failAfter(2), Options{Columns: star(), DiscoveryLimit: 10})
		cols, err := c.Columns()
		require.NoError(t, err)
		assert.Equal(t, []string{"i"}, types.Labels(cols))
		require.True(t, c.Next())
		require.True(t, c.Next())
		assert.False(t, c.Next())
		require.ErrorIs(t, c.Err(), boom)
		require.NoError(t, c.Close())
	})

	t.Run("nothing sampled", func(t *testing.T) {
		t.Parallel()
		c := NewScan(context.Background(), failAfter(0), Options{Columns: star()})
		_, err := c.Columns()
		require.ErrorIs(t, err, boom)
		assert.False(t, c.Next())
		require.ErrorIs(t, c.Err(), boom)
		require.NoError(t, c.Close())
	})
}

func TestScanCursorContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewScan(ctx, scanOf(1000), Options{Columns: star()})
	require.True(t, c.Next())
	cancel()
	for c.Next() {
	}
	require.ErrorIs(t, c.Err(), context.Canceled)
	require.NoError(t, c.Close())
}

func ExampleNewRecords() {
	c := NewRecords([]*store.Record{record(1, map[string]any{"name": "John"})}, Options{Columns: star()})
	defer c.Close()
	for c.Next() {
		fmt.Println(c.Row().Get("name"))
	}
	// Output: John
}
