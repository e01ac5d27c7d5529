// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/query"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/store/local"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := local.Open(ctx, local.Options{})
	require.NoError(t, err)

	p := &store.Policy{SendKey: true}
	for i, name := range []string{"John", "Paul", "George"} {
		k := &store.Key{Namespace: "test", Set: "people", UserKey: types.Int(int64(i + 1))}
		require.NoError(t, s.Put(ctx, p, k, map[string]any{"name": name, "year": 1940 + i}))
	}

	sess, err := New(ctx, s, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestSessionQuery(t *testing.T) {
	t.Parallel()
	sess := openSession(t, Config{Namespace: "test", Policy: &store.Policy{SendKey: true}})
	ctx := context.Background()

	assert.Equal(t, "test", sess.Namespace())
	assert.True(t, sess.SpecialFields().Has(special.PK))

	c, err := sess.Query(ctx, "SELECT PK, name FROM people WHERE year >= 1941 ORDER BY PK")
	require.NoError(t, err)
	rows, err := cursor.Collect(c)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, types.Int(2), rows[0].Get("PK"))
	assert.Equal(t, types.String("George"), rows[1].Get("name"))

	// Aggregation scripts were registered when the session opened.
	c, err = sess.Query(ctx, "SELECT count(*) FROM people")
	require.NoError(t, err)
	rows, err = cursor.Collect(c)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Int(3), rows[0].Get("count(*)"))
}

func TestSessionPlanCache(t *testing.T) {
	t.Parallel()
	sess := openSession(t, DefaultConfig())
	ctx := context.Background()
	const sql = "SELECT * FROM test.people WHERE PK = 1"

	p1, err := sess.Plan(ctx, sql)
	require.NoError(t, err)
	p2, err := sess.Plan(ctx, sql)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	sess.ForgetPlans()
	p3, err := sess.Plan(ctx, sql)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)

	// A cached plan runs concurrently without sharing column state.
	c1, err := sess.Query(ctx, sql)
	require.NoError(t, err)
	c2, err := sess.Query(ctx, sql)
	require.NoError(t, err)
	cols1, err := c1.Columns()
	require.NoError(t, err)
	cols2, err := c2.Columns()
	require.NoError(t, err)
	require.NotEmpty(t, cols1)
	assert.NotSame(t, cols1[0], cols2[0])
	require.NoError(t, c1.Close())
	require.NoError(t, c2.Close())
}

func TestSessionUncached(t *testing.T) {
	t.Parallel()
	sess := openSession(t, Config{Namespace: "test", PlanCacheSize: -1})
	ctx := context.Background()

	p1, err := sess.Plan(ctx, "SELECT name FROM people")
	require.NoError(t, err)
	p2, err := sess.Plan(ctx, "SELECT name FROM people")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
	assert.True(t, sess.SpecialFields().Empty())
}

func TestSessionErrors(t *testing.T) {
	t.Parallel()
	sess := openSession(t, Config{Namespace: "test"})
	ctx := context.Background()

	_, err := sess.Query(ctx, "SELECT nope(name) FROM people")
	assert.Equal(t, query.CodeUnknownFunction, query.ErrorCode(err))

	plan, err := sess.Explain(ctx, "SELECT name FROM people WHERE PK IN (1, 2)")
	require.NoError(t, err)
	assert.Equal(t, "pk_batch test.people keys [1, 2]", plan)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	_, err = sess.Query(ctx, "SELECT name FROM people")
	require.ErrorIs(t, err, ErrClosed)
}
