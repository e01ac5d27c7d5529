// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/session"
	"github.com/LeeDigitalWorks/binql/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedSession(t *testing.T) *session.Session {
	t.Helper()
	l, s := newLoader(t)
	ctx := context.Background()
	_, err := l.load(ctx, strings.NewReader(people))
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.Namespace = "test"
	cfg.Policy = &store.Policy{SendKey: true}
	sess, err := session.New(ctx, s, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func queryCursor(t *testing.T, sess *session.Session, sql string) cursor.Cursor {
	t.Helper()
	c, err := sess.Query(context.Background(), sql)
	require.NoError(t, err)
	return c
}

func TestRenderFormats(t *testing.T) {
	t.Parallel()
	sess := loadedSession(t)
	const sql = "SELECT name, year FROM people WHERE band = 'Stones' ORDER BY name"

	tests := []struct {
		format string
		want   []string
	}{
		{format: formatTable, want: []string{"name", "year", "Keith", "1943", "Mick"}},
		{format: formatCSV, want: []string{"name,year", "Keith,1943", "Mick,1943"}},
		{format: formatMarkdown, want: []string{"| name |", "Keith"}},
		{format: formatHTML, want: []string{"<table", "<td>Keith</td>"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		n, err := renderCursor(&buf, queryCursor(t, sess, sql), tt.format)
		require.NoError(t, err, tt.format)
		assert.Equal(t, 2, n, tt.format)
		for _, w := range tt.want {
			assert.Contains(t, buf.String(), w, tt.format)
		}
		assert.Less(t, strings.Index(buf.String(), "Keith"), strings.Index(buf.String(), "Mick"), tt.format)
	}
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()
	sess := loadedSession(t)

	var buf bytes.Buffer
	n, err := renderCursor(&buf, queryCursor(t, sess, "SELECT PK, name FROM people WHERE PK IN (1, 2) ORDER BY PK"), formatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, map[string]any{"PK": float64(1), "name": "John"}, first)
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()
	sess := loadedSession(t)

	var buf bytes.Buffer
	n, err := renderCursor(&buf, queryCursor(t, sess, "SELECT name FROM people WHERE year > 2000"), formatCSV)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, buf.String(), "name")
}

func TestSummary(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "(1 row in 2ms)", summary(1, 2*time.Millisecond))
	assert.Equal(t, "(12,345 rows in 1.5s)", summary(12345, 1500*time.Millisecond))
}

func TestValidFormat(t *testing.T) {
	t.Parallel()
	for _, f := range formats {
		assert.True(t, validFormat(f), f)
	}
	assert.False(t, validFormat("yaml"))
}
