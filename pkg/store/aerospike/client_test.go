// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aerospike

import (
	"testing"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHosts(t *testing.T) {
	t.Parallel()

	hosts, err := parseHosts([]string{"db1", "db2:3100", " "})
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "db1", hosts[0].Name)
	assert.Equal(t, defaultPort, hosts[0].Port)
	assert.Equal(t, 3100, hosts[1].Port)

	_, err = parseHosts(nil)
	require.Error(t, err)
	_, err = parseHosts([]string{"db:port"})
	require.Error(t, err)
}

func TestFindIndex(t *testing.T) {
	t.Parallel()

	resp := "ns=test:indexname=by_year:set=people:bin=year:type=numeric:indextype=default:state=RW;" +
		"ns=test:indexname=by_tag:set=NULL:bin=tag:type=STRING:indextype=default:state=RW;" +
		"ns=test:indexname=by_loc:set=people:bin=loc:type=geo2dsphere:indextype=default:state=RW"
	tests := []struct {
		set, bin string
		kind     store.IndexKind
		want     bool
	}{
		{set: "people", bin: "year", kind: store.IndexNumeric, want: true},
		{set: "people", bin: "name", want: false},
		{set: "other", bin: "year", want: false},
		{set: "", bin: "tag", kind: store.IndexString, want: true},
		{set: "people", bin: "loc", want: false},
	}
	for _, tt := range tests {
		kind, ok := findIndex(resp, tt.set, tt.bin)
		assert.Equal(t, tt.want, ok, "%s.%s", tt.set, tt.bin)
		if tt.want {
			assert.Equal(t, tt.kind, kind, "%s.%s", tt.set, tt.bin)
		}
	}
	_, ok := findIndex("", "people", "year")
	assert.False(t, ok)
}

func TestPolicies(t *testing.T) {
	t.Parallel()

	p := &store.Policy{
		TotalTimeout:     time.Second,
		MaxRetries:       5,
		ScanSendKey:      true,
		RecordsPerSecond: 100,
		TTL:              time.Hour,
	}
	assert.Equal(t, time.Second, basePolicy(p).TotalTimeout)
	assert.False(t, basePolicy(p).SendKey)
	assert.True(t, scanPolicy(p).SendKey)
	assert.Equal(t, 100, scanPolicy(p).RecordsPerSecond)
	assert.Equal(t, 5, queryPolicy(p).MaxRetries)
	assert.Equal(t, uint32(3600), writePolicy(p).Expiration)
}

func TestKeys(t *testing.T) {
	t.Parallel()

	k, err := toKey(&store.Key{Namespace: "test", Set: "people", UserKey: types.Int(7)})
	require.NoError(t, err)
	back := fromKey(k)
	assert.Equal(t, "test", back.Namespace)
	assert.Equal(t, "people", back.Set)
	assert.Equal(t, types.Int(7), back.UserKey)
	assert.Len(t, back.Digest, 20)

	byDigest, err := toKey(&store.Key{Namespace: "test", Set: "people", Digest: back.Digest})
	require.NoError(t, err)
	assert.Equal(t, back.Digest, byDigest.Digest())
}

func TestStatement(t *testing.T) {
	t.Parallel()

	s, err := toStatement(&store.Statement{Namespace: "test", Set: "people", Bins: []string{"name"},
		Filter: &store.Filter{Bin: "year", Kind: store.FilterRange, Begin: 1940, End: 1950}})
	require.NoError(t, err)
	assert.Equal(t, "test", s.Namespace)
	assert.Equal(t, "people", s.SetName)
	assert.Equal(t, []string{"name"}, s.BinNames)
	require.NotNil(t, s.Filter)
}
