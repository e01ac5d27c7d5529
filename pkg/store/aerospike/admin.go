// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aerospike

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/store"

	as "github.com/aerospike/aerospike-client-go/v7"
	astypes "github.com/aerospike/aerospike-client-go/v7/types"
)

// Indexed asks a node for the secondary indexes of namespace and looks for
// one on set.bin.
func (c *Client) Indexed(ctx context.Context, namespace, set, bin string) (store.IndexKind, bool, error) {
	nodes := c.client.GetNodes()
	if len(nodes) == 0 {
		return 0, false, fmt.Errorf("no aerospike nodes available")
	}
	cmd := "sindex-list:ns=" + namespace
	info, aerr := nodes[0].RequestInfo(as.NewInfoPolicy(), cmd)
	if aerr != nil {
		return 0, false, fmt.Errorf("list indexes of %s: %w", namespace, aerr)
	}
	kind, ok := findIndex(info[cmd], set, bin)
	return kind, ok, nil
}

// findIndex parses a sindex-list response: entries separated by ';', each
// a ':'-separated list of key=value pairs. Only numeric and string indexes
// are reported; geo and blob indexes cannot serve a filter.
func findIndex(resp, set, bin string) (store.IndexKind, bool) {
	for _, entry := range strings.Split(resp, ";") {
		fields := make(map[string]string)
		for _, kv := range strings.Split(entry, ":") {
			k, v, ok := strings.Cut(kv, "=")
			if ok {
				fields[k] = v
			}
		}
		if fields["bin"] != bin {
			continue
		}
		indexSet := fields["set"]
		if indexSet == "NULL" {
			indexSet = ""
		}
		if indexSet != set {
			continue
		}
		switch strings.ToLower(fields["type"]) {
		case "numeric":
			return store.IndexNumeric, true
		case "string":
			return store.IndexString, true
		}
		return 0, false
	}
	return 0, false
}

func (c *Client) CreateIndex(ctx context.Context, namespace, set, bin string, kind store.IndexKind) error {
	indexType := as.NUMERIC
	if kind == store.IndexString {
		indexType = as.STRING
	}
	name := fmt.Sprintf("%s_%s_%s", namespace, set, bin)
	task, aerr := c.client.CreateIndex(as.NewWritePolicy(0, 0), namespace, set, name, bin, indexType)
	if aerr != nil {
		if aerr.Matches(astypes.INDEX_FOUND) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, aerr)
	}
	select {
	case err := <-task.OnComplete():
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) ListUDF(ctx context.Context) ([]string, error) {
	udfs, aerr := c.client.ListUDF(nil)
	if aerr != nil {
		return nil, fmt.Errorf("list udf: %w", aerr)
	}
	names := make([]string, len(udfs))
	for i, u := range udfs {
		names[i] = u.Filename
	}
	return names, nil
}

func (c *Client) RegisterUDF(ctx context.Context, name string, body []byte) error {
	task, aerr := c.client.RegisterUDF(nil, body, name, as.LUA)
	if aerr != nil {
		return fmt.Errorf("register %s: %w", name, aerr)
	}
	select {
	case err := <-task.OnComplete():
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
