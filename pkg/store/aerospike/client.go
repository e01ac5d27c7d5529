// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package aerospike adapts an Aerospike cluster to store.Client.
package aerospike

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	as "github.com/aerospike/aerospike-client-go/v7"
	astypes "github.com/aerospike/aerospike-client-go/v7/types"
)

const defaultPort = 3000

// Config describes how to reach the cluster.
type Config struct {
	// Hosts are "host" or "host:port" seeds.
	Hosts    []string
	User     string
	Password string
	Timeout  time.Duration
}

type Client struct {
	client *as.Client
}

var _ store.Client = (*Client)(nil)

func parseHosts(seeds []string) ([]*as.Host, error) {
	hosts := make([]*as.Host, 0, len(seeds))
	for _, seed := range seeds {
		seed = strings.TrimSpace(seed)
		if seed == "" {
			continue
		}
		host, port := seed, defaultPort
		if h, p, err := net.SplitHostPort(seed); err == nil {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid port in %q: %w", seed, err)
			}
			host, port = h, n
		}
		hosts = append(hosts, as.NewHost(host, port))
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no aerospike hosts configured")
	}
	return hosts, nil
}

// Dial connects to the cluster.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	hosts, err := parseHosts(cfg.Hosts)
	if err != nil {
		return nil, err
	}
	cp := as.NewClientPolicy()
	cp.User = cfg.User
	cp.Password = cfg.Password
	if cfg.Timeout > 0 {
		cp.Timeout = cfg.Timeout
	}
	c, aerr := as.NewClientWithPolicyAndHost(cp, hosts...)
	if aerr != nil {
		return nil, fmt.Errorf("connect %s: %w", strings.Join(cfg.Hosts, ","), aerr)
	}
	logger.Ctx(ctx).Info().
		Strs("hosts", cfg.Hosts).
		Int("nodes", len(c.GetNodes())).
		Msg("connected to aerospike")
	return &Client{client: c}, nil
}

func basePolicy(p *store.Policy) *as.BasePolicy {
	bp := as.NewPolicy()
	if p == nil {
		return bp
	}
	bp.TotalTimeout = p.TotalTimeout
	bp.SocketTimeout = p.SocketTimeout
	bp.MaxRetries = p.MaxRetries
	bp.SendKey = p.SendKey
	return bp
}

func batchPolicy(p *store.Policy) *as.BatchPolicy {
	bp := as.NewBatchPolicy()
	if p != nil {
		bp.BasePolicy = *basePolicy(p)
		bp.SendKey = p.BatchSendKey || p.SendKey
	}
	return bp
}

func queryPolicy(p *store.Policy) *as.QueryPolicy {
	qp := as.NewQueryPolicy()
	if p != nil {
		qp.BasePolicy = *basePolicy(p)
		// Streams are bounded by the consumer, not a total timeout.
		qp.TotalTimeout = 0
		qp.SendKey = p.QuerySendKey || p.SendKey
		qp.RecordsPerSecond = p.RecordsPerSecond
	}
	return qp
}

func scanPolicy(p *store.Policy) *as.ScanPolicy {
	sp := as.NewScanPolicy()
	if p != nil {
		sp.BasePolicy = *basePolicy(p)
		sp.TotalTimeout = 0
		sp.SendKey = p.ScanSendKey || p.SendKey
		sp.RecordsPerSecond = p.RecordsPerSecond
	}
	return sp
}

func writePolicy(p *store.Policy) *as.WritePolicy {
	wp := as.NewWritePolicy(0, 0)
	if p != nil {
		wp.BasePolicy = *basePolicy(p)
		if p.TTL > 0 {
			wp.Expiration = uint32(p.TTL / time.Second)
		}
	}
	return wp
}

func toKey(k *store.Key) (*as.Key, error) {
	if k == nil {
		return nil, fmt.Errorf("nil key")
	}
	if k.Digest != nil && k.UserKey.IsNull() {
		key, err := as.NewKeyWithDigest(k.Namespace, k.Set, nil, k.Digest)
		if err != nil {
			return nil, err
		}
		return key, nil
	}
	key, err := as.NewKey(k.Namespace, k.Set, k.UserKey.Native())
	if err != nil {
		return nil, err
	}
	return key, nil
}

func fromKey(k *as.Key) *store.Key {
	if k == nil {
		return nil
	}
	out := &store.Key{Namespace: k.Namespace(), Set: k.SetName(), Digest: k.Digest()}
	if v := k.Value(); v != nil {
		out.UserKey = types.FromNative(v.GetObject())
	}
	return out
}

func fromRecord(r *as.Record) *store.Record {
	if r == nil {
		return nil
	}
	return &store.Record{
		Key:        fromKey(r.Key),
		Bins:       r.Bins,
		Generation: r.Generation,
		Expiration: r.Expiration,
	}
}

func keyNotFound(err as.Error) bool {
	return err != nil && err.Matches(astypes.KEY_NOT_FOUND_ERROR)
}

func (c *Client) Get(ctx context.Context, p *store.Policy, key *store.Key, bins ...string) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := toKey(key)
	if err != nil {
		return nil, err
	}
	rec, aerr := c.client.Get(basePolicy(p), k, bins...)
	if keyNotFound(aerr) {
		return nil, nil
	}
	if aerr != nil {
		return nil, fmt.Errorf("get %s: %w", key, aerr)
	}
	return fromRecord(rec), nil
}

func (c *Client) BatchGet(ctx context.Context, p *store.Policy, keys []*store.Key, bins ...string) ([]*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ks := make([]*as.Key, len(keys))
	for i, key := range keys {
		k, err := toKey(key)
		if err != nil {
			return nil, err
		}
		ks[i] = k
	}
	recs, aerr := c.client.BatchGet(batchPolicy(p), ks, bins...)
	if aerr != nil && !keyNotFound(aerr) {
		return nil, fmt.Errorf("batch get %d keys: %w", len(keys), aerr)
	}
	out := make([]*store.Record, len(keys))
	for i := range out {
		if i < len(recs) {
			out[i] = fromRecord(recs[i])
		}
	}
	return out, nil
}

func toStatement(stmt *store.Statement) (*as.Statement, error) {
	s := as.NewStatement(stmt.Namespace, stmt.Set, stmt.Bins...)
	if f := stmt.Filter; f != nil {
		var filter *as.Filter
		switch f.Kind {
		case store.FilterRange:
			filter = as.NewRangeFilter(f.Bin, f.Begin, f.End)
		default:
			filter = as.NewEqualFilter(f.Bin, f.Value.Native())
		}
		if err := s.SetFilter(filter); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// stream pumps an Aerospike recordset into a store.Recordset. Closing the
// returned recordset closes the cluster one.
func stream(ctx context.Context, rs *as.Recordset) store.Recordset {
	return store.Produce(ctx, 0, func(ctx context.Context, emit store.Emit) error {
		defer rs.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case res, ok := <-rs.Results():
				if !ok {
					return nil
				}
				if res.Err != nil {
					return res.Err
				}
				if !emit(store.Result{Record: fromRecord(res.Record)}) {
					return nil
				}
			}
		}
	})
}

func (c *Client) Query(ctx context.Context, p *store.Policy, stmt *store.Statement) (store.Recordset, error) {
	s, err := toStatement(stmt)
	if err != nil {
		return nil, err
	}
	rs, aerr := c.client.Query(queryPolicy(p), s)
	if aerr != nil {
		return nil, fmt.Errorf("query %s.%s: %w", stmt.Namespace, stmt.Set, aerr)
	}
	return stream(ctx, rs), nil
}

func (c *Client) Scan(ctx context.Context, p *store.Policy, namespace, set string, fn store.ScanFunc, bins ...string) error {
	rs, aerr := c.client.ScanAll(scanPolicy(p), namespace, set, bins...)
	if aerr != nil {
		return fmt.Errorf("scan %s.%s: %w", namespace, set, aerr)
	}
	defer rs.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-rs.Results():
			if !ok {
				return nil
			}
			if res.Err != nil {
				return fmt.Errorf("scan %s.%s: %w", namespace, set, res.Err)
			}
			if err := fn(fromRecord(res.Record)); err != nil {
				return err
			}
		}
	}
}

func (c *Client) QueryAggregate(ctx context.Context, p *store.Policy, stmt *store.Statement, agg store.Aggregation) (store.Recordset, error) {
	s, err := toStatement(stmt)
	if err != nil {
		return nil, err
	}
	args := make([]as.Value, len(agg.Args))
	for i, a := range agg.Args {
		args[i] = as.NewValue(a.Native())
	}
	rs, aerr := c.client.QueryAggregate(queryPolicy(p), s, agg.Package, agg.Function, args...)
	if aerr != nil {
		return nil, fmt.Errorf("aggregate %s.%s over %s.%s: %w", agg.Package, agg.Function, stmt.Namespace, stmt.Set, aerr)
	}
	return stream(ctx, rs), nil
}

func (c *Client) Put(ctx context.Context, p *store.Policy, key *store.Key, bins map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := toKey(key)
	if err != nil {
		return err
	}
	if aerr := c.client.Put(writePolicy(p), k, as.BinMap(bins)); aerr != nil {
		return fmt.Errorf("put %s: %w", key, aerr)
	}
	return nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}
