// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the native operations the query layer needs from a
// clustered key-value store: key lookups, batch lookups, secondary-index
// queries, callback scans and stream UDF aggregation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrIndexNotFound = errors.New("index not found")
	ErrUDFNotFound   = errors.New("udf not found")
	ErrClosed        = errors.New("store closed")
	ErrTimeout       = errors.New("store call timed out")
)

// AggregateBin is the bin under which QueryAggregate returns each item.
const AggregateBin = "SUCCESS"

// Key identifies a record. UserKey is only populated when the key was
// stored with the record (send-key policy) or built by the caller.
type Key struct {
	Namespace string
	Set       string
	UserKey   types.Value
	Digest    []byte
}

func (k *Key) String() string {
	if k == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s:%s:%s", k.Namespace, k.Set, k.UserKey)
}

// Record is a native record as returned by the store.
type Record struct {
	Key        *Key
	Bins       map[string]any
	Generation uint32
	// Expiration is the remaining time to live in seconds; 0 never expires.
	Expiration uint32
}

// Result is one item of a Recordset.
type Result struct {
	Record *Record
	Err    error
}

// Recordset is a stream of records produced by the store. Results is
// closed once the stream is exhausted or Close has been called.
type Recordset interface {
	Results() <-chan Result
	Close() error
}

type FilterKind uint8

const (
	FilterEqual FilterKind = iota
	FilterRange
)

// Filter is the secondary-index predicate of a Statement.
type Filter struct {
	Bin   string
	Kind  FilterKind
	Value types.Value
	Begin int64
	End   int64
}

func (f *Filter) String() string {
	switch f.Kind {
	case FilterRange:
		return fmt.Sprintf("%s BETWEEN %d AND %d", f.Bin, f.Begin, f.End)
	default:
		return fmt.Sprintf("%s = %s", f.Bin, f.Value)
	}
}

// Statement describes a query over one set. A nil Filter reads the whole
// set.
type Statement struct {
	Namespace string
	Set       string
	Bins      []string
	Filter    *Filter
}

// Aggregation names a registered stream UDF and its arguments.
type Aggregation struct {
	Package  string
	Function string
	Args     []types.Value
}

type IndexKind uint8

const (
	IndexNumeric IndexKind = iota
	IndexString
)

// Policy carries per-call settings. The send flags decide which special
// columns a statement exposes.
type Policy struct {
	TotalTimeout  time.Duration
	SocketTimeout time.Duration
	MaxRetries    int

	SendKey        bool
	QuerySendKey   bool
	BatchSendKey   bool
	ScanSendKey    bool
	SendKeyDigest  bool
	SendGeneration bool
	SendExpiration bool

	// RecordsPerSecond throttles scans and queries; 0 is unlimited.
	RecordsPerSecond int

	// TTL is given to records written with this policy; 0 never expires.
	TTL time.Duration
}

func DefaultPolicy() *Policy {
	return &Policy{
		TotalTimeout:  time.Second,
		SocketTimeout: 30 * time.Second,
		MaxRetries:    2,
	}
}

// ScanFunc receives records pushed by a scan. Returning an error stops
// the scan and is returned by Scan.
type ScanFunc func(*Record) error

// Client is the set of native operations the planner can emit.
type Client interface {
	// Get returns nil, nil when the key does not exist.
	Get(ctx context.Context, p *Policy, key *Key, bins ...string) (*Record, error)
	// BatchGet returns one entry per key, nil for missing keys.
	BatchGet(ctx context.Context, p *Policy, keys []*Key, bins ...string) ([]*Record, error)
	Query(ctx context.Context, p *Policy, stmt *Statement) (Recordset, error)
	// Scan blocks until every record of the set was passed to fn, fn
	// returned an error, or ctx was cancelled.
	Scan(ctx context.Context, p *Policy, namespace, set string, fn ScanFunc, bins ...string) error
	QueryAggregate(ctx context.Context, p *Policy, stmt *Statement, agg Aggregation) (Recordset, error)

	// Indexed reports whether a secondary index exists on namespace.set.bin
	// and which kind of values it holds.
	Indexed(ctx context.Context, namespace, set, bin string) (IndexKind, bool, error)
	CreateIndex(ctx context.Context, namespace, set, bin string, kind IndexKind) error

	ListUDF(ctx context.Context) ([]string, error)
	RegisterUDF(ctx context.Context, name string, body []byte) error

	Put(ctx context.Context, p *Policy, key *Key, bins map[string]any) error
	Close() error
}
