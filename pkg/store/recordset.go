// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
)

// Emit hands one result to the consumer. It returns false once the
// consumer has gone away and the producer should stop.
type Emit func(Result) bool

type producedRecordset struct {
	results chan Result
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Produce runs fn on its own goroutine and exposes what it emits as a
// Recordset. Close cancels fn's context and waits for it to return.
func Produce(ctx context.Context, buffer int, fn func(ctx context.Context, emit Emit) error) Recordset {
	ctx, cancel := context.WithCancel(ctx)
	rs := &producedRecordset{
		results: make(chan Result, buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	emit := func(r Result) bool {
		select {
		case rs.results <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(rs.done)
		defer close(rs.results)
		if err := fn(ctx, emit); err != nil && ctx.Err() == nil {
			emit(Result{Err: err})
		}
	}()
	return rs
}

func (r *producedRecordset) Results() <-chan Result {
	return r.results
}

func (r *producedRecordset) Close() error {
	r.once.Do(func() {
		r.cancel()
		// Unblock a producer stuck on a full channel.
		for range r.results {
		}
		<-r.done
	})
	return nil
}

// Slice returns a Recordset over recs, mostly useful in tests.
func Slice(ctx context.Context, recs []*Record) Recordset {
	return Produce(ctx, len(recs), func(ctx context.Context, emit Emit) error {
		for _, rec := range recs {
			if !emit(Result{Record: rec}) {
				return nil
			}
		}
		return nil
	})
}

// Concat streams sets one after the other. Every set is closed once it is
// exhausted or the result is closed.
func Concat(ctx context.Context, sets ...Recordset) Recordset {
	if len(sets) == 1 {
		return sets[0]
	}
	return Produce(ctx, 0, func(ctx context.Context, emit Emit) error {
		defer func() {
			for _, rs := range sets {
				rs.Close()
			}
		}()
		for _, rs := range sets {
			for res := range rs.Results() {
				if !emit(res) {
					return nil
				}
				if res.Err != nil {
					return nil
				}
			}
		}
		return nil
	})
}
