// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"context"
	"sync"

	"github.com/LeeDigitalWorks/binql/pkg/store"
)

// source yields native records one at a time; nil, nil means exhausted.
type source interface {
	next() (*store.Record, error)
	close() error
}

// sliceSource serves single-key and batch fetches. Batch results contain
// nil entries for missing keys; those are skipped.
type sliceSource struct {
	recs []*store.Record
	i    int
}

func (s *sliceSource) next() (*store.Record, error) {
	for s.i < len(s.recs) {
		rec := s.recs[s.i]
		s.i++
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *sliceSource) close() error {
	s.recs = nil
	return nil
}

// recordsetSource serves secondary-index queries.
type recordsetSource struct {
	rs   store.Recordset
	done bool
}

func (s *recordsetSource) next() (*store.Record, error) {
	if s.done {
		return nil, nil
	}
	res, ok := <-s.rs.Results()
	if !ok {
		s.done = true
		return nil, nil
	}
	if res.Err != nil {
		s.done = true
		return nil, res.Err
	}
	return res.Record, nil
}

func (s *recordsetSource) close() error {
	s.done = true
	return s.rs.Close()
}

// ScanQueueSize bounds how far a scan worker may run ahead of the reader.
const ScanQueueSize = 10

// scanItem is one slot of the scan queue. The item with end set is the
// sentinel; it is the last thing the worker enqueues and may carry the
// scan's error.
type scanItem struct {
	rec *store.Record
	err error
	end bool
}

// scanSource adapts a push-style scan to pull iteration. The scan runs on
// a worker goroutine that blocks once the queue is full.
type scanSource struct {
	queue    chan scanItem
	stop     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	finished bool
	stopOnce sync.Once
}

// ScanFunc starts a scan that delivers every record to fn.
type ScanFunc func(ctx context.Context, fn store.ScanFunc) error

func newScanSource(ctx context.Context, scan ScanFunc) *scanSource {
	ctx, cancel := context.WithCancel(ctx)
	s := &scanSource{
		queue:  make(chan scanItem, ScanQueueSize),
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		err := scan(ctx, func(rec *store.Record) error {
			select {
			case s.queue <- scanItem{rec: rec}:
				scanRecords.Inc()
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case s.queue <- scanItem{end: true, err: err}:
		case <-s.stop:
		}
	}()
	return s
}

func (s *scanSource) next() (*store.Record, error) {
	if s.finished {
		return nil, nil
	}
	item := <-s.queue
	if !item.end {
		return item.rec, nil
	}
	s.finished = true
	return nil, item.err
}

// close stops the worker and waits for it to exit. Records still queued
// are dropped.
func (s *scanSource) close() error {
	s.finished = true
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})
	<-s.done
	return nil
}
