// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package udf

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/store"

	"golang.org/x/sync/singleflight"
)

// Registrar makes sure every catalog script exists on a store. Concurrent
// callers share one registration round; after a successful round Ensure
// returns immediately.
type Registrar struct {
	client store.Client
	group  singleflight.Group
	done   atomic.Bool
}

func NewRegistrar(client store.Client) *Registrar {
	return &Registrar{client: client}
}

func (r *Registrar) Ensure(ctx context.Context) error {
	if r.done.Load() {
		return nil
	}
	_, err, _ := r.group.Do("register", func() (any, error) {
		if r.done.Load() {
			return nil, nil
		}
		if err := r.register(ctx); err != nil {
			return nil, err
		}
		r.done.Store(true)
		return nil, nil
	})
	return err
}

func (r *Registrar) register(ctx context.Context) error {
	existing, err := r.client.ListUDF(ctx)
	if err != nil {
		return fmt.Errorf("list udf: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	for _, s := range Catalog() {
		if present[s.FileName()] {
			recordRegistration(s.Package, "present")
			continue
		}
		if err := r.client.RegisterUDF(ctx, s.FileName(), s.Body); err != nil {
			recordRegistration(s.Package, "error")
			return fmt.Errorf("register %s: %w", s.FileName(), err)
		}
		recordRegistration(s.Package, "registered")
		logger.Ctx(ctx).Info().Str("script", s.FileName()).Msg("registered aggregation udf")
	}
	return nil
}
