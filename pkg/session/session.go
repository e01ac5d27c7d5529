// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the connection handle statements run through: a store
// client, a default namespace and policy, the aggregation scripts
// registered once, and a cache of planned statements.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/cache"
	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/query"
	"github.com/LeeDigitalWorks/binql/pkg/special"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/udf"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

const (
	DefaultPlanCacheSize = 256
	DefaultPlanCacheTTL  = 10 * time.Minute
)

// Config configures a Session.
type Config struct {
	// Namespace qualifies tables named without one.
	Namespace string
	// Policy is used for every store call. Nil means store.DefaultPolicy().
	Policy *store.Policy
	// DiscoveryLimit caps the records sampled to type columns.
	DiscoveryLimit int
	// PlanCacheSize bounds the cached plans; negative disables caching.
	PlanCacheSize int
	PlanCacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Policy:         store.DefaultPolicy(),
		DiscoveryLimit: cursor.DefaultDiscoveryLimit,
		PlanCacheSize:  DefaultPlanCacheSize,
		PlanCacheTTL:   DefaultPlanCacheTTL,
	}
}

// Session runs SQL statements against one store. It is safe for
// concurrent use; every statement gets its own cursor.
type Session struct {
	client  store.Client
	cfg     Config
	planner *query.Planner
	plans   *cache.Cache[*query.Plan]
	closed  atomic.Bool
}

// New registers the aggregation scripts on client and returns a session
// over it. The session owns client and closes it in Close.
func New(ctx context.Context, client store.Client, cfg Config) (*Session, error) {
	if cfg.Policy == nil {
		cfg.Policy = store.DefaultPolicy()
	}
	if err := udf.NewRegistrar(client).Ensure(ctx); err != nil {
		return nil, fmt.Errorf("register aggregation scripts: %w", err)
	}

	s := &Session{
		client: client,
		cfg:    cfg,
		planner: query.NewPlanner(client, query.Options{
			Namespace:      cfg.Namespace,
			Policy:         cfg.Policy,
			DiscoveryLimit: cfg.DiscoveryLimit,
		}),
	}
	if cfg.PlanCacheSize >= 0 {
		size := cfg.PlanCacheSize
		if size == 0 {
			size = DefaultPlanCacheSize
		}
		s.plans = cache.New(
			cache.WithName[*query.Plan]("plans"),
			cache.WithMaxSize[*query.Plan](size),
			cache.WithExpiry[*query.Plan](cfg.PlanCacheTTL),
		)
	}

	logger.Ctx(ctx).Debug().
		Str("namespace", cfg.Namespace).
		Str("special_fields", s.planner.SpecialFields().String()).
		Msg("session opened")
	return s, nil
}

// Namespace is the default namespace of unqualified tables.
func (s *Session) Namespace() string {
	return s.cfg.Namespace
}

// SpecialFields is the set of record metadata columns statements expose.
func (s *Session) SpecialFields() special.Set {
	return s.planner.SpecialFields()
}

// Plan returns the plan of sql, from the cache when it was planned
// before. Planning errors are not cached.
func (s *Session) Plan(ctx context.Context, sql string) (*query.Plan, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.plans == nil {
		return s.planner.Plan(ctx, sql)
	}
	return s.plans.GetOrLoad(ctx, sql, func(ctx context.Context) (*query.Plan, error) {
		return s.planner.Plan(ctx, sql)
	})
}

// Query plans and executes sql. The returned cursor must be closed.
func (s *Session) Query(ctx context.Context, sql string) (cursor.Cursor, error) {
	ctx = logger.WithFields(ctx, map[string]any{
		"stmt_id":   uuid.NewString(),
		"namespace": s.cfg.Namespace,
	})
	plan, err := s.Plan(ctx, sql)
	if err != nil {
		logger.Ctx(ctx).Debug().Err(err).Str("sql", sql).Msg("statement rejected")
		return nil, err
	}

	ctx = logger.WithFields(ctx, map[string]any{"set": plan.Parts[0].Set})
	logger.Ctx(ctx).Debug().
		Str("strategy", plan.Strategy().String()).
		Str("plan", plan.String()).
		Msg("executing statement")
	c, err := plan.Execute(ctx, s.client)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("statement failed")
		return nil, err
	}
	return c, nil
}

// Explain describes how sql would be executed without running it.
func (s *Session) Explain(ctx context.Context, sql string) (string, error) {
	plan, err := s.Plan(ctx, sql)
	if err != nil {
		return "", err
	}
	return plan.String(), nil
}

// ForgetPlans drops every cached plan, for instance after an index was
// created and statements could now use it.
func (s *Session) ForgetPlans() {
	if s.plans != nil {
		s.plans.Clear()
	}
}

// Close releases the plan cache and closes the store client.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.plans != nil {
		s.plans.Stop()
	}
	return s.client.Close()
}
