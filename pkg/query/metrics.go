// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binql",
			Subsystem: "query",
			Name:      "statements_total",
			Help:      "Executed statements by access strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	statementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "binql",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Time from execution until the result cursor is closed",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"strategy"},
	)

	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binql",
			Subsystem: "query",
			Name:      "rows_total",
			Help:      "Rows returned to callers",
		},
		[]string{"strategy"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binql",
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Statements rejected at planning time by error code",
		},
		[]string{"code"},
	)
)

func init() {
	debug.Registry().MustRegister(
		statementsTotal,
		statementDuration,
		rowsTotal,
		errorsTotal,
	)
}

// recordStatement records a finished statement.
func recordStatement(strategy Strategy, duration time.Duration, rows int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	statementsTotal.WithLabelValues(strategy.String(), status).Inc()
	statementDuration.WithLabelValues(strategy.String()).Observe(duration.Seconds())
	rowsTotal.WithLabelValues(strategy.String()).Add(float64(rows))
}

// recordError counts a planning error.
func recordError(err error) {
	if code := ErrorCode(err); code != "" {
		errorsTotal.WithLabelValues(code).Inc()
	}
}
