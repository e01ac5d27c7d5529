// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/LeeDigitalWorks/binql/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binql",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and result (hit, miss)",
		},
		[]string{"cache", "result"},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binql",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by cache and reason (capacity, expired)",
		},
		[]string{"cache", "reason"},
	)
)

func init() {
	debug.Registry().MustRegister(lookupsTotal, evictionsTotal)
}

func recordLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	lookupsTotal.WithLabelValues(cache, result).Inc()
}

func recordEviction(cache, reason string) {
	evictionsTotal.WithLabelValues(cache, reason).Inc()
}
