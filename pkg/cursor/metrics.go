// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"github.com/LeeDigitalWorks/binql/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	scanRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "binql",
		Subsystem: "cursor",
		Name:      "scan_records_total",
		Help:      "Records handed from scan workers to cursors",
	})

	discoverySamples = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "binql",
		Subsystem: "cursor",
		Name:      "discovery_sample_size",
		Help:      "Records sampled to type result columns",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)

func init() {
	debug.Registry().MustRegister(scanRecords, discoverySamples)
}
