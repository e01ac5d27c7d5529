// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package udf

import (
	"github.com/LeeDigitalWorks/binql/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var udfRegistrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "binql",
		Subsystem: "udf",
		Name:      "registrations_total",
		Help:      "Aggregation script registration attempts by outcome",
	},
	[]string{"script", "status"},
)

func init() {
	debug.Registry().MustRegister(udfRegistrations)
}

func recordRegistration(script, status string) {
	udfRegistrations.WithLabelValues(script, status).Inc()
}
