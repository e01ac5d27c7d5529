// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/binql/cmd"
	"github.com/LeeDigitalWorks/binql/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	rate := 1.0
	if env.IsProduction() {
		rate = 0.1
	}
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       rate,
		EnableTracing:    true,
		TracesSampleRate: rate,
		Environment:      string(env.Current()),
		Release:          "binql@" + cmd.Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
