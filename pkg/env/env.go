// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package env tells the process which deployment it runs in. BINQL_ENV
// wins over ENV; unset or unrecognized values mean a developer machine.
package env

import (
	"os"
	"strings"
)

type Environment string

const (
	Local      Environment = "local"
	Production Environment = "production"
	Testing    Environment = "testing"
)

var current = Parse(lookup())

func lookup() string {
	if v := os.Getenv("BINQL_ENV"); v != "" {
		return v
	}
	return os.Getenv("ENV")
}

// Parse maps a raw value, case-insensitively, to an Environment. "prod"
// and "test" are accepted as short forms.
func Parse(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return Production
	case "testing", "test":
		return Testing
	}
	return Local
}

func Current() Environment { return current }

func IsLocal() bool      { return current == Local }
func IsProduction() bool { return current == Production }
