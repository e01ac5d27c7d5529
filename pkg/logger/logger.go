// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process logger. Statement-scoped loggers ride
// on the context; code without one falls back to the global logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/LeeDigitalWorks/binql/pkg/env"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggerKey struct{}

var global zerolog.Logger

func init() {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		l, err := ParseLevel(raw)
		if err != nil {
			log.Warn().Err(err).Msg("invalid LOG_LEVEL, defaulting to info")
		} else {
			level = l
		}
	}

	// Result tables go to stdout; logs always go to stderr.
	var out io.Writer = os.Stderr
	if env.IsLocal() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	global = New(out, level)
	log.Logger = global
}

// New builds a logger in the process format: timestamps, caller and
// stack traces for errors carrying one, plus the host and environment.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("hostname", hostname).
		Str("env", string(env.Current())).
		Stack().
		Caller().
		Logger()
}

// ParseLevel accepts zerolog level names and rejects the empty level.
func ParseLevel(raw string) (zerolog.Level, error) {
	l, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, err
	}
	if l == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown level %q", raw)
	}
	return l, nil
}

// SetLevel changes the level of the global logger.
func SetLevel(level zerolog.Level) {
	global = global.Level(level)
	log.Logger = global
}

// Ctx returns the logger attached to ctx, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok && l != nil {
			return l
		}
	}
	return &global
}

func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithFields derives a logger from the one in ctx and stores it back.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	l := Ctx(ctx).With().Fields(fields).Logger()
	return WithLogger(ctx, &l)
}

func Error() *zerolog.Event { return global.Error() }
func Warn() *zerolog.Event  { return global.Warn() }
func Info() *zerolog.Event  { return global.Info() }
func Debug() *zerolog.Event { return global.Debug() }
