// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the binql command line: one-shot queries, an
// interactive shell and a bulk loader.
package cmd

import (
	"os"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/session"
	"github.com/LeeDigitalWorks/binql/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "binql",
	Short: "BinQL - SQL over a clustered key-value store",
	Long: `BinQL runs SQL SELECT statements against an Aerospike cluster or an
embedded local store. Statements are planned onto key fetches, batch
fetches, secondary-index queries, scans and server-side aggregation.`,
	SilenceUsage:     true,
	PersistentPreRun: loadConfiguration,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&utils.ConfigurationFileDirectory, "config_dir", "", "Directory for configuration files")
	f.String("log_level", "", "Log level (trace, debug, info, warn, error); overrides LOG_LEVEL")

	// Connection
	f.String("backend", backendLocal, "Store backend (aerospike, local)")
	f.StringSlice("hosts", []string{"127.0.0.1:3000"}, "Aerospike seed hosts (host or host:port)")
	f.String("user", "", "Aerospike user")
	f.String("password", "", "Aerospike password (or set PASSWORD)")
	f.String("data_dir", "", "Local store directory; empty keeps data in memory")
	f.String("namespace", "test", "Default namespace for unqualified tables")

	// Policy
	f.Duration("total_timeout", time.Second, "Total timeout of a single-record call")
	f.Duration("socket_timeout", 30*time.Second, "Socket idle timeout")
	f.Int("max_retries", 2, "Retries of a failed store call")
	f.Bool("send_key", false, "Store and expose the primary key as PK")
	f.Bool("send_key_digest", false, "Expose the key digest as PK_DIGEST")
	f.Bool("send_generation", false, "Expose the record generation as GENERATION")
	f.Bool("send_expiration", false, "Expose the remaining TTL as EXPIRATION")
	f.Int("records_per_second", 0, "Throttle scans and queries (0 is unlimited)")

	// Statements
	f.Int("discovery_limit", cursor.DefaultDiscoveryLimit, "Records sampled to type result columns")
	f.Int("plan_cache_size", session.DefaultPlanCacheSize, "Cached statement plans (negative disables)")
	f.String("output", formatTable, "Output format (table, csv, markdown, html, json)")

	viper.BindPFlags(f)
}

func loadConfiguration(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("binql", false)
	if raw := NewFlagLoader(cmd).String("log_level"); raw != "" {
		level, err := logger.ParseLevel(raw)
		if err != nil {
			logger.Warn().Err(err).Str("log_level", raw).Msg("ignoring invalid log level")
			return
		}
		logger.SetLevel(level)
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
