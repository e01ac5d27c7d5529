// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/session"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/store/aerospike"
	"github.com/LeeDigitalWorks/binql/pkg/store/local"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	backendAerospike = "aerospike"
	backendLocal     = "local"
)

// FlagLoader provides methods for loading configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it takes precedence over config file and env vars.
// Otherwise, viper's standard priority applies: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	return viper.GetString(flagName)
}

// Int returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Int(flagName string) int {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetInt(flagName)
		return val
	}
	return viper.GetInt(flagName)
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	return viper.GetBool(flagName)
}

// Duration returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Duration(flagName string) time.Duration {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetDuration(flagName)
		return val
	}
	return viper.GetDuration(flagName)
}

// StringSlice returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) StringSlice(flagName string) []string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetStringSlice(flagName)
		return val
	}
	return viper.GetStringSlice(flagName)
}

// ConnectOpts is everything needed to reach a store and run statements.
type ConnectOpts struct {
	Backend   string
	Hosts     []string
	User      string
	Password  string
	DataDir   string
	Namespace string

	Policy store.Policy

	DiscoveryLimit int
	PlanCacheSize  int
	Output         string
}

func loadConnectOpts(cmd *cobra.Command) ConnectOpts {
	f := NewFlagLoader(cmd)
	return ConnectOpts{
		Backend:   f.String("backend"),
		Hosts:     f.StringSlice("hosts"),
		User:      f.String("user"),
		Password:  f.String("password"),
		DataDir:   f.String("data_dir"),
		Namespace: f.String("namespace"),
		Policy: store.Policy{
			TotalTimeout:     f.Duration("total_timeout"),
			SocketTimeout:    f.Duration("socket_timeout"),
			MaxRetries:       f.Int("max_retries"),
			SendKey:          f.Bool("send_key"),
			SendKeyDigest:    f.Bool("send_key_digest"),
			SendGeneration:   f.Bool("send_generation"),
			SendExpiration:   f.Bool("send_expiration"),
			RecordsPerSecond: f.Int("records_per_second"),
		},
		DiscoveryLimit: f.Int("discovery_limit"),
		PlanCacheSize:  f.Int("plan_cache_size"),
		Output:         f.String("output"),
	}
}

// openClient connects to the configured backend.
func openClient(ctx context.Context, opts ConnectOpts) (store.Client, error) {
	switch opts.Backend {
	case backendAerospike:
		return aerospike.Dial(ctx, aerospike.Config{
			Hosts:    opts.Hosts,
			User:     opts.User,
			Password: opts.Password,
			Timeout:  opts.Policy.TotalTimeout,
		})
	case backendLocal, "":
		s, err := local.Open(ctx, local.Options{Dir: opts.DataDir})
		if err != nil {
			return nil, err
		}
		if opts.DataDir == "" {
			logger.Ctx(ctx).Warn().Msg("local store is in memory; pass --data_dir to keep data")
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown backend %q", opts.Backend)
}

// openSession connects and opens a session; closing the session closes
// the client.
func openSession(ctx context.Context, opts ConnectOpts) (*session.Session, error) {
	client, err := openClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	policy := opts.Policy
	sess, err := session.New(ctx, client, session.Config{
		Namespace:      opts.Namespace,
		Policy:         &policy,
		DiscoveryLimit: opts.DiscoveryLimit,
		PlanCacheSize:  opts.PlanCacheSize,
		PlanCacheTTL:   session.DefaultPlanCacheTTL,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return sess, nil
}
