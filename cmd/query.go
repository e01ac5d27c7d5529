// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/session"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one SQL statement and print its result",
	Example: `  binql query "SELECT name, year FROM people WHERE year > 1940 ORDER BY year"
  binql query --explain "SELECT count(*) FROM people GROUP BY band"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("explain", false, "Print the plan instead of running the statement")
	queryCmd.Flags().Bool("quiet", false, "Do not print the row count footer")
	viper.BindPFlags(queryCmd.Flags())
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := loadConnectOpts(cmd)
	if !validFormat(opts.Output) {
		return fmt.Errorf("unknown output format %q", opts.Output)
	}
	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	f := NewFlagLoader(cmd)
	sql := strings.Join(args, " ")
	if f.Bool("explain") {
		return explain(ctx, cmd.OutOrStdout(), sess, sql)
	}
	return execute(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), sess, sql, opts.Output, !f.Bool("quiet"))
}

func explain(ctx context.Context, w io.Writer, sess *session.Session, sql string) error {
	plan, err := sess.Explain(ctx, sql)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, plan)
	return err
}

// execute runs sql and renders its rows to out, with the timing footer
// on status.
func execute(ctx context.Context, out, status io.Writer, sess *session.Session, sql, format string, footer bool) error {
	start := time.Now()
	c, err := sess.Query(ctx, sql)
	if err != nil {
		return err
	}
	n, err := renderCursor(out, c, format)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	logger.Ctx(ctx).Debug().Int("rows", n).Dur("elapsed", elapsed).Msg("statement finished")
	if footer {
		fmt.Fprintln(status, summary(n, elapsed))
	}
	return nil
}
