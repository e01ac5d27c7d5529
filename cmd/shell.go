// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/debug"
	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/query"
	"github.com/LeeDigitalWorks/binql/pkg/session"
	"github.com/LeeDigitalWorks/binql/pkg/utils"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	shellPrompt = "binql> "
	contPrompt  = "    -> "
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive SQL shell",
	Long: `Start an interactive SQL shell. Statements end with ';' and may span
lines. Type \help for the shell commands.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().String("history_file", "~/.binql_history", "Shell history file; empty disables history")
	shellCmd.Flags().Int("debug_port", 0, "Serve metrics and pprof on this port (0 disables)")
	viper.BindPFlags(shellCmd.Flags())
}

// shell holds the state of one interactive session.
type shell struct {
	sess    *session.Session
	out     io.Writer
	status  io.Writer
	format  string
	timing  bool
	explain bool
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	f := NewFlagLoader(cmd)
	opts := loadConnectOpts(cmd)
	if !validFormat(opts.Output) {
		return fmt.Errorf("unknown output format %q", opts.Output)
	}

	if port := f.Int("debug_port"); port > 0 {
		go func() {
			if err := debug.Serve(ctx, port); err != nil {
				logger.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	debug.SetReady()
	defer debug.SetNotReady()

	history := f.String("history_file")
	if history != "" {
		history = utils.ResolvePath(history)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            shellPrompt,
		HistoryFile:       history,
		InterruptPrompt:   "^C",
		EOFPrompt:         `\q`,
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	sh := &shell{
		sess:   sess,
		out:    rl.Stdout(),
		status: rl.Stderr(),
		format: opts.Output,
		timing: true,
	}
	fmt.Fprintf(sh.status, "Connected to %s, namespace %s. Type \\help for help.\n", opts.Backend, sess.Namespace())

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(shellPrompt)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if buf.Len() == 0 && strings.HasPrefix(line, `\`) {
			if sh.command(line) {
				return nil
			}
			continue
		}
		if line == "" {
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			rl.SetPrompt(contPrompt)
			continue
		}

		sql := strings.TrimRight(buf.String(), "; \t\n")
		buf.Reset()
		rl.SetPrompt(shellPrompt)
		if sql == "" {
			continue
		}
		sh.run(ctx, sql)
	}
}

// run executes one statement and reports its error, if any, without
// ending the shell.
func (sh *shell) run(ctx context.Context, sql string) {
	var err error
	if sh.explain {
		err = explain(ctx, sh.out, sh.sess, sql)
	} else {
		err = execute(ctx, sh.out, sh.status, sh.sess, sql, sh.format, sh.timing)
	}
	if err == nil {
		return
	}
	if code := query.ErrorCode(err); code != "" {
		fmt.Fprintf(sh.status, "ERROR %s: %v\n", code, err)
		return
	}
	fmt.Fprintf(sh.status, "ERROR: %v\n", err)
}

// command handles a backslash command and reports whether the shell
// should exit.
func (sh *shell) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case `\q`, `\quit`:
		return true
	case `\timing`:
		sh.timing = !sh.timing
		fmt.Fprintf(sh.status, "Timing is %s.\n", onOff(sh.timing))
	case `\explain`:
		sh.explain = !sh.explain
		fmt.Fprintf(sh.status, "Explain is %s.\n", onOff(sh.explain))
	case `\format`:
		if len(fields) < 2 {
			fmt.Fprintf(sh.status, "Output format is %s.\n", sh.format)
			break
		}
		if !validFormat(fields[1]) {
			fmt.Fprintf(sh.status, "Unknown format %q; one of %s.\n", fields[1], strings.Join(formats, ", "))
			break
		}
		sh.format = fields[1]
	case `\fields`:
		fmt.Fprintf(sh.status, "Special fields: %s\n", sh.sess.SpecialFields())
	case `\forget`:
		sh.sess.ForgetPlans()
		fmt.Fprintln(sh.status, "Plan cache cleared.")
	case `\help`, `\?`:
		fmt.Fprint(sh.status, shellHelp)
	default:
		fmt.Fprintf(sh.status, "Unknown command %s. Type \\help for help.\n", fields[0])
	}
	return false
}

const shellHelp = `Statements end with ';'.
  \q              quit
  \timing         toggle the row count and elapsed time footer
  \explain        toggle printing plans instead of running statements
  \format [name]  show or set the output format (table, csv, markdown, html, json)
  \fields         list the special fields this session exposes
  \forget         drop cached plans, e.g. after creating an index
  \help           this text
`

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
