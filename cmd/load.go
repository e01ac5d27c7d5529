// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/logger"
	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load JSON lines into a set",
	Long: `Load newline-delimited JSON objects into a set. Each object becomes one
record keyed by its key field, and every field, the key included,
becomes a bin. Secondary indexes can be created before loading.`,
	Example: `  binql load --set people --file people.jsonl --index year --index name:string`,
	RunE:    runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	f := loadCmd.Flags()
	f.String("file", "-", "JSON lines file; '-' reads stdin")
	f.String("set", "", "Set to load into")
	f.String("key", "id", "Field holding the record key")
	f.StringSlice("index", nil, "Create an index on bin[:numeric|string] (repeatable)")
	f.Duration("ttl", 0, "Record time to live (0 never expires)")
	f.Int("concurrency", 8, "Concurrent writes")
	loadCmd.MarkFlagRequired("set")
	viper.BindPFlags(f)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := NewFlagLoader(cmd)
	opts := loadConnectOpts(cmd)
	client, err := openClient(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	set := f.String("set")
	for _, spec := range f.StringSlice("index") {
		bin, kind, err := parseIndexSpec(spec)
		if err != nil {
			return err
		}
		if err := client.CreateIndex(ctx, opts.Namespace, set, bin, kind); err != nil {
			return fmt.Errorf("create index on %s: %w", bin, err)
		}
		logger.Ctx(ctx).Info().Str("set", set).Str("bin", bin).Msg("index created")
	}

	var in io.Reader = cmd.InOrStdin()
	if name := f.String("file"); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	policy := opts.Policy
	policy.SendKey = true
	policy.TTL = f.Duration("ttl")

	l := &loader{
		client:      client,
		policy:      &policy,
		namespace:   opts.Namespace,
		set:         set,
		keyField:    f.String("key"),
		concurrency: f.Int("concurrency"),
	}
	start := time.Now()
	n, err := l.load(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "loaded %s records into %s.%s in %s\n",
		humanize.Comma(n), opts.Namespace, set, time.Since(start).Round(time.Millisecond))
	return nil
}

func parseIndexSpec(spec string) (string, store.IndexKind, error) {
	bin, kind, _ := strings.Cut(spec, ":")
	if bin == "" {
		return "", 0, fmt.Errorf("index %q: missing bin", spec)
	}
	switch strings.ToLower(kind) {
	case "", "numeric":
		return bin, store.IndexNumeric, nil
	case "string":
		return bin, store.IndexString, nil
	}
	return "", 0, fmt.Errorf("index %q: unknown kind %q", spec, kind)
}

// loader writes decoded JSON lines with bounded concurrency.
type loader struct {
	client      store.Client
	policy      *store.Policy
	namespace   string
	set         string
	keyField    string
	concurrency int
}

// load reads in to the end and returns how many records were written. The
// first failed line stops the load.
func (l *loader) load(ctx context.Context, in io.Reader) (int64, error) {
	g, ctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}

	var written atomic.Int64
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		key, bins, err := l.decode(text)
		if err != nil {
			g.Wait()
			return written.Load(), fmt.Errorf("line %d: %w", line, err)
		}
		if ctx.Err() != nil {
			break
		}
		lineNo := line
		g.Go(func() error {
			if err := l.client.Put(ctx, l.policy, key, bins); err != nil {
				return fmt.Errorf("line %d: put %s: %w", lineNo, key, err)
			}
			written.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return written.Load(), err
	}
	return written.Load(), scanner.Err()
}

func (l *loader) decode(text string) (*store.Key, map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, nil, err
	}
	raw, ok := obj[l.keyField]
	if !ok || raw == nil {
		return nil, nil, fmt.Errorf("missing key field %q", l.keyField)
	}

	var userKey types.Value
	switch k := normalize(raw).(type) {
	case int64:
		userKey = types.Int(k)
	case string:
		userKey = types.String(k)
	default:
		return nil, nil, errors.New("key must be an integer or a string")
	}
	for name, v := range obj {
		obj[name] = normalize(v)
	}
	return &store.Key{Namespace: l.namespace, Set: l.set, UserKey: userKey}, obj, nil
}

// normalize turns json.Number into int64 when integral and float64
// otherwise, recursing into lists and maps.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}
