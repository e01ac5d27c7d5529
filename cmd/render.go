// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/LeeDigitalWorks/binql/pkg/cursor"
	"github.com/LeeDigitalWorks/binql/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	formatTable    = "table"
	formatCSV      = "csv"
	formatMarkdown = "markdown"
	formatHTML     = "html"
	formatJSON     = "json"
)

var formats = []string{formatTable, formatCSV, formatMarkdown, formatHTML, formatJSON}

func validFormat(f string) bool {
	for _, v := range formats {
		if v == f {
			return true
		}
	}
	return false
}

// renderCursor drains c into w in the given format and returns the number
// of rows written. c is closed.
func renderCursor(w io.Writer, c cursor.Cursor, format string) (int, error) {
	defer c.Close()

	cols, err := c.Columns()
	if err != nil {
		return 0, err
	}
	labels := types.Labels(cols)

	if format == formatJSON {
		return renderJSON(w, c, labels)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	// Labels are case-sensitive; keep them as written.
	t.Style().Format.Header = text.FormatDefault
	header := make(table.Row, len(labels))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, col := range cols {
		header[i] = col.Label()
		if numeric(col.Type) {
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
		}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)

	n := 0
	for c.Next() {
		r := c.Row()
		row := make(table.Row, len(labels))
		for i, l := range labels {
			row[i] = r.Get(l).String()
		}
		t.AppendRow(row)
		n++
	}
	if err := c.Err(); err != nil {
		return n, err
	}

	var out string
	switch format {
	case formatCSV:
		out = t.RenderCSV()
	case formatMarkdown:
		out = t.RenderMarkdown()
	case formatHTML:
		out = t.RenderHTML()
	default:
		out = t.Render()
	}
	_, err = fmt.Fprintln(w, out)
	return n, err
}

// renderJSON writes one object per row, keyed by column label.
func renderJSON(w io.Writer, c cursor.Cursor, labels []string) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for c.Next() {
		r := c.Row()
		obj := make(map[string]any, len(labels))
		for _, l := range labels {
			obj[l] = r.Get(l).Native()
		}
		if err := enc.Encode(obj); err != nil {
			return n, err
		}
		n++
	}
	return n, c.Err()
}

func numeric(t types.SQLType) bool {
	switch t {
	case types.SmallInt, types.Integer, types.BigInt, types.Real, types.Double:
		return true
	}
	return false
}

// summary is the footer printed after a result.
func summary(rows int, elapsed time.Duration) string {
	noun := "rows"
	if rows == 1 {
		noun = "row"
	}
	return fmt.Sprintf("(%s %s in %s)", humanize.Comma(int64(rows)), noun, elapsed.Round(time.Microsecond))
}
