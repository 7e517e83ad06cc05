package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/eternnoir/llmcuts/pkg/cuts"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(aligns))
	for i, a := range aligns {
		align := text.AlignLeft
		if a == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: align})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func cutsTable(list []cuts.Cut) string {
	rows := make([][]string, 0, len(list))
	for i, c := range list {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			c.Start,
			c.End,
			c.Duration,
			truncateString(c.Title, 50),
			c.ContentType,
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", "Duration", "Title", "Type"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func printStats(w io.Writer, s cuts.Stats) {
	fmt.Fprintf(w, "%d cuts, %.0fs total, %.1fs average, %.1f%% of the video\n",
		s.Count, s.TotalSeconds, s.AverageSeconds, s.CoveragePercent)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncateString(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen-3]) + "..."
}
