package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable writes rows under header as a light-styled table
func RenderTable(w io.Writer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	if len(rows) > 0 {
		t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(rows))})
	}
	t.Render()
}

// Summary is the end-of-crawl tally
type Summary struct {
	Dispatched int64
	Downloaded int64
	Skipped    int64
	Failed     int64
	Duration   time.Duration
}

// RenderSummary writes the crawl tally as a two-column table
func RenderSummary(w io.Writer, s Summary) {
	RenderTable(w, table.Row{"Metric", "Value"}, []table.Row{
		{"Items dispatched", s.Dispatched},
		{"Files downloaded", s.Downloaded},
		{"Files skipped", s.Skipped},
		{"Failures", s.Failed},
		{"Duration", s.Duration.Round(time.Millisecond)},
	})
}

// Bytes formats a byte count for humans
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
