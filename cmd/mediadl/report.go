package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"mediadl/pkg/ledger"
	"mediadl/pkg/logger"
	"mediadl/pkg/ui"
)

const dateLayout = "2006-01-02"

var (
	reportAfter  string
	reportBefore string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Query the download ledger",
	Long:  `Read-only reports over the download ledger.`,
}

var reportFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List files that were started but never completed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *ledger.Ledger) error {
			rows, err := l.FailedItems(cmd.Context())
			if err != nil {
				return err
			}
			renderReport(rows)
			return nil
		})
	},
}

var reportRangeCmd = &cobra.Command{
	Use:     "range",
	Short:   "List files completed within a date range",
	Example: `  mediadl report range --after 2024-01-01 --before 2024-02-01`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		after, before, err := parseRange(reportAfter, reportBefore)
		if err != nil {
			return err
		}
		return withLedger(cmd, func(l *ledger.Ledger) error {
			rows, err := l.ItemsBetween(cmd.Context(), after, before)
			if err != nil {
				return err
			}
			renderReport(rows)
			return nil
		})
	},
}

var reportPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List every folder files were downloaded into",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *ledger.Ledger) error {
			paths, err := l.UniqueDownloadPaths(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(paths))
			for _, p := range paths {
				rows = append(rows, table.Row{p})
			}
			ui.RenderTable(os.Stdout, table.Row{"Download path"}, rows)
			return nil
		})
	},
}

var reportKnownBadCmd = &cobra.Command{
	Use:   "known-bad",
	Short: "List files whose content matches a known placeholder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *ledger.Ledger) error {
			renderReport(l.KnownBadItems(cmd.Context()))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportFailedCmd)
	reportCmd.AddCommand(reportRangeCmd)
	reportCmd.AddCommand(reportPathsCmd)
	reportCmd.AddCommand(reportKnownBadCmd)

	reportRangeCmd.Flags().StringVar(&reportAfter, "after", "", "earliest completion date, YYYY-MM-DD in UTC (default: beginning of time)")
	reportRangeCmd.Flags().StringVar(&reportBefore, "before", "", "latest completion date, YYYY-MM-DD in UTC (default: today)")
}

// withLedger opens the configured ledger for the duration of fn
func withLedger(cmd *cobra.Command, fn func(*ledger.Ledger) error) error {
	log := logger.GetLogger()
	l, err := ledger.Open(cmd.Context(), cfg.Database.Path, ledgerOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()
	return fn(l)
}

// parseRange turns optional YYYY-MM-DD bounds into an interval. Dates are UTC
// days, matching the ledger's completed_at stamps. An empty after means the
// zero time and an empty before means now.
func parseRange(after, before string) (time.Time, time.Time, error) {
	var from time.Time
	to := time.Now().UTC()

	if after != "" {
		t, err := time.ParseInLocation(dateLayout, after, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --after date %q: %w", after, err)
		}
		from = t
	}
	if before != "" {
		t, err := time.ParseInLocation(dateLayout, before, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --before date %q: %w", before, err)
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--before %s is earlier than --after %s", before, after)
	}
	return from, to, nil
}

func renderReport(rows []ledger.ReportRow) {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{r.Referer, r.DownloadPath, formatTime(r.CreatedAt), formatTime(r.CompletedAt)})
	}
	ui.RenderTable(os.Stdout, table.Row{"Referer", "Download path", "Created", "Completed"}, out)
}

func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
