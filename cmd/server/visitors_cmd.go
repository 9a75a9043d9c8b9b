package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/config"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pbstore"

	"github.com/lmittmann/tint"
	"github.com/pocketbase/pocketbase/core"
	"github.com/spf13/cobra"
)

// newVisitorsCommand builds the "visitors" command tree for app.
func newVisitorsCommand(app core.App, cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visitors",
		Short: "Inspect tracked visitors",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newConsoleLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel))
		},
	}

	cmd.AddCommand(
		newVisitorsStatsCommand(app, cfg),
		newVisitorsRecentCommand(app, cfg),
		newVisitorsDailyCommand(app),
	)
	return cmd
}

func newVisitorsStatsCommand(app core.App, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the visitor overview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := server.OpenStats(cmd.Context(), app, cfg)
			if err != nil {
				return err
			}
			defer tr.Close()

			overview := tr.Stats().Overview(cmd.Context())
			printOverview(cmd.OutOrStdout(), overview)
			if len(overview.Degraded) > 0 {
				slog.Warn("Some sections could not be read", "sections", overview.Degraded)
			}
			return nil
		},
	}
}

func newVisitorsRecentCommand(app core.App, cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent visitors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := server.OpenStats(cmd.Context(), app, cfg)
			if err != nil {
				return err
			}
			defer tr.Close()

			items, err := tr.Stats().Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read recent visitors: %w", err)
			}
			printRecent(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", cfg.Visitors.RecentLimit, "number of visitors to show (max 100)")
	return cmd
}

func newVisitorsDailyCommand(app core.App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Print stored daily unique visitor snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := pbstore.Snapshots(app, days)
			if err != nil {
				return fmt.Errorf("read daily snapshots: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tUNIQUE VISITORS")
			for _, s := range snapshots {
				fmt.Fprintf(w, "%s\t%d\n", s.Day, s.UniqueVisitors)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of days to show (0 for all)")
	return cmd
}

func printOverview(out io.Writer, o visitors.Overview) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total visitors\t%d\n", o.TotalVisitors)
	fmt.Fprintf(w, "Today\t%d\n", o.TodayVisitors)
	fmt.Fprintf(w, "Last 7 days\t%d\n", o.Last7DaysVisitors)
	fmt.Fprintf(w, "Daily average\t%d\n", o.AverageDaily)
	fmt.Fprintf(w, "Timezone\t%s\n", o.Timezone)
	if len(o.Degraded) > 0 {
		fmt.Fprintf(w, "Unavailable\t%s\n", strings.Join(o.Degraded, ", "))
	}
	fmt.Fprintln(w)
	for _, p := range o.Series {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.Label, p.Count, strings.Repeat("#", p.Count))
	}
	w.Flush()
}

func printRecent(out io.Writer, items []visitors.RecentVisitor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VISITED\tIP\tBROWSER\tDEVICE\tOS\tREFERRER\tPAGE")
	for _, v := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.VisitedAt.Format(time.DateTime), v.IPAddress, v.Browser, v.Device, v.OS, v.ReferrerDisplay, v.PagePath)
	}
	w.Flush()
}

func newConsoleLogger(out io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if out == nil {
		out = os.Stderr
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      lvl,
		TimeFormat: "2006-01-02 15:04:05",
	}))
}
