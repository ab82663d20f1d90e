package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/activity"
	"github.com/pario-ai/costdesk/pkg/config"
	"github.com/pario-ai/costdesk/pkg/models"
)

func newActivityCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Query and manage the chat/upload activity log",
	}
	cmd.AddCommand(
		newActivitySearchCmd(opts),
		newActivityStatsCmd(opts),
		newActivityCleanupCmd(opts),
	)
	return cmd
}

func newActivitySearchCmd(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		outcome string
		since   string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openActivityLog(opts.configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			q := models.ActivityQueryOpts{
				Kind:    models.ActivityKind(kind),
				Outcome: outcome,
				Limit:   limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				q.Since = t
			}

			entries, err := l.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (chat, upload, download)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, quota_exceeded, ...)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newActivityStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show activity counts by kind, outcome and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openActivityLog(opts.configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printActivityStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newActivityCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openActivityLog(opts.configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d activity entries.\n", deleted)
			return nil
		},
	}
}

// openActivityLog opens the activity database even when recording is
// disabled, so old entries stay searchable.
func openActivityLog(configPath string) (*activity.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, err := activity.New(cfg.Activity)
	if err != nil {
		return nil, nil, fmt.Errorf("open activity db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func printActivity(w io.Writer, entries []models.ActivityEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No activity found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tOUTCOME\tROWS\tLATENCY\tSUBJECT\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind, e.Outcome, e.Rows, e.LatencyMs, e.Subject, e.Detail)
	}
	tw.Flush()
}

func printActivityStats(w io.Writer, stats []models.ActivityStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No activity stats found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tKIND\tOUTCOME\tCOUNT")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Day, s.Kind, s.Outcome, s.Count)
	}
	tw.Flush()
}
