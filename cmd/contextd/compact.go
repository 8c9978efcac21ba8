package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/compaction"
	"github.com/szaher/contextd/internal/history"
	"github.com/szaher/contextd/internal/telemetry"
)

func newCompactCmd() *cobra.Command {
	var (
		k   keyFlags
		all bool
	)

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compact one conversation, or all of them, now",
		Long: `Runs the compaction cycle immediately: back up the live log, summarize
it into the archive, then empty it. Use --all to sweep every conversation the
way the daily schedule does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			single := cmd.Flags().Changed("tenant")
			if single != cmd.Flags().Changed("conversation") || all == single {
				return fmt.Errorf("specify either --all or both --tenant and --conversation")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			c, err := a.compactor(nil)
			if err != nil {
				return err
			}
			ctx := telemetry.WithRunID(cmd.Context(), "")

			var report *compaction.Report
			if all {
				report = c.Sweep(ctx)
				if report.Err != nil {
					return report.Err
				}
			} else {
				res := c.Compact(ctx, k.key())
				report = &compaction.Report{
					RunID:    telemetry.RunID(ctx),
					Finished: time.Now(),
					Results:  []compaction.Result{res},
				}
			}
			a.recordReport(report)
			printResults(cmd.OutOrStdout(), report.Results)

			if n := len(report.Failed()); n > 0 {
				return fmt.Errorf("%d conversation(s) failed to compact", n)
			}
			return nil
		},
	}

	k.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Compact every conversation")

	return cmd
}

func printResults(out io.Writer, results []compaction.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return
	}
	fmt.Fprintf(out, "%-20s %-20s %-10s %10s %s\n", "TENANT", "CONVERSATION", "STATUS", "BYTES", "DETAIL")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, r := range results {
		detail := "-"
		if r.Err != nil {
			detail = r.Err.Error()
			if r.BackupPath != "" {
				detail += " (backup: " + r.BackupPath + ")"
			}
		}
		fmt.Fprintf(out, "%-20d %-20d %-10s %10d %s\n",
			r.Key.TenantID, r.Key.ConversationID, r.Status, r.LiveBytes, detail)
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		k     keyFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded compaction attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var entries []history.Entry
			if cmd.Flags().Changed("tenant") || cmd.Flags().Changed("conversation") {
				entries, err = a.history.List(k.key(), limit)
			} else {
				entries, err = a.history.ListAll(limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No compaction history.")
				return nil
			}
			fmt.Fprintf(out, "%-20s %-10s %-10s %-10s %10s %s\n", "TIME", "TENANT", "CONV", "STATUS", "BYTES", "ERROR")
			fmt.Fprintln(out, strings.Repeat("-", 80))
			for _, e := range entries {
				errText := e.Error
				if errText == "" {
					errText = "-"
				}
				fmt.Fprintf(out, "%-20s %-10d %-10d %-10s %10d %s\n",
					e.At.Local().Format("2006-01-02 15:04:05"), e.TenantID, e.ConversationID, e.Status, e.LiveBytes, errText)
			}
			return nil
		},
	}

	k.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")

	return cmd
}
