package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/setevik/autoheal/internal/config"
	"github.com/setevik/autoheal/internal/reporter"
	"github.com/setevik/autoheal/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past remediations",
	Long: `List remediations recorded by the daemon, newest first.

Examples:
  autoheal history                        # Last 24h
  autoheal history --last 7d --failed     # Failures in the last week
  autoheal history --kind port-conflict   # One fault kind
  autoheal history --summary --last 7d    # Per-kind digest
  autoheal history --summary --send       # Send the digest via ntfy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetString("last")
		kind, _ := cmd.Flags().GetString("kind")
		failed, _ := cmd.Flags().GetBool("failed")
		limit, _ := cmd.Flags().GetInt("limit")
		summary, _ := cmd.Flags().GetBool("summary")
		send, _ := cmd.Flags().GetBool("send")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging("error", false)

		window, err := config.ParseDuration(last)
		if err != nil {
			return fmt.Errorf("invalid --last value %q: %w", last, err)
		}
		until := time.Now()
		since := until.Add(-window)

		db, err := store.Open(cfg.DBPath(), cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if summary || send {
			stats, err := db.KindStats(since)
			if err != nil {
				return err
			}
			digest := reporter.BuildDigest(cfg.Instance.ID, stats, since, until)
			if !send {
				fmt.Print(reporter.FormatDigest(digest))
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := reporter.NewNtfy(cfg, nil).SendDigest(ctx, digest); err != nil {
				return fmt.Errorf("sending digest: %w", err)
			}
			fmt.Println("Digest sent successfully.")
			return nil
		}

		filter := store.QueryFilter{
			Since: since,
			Kind:  kind,
			Limit: limit,
		}
		if failed {
			filter.Status = "failed"
		}

		rows, err := db.Query(filter)
		if err != nil {
			return fmt.Errorf("query error: %w", err)
		}
		if len(rows) == 0 {
			fmt.Println("No remediations found.")
			return nil
		}
		printRemediations(rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("last", "24h", "time window (e.g. 24h, 7d, 30d)")
	historyCmd.Flags().String("kind", "", "filter by fault kind")
	historyCmd.Flags().Bool("failed", false, "only show failed remediations")
	historyCmd.Flags().IntP("limit", "n", 50, "max remediations to show")
	historyCmd.Flags().Bool("summary", false, "show per-kind totals instead of individual rows")
	historyCmd.Flags().Bool("send", false, "send the summary via ntfy")
	rootCmd.AddCommand(historyCmd)
}

func printRemediations(rows []*store.Remediation) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, r := range rows {
		ts := r.FinishedAt.Local().Format("2006-01-02 15:04:05")
		mark := green("✓")
		if !r.Result.Success {
			mark = red("✗")
		}
		fmt.Printf("%s  %s %-20s %s\n", ts, mark, r.Kind, gray(r.Duration().Round(time.Millisecond)))
		fmt.Printf("             %s\n", firstLine(r.Signal.Text))
		if r.Signal.Source != "" {
			fmt.Printf("             Source: %s\n", r.Signal.Source)
		}
		if r.Result.Message != "" {
			fmt.Printf("             %s\n", firstLine(r.Result.Message))
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d remediation(s)\n", len(rows))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
