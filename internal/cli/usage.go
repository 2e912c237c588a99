package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/codechat/internal/client"
	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/models"
)

var (
	usageSince    string
	usageDetailed bool
	usageServer   bool
	usageSession  string
	usageLimit    int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show usage statistics",
	Long: `Show token usage from the usage ledger and, with --server, the runtime
statistics of a running server.

The ledger is enabled by setting CODECHAT_SURREALDB_URL.

Examples:
  codechat usage
  codechat usage --since 7d --detailed
  codechat usage --server
  codechat usage --session 0b6e...`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageSince, "since", "24h", "time period (e.g., '24h', '7d', '30d')")
	usageCmd.Flags().BoolVar(&usageDetailed, "detailed", false, "show detailed breakdown")
	usageCmd.Flags().BoolVar(&usageServer, "server", false, "also show the running server's statistics")
	usageCmd.Flags().StringVar(&usageSession, "session", "", "list the turns of one session")
	usageCmd.Flags().IntVarP(&usageLimit, "limit", "n", 20, "max turns listed with --session")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if usageServer {
		stats, err := client.FetchStats(ctx, cfg.ServerURL)
		if err != nil {
			return fmt.Errorf("get server stats: %w", err)
		}
		printServerStats(out, stats)
		fmt.Fprintln(out)
	}

	if !cfg.LedgerEnabled() {
		if usageServer {
			return nil
		}
		return errors.New("usage ledger disabled: set CODECHAT_SURREALDB_URL")
	}

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger(ledger)

	if usageSession != "" {
		turns, err := ledger.ListSessionUsage(ctx, usageSession, usageLimit)
		if err != nil {
			return fmt.Errorf("list session usage: %w", err)
		}
		printSessionUsage(out, usageSession, turns)
		return nil
	}

	since, err := parseSince(usageSince, time.Now())
	if err != nil {
		return err
	}
	summary, err := ledger.GetTokenUsageSummary(ctx, since)
	if err != nil {
		return fmt.Errorf("get token usage: %w", err)
	}
	printUsageSummary(out, usageSince, summary, usageDetailed)
	return nil
}

// parseSince converts a period like "24h", "7d" or any time.ParseDuration
// string into the start time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	switch s {
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.Add(-7 * 24 * time.Hour), nil
	case "30d":
		return now.Add(-30 * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration: %s", s)
	}
	return now.Add(-d), nil
}

func printUsageSummary(out io.Writer, since string, summary *models.TokenUsageSummary, detailed bool) {
	fmt.Fprintf(out, "Token Usage (since %s)\n", since)
	fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

	fmt.Fprintf(out, "Turns:        %d\n", summary.Turns)
	fmt.Fprintf(out, "Total tokens: %d (%d prompt, %d completion)\n",
		summary.TotalTokens, summary.PromptTokens, summary.CompletionTokens)

	if !detailed {
		return
	}

	if len(summary.ByModel) > 0 {
		fmt.Fprintf(out, "\nBy Model:\n")
		for _, model := range summary.ModelsByTokens() {
			tokens := summary.ByModel[model]
			pct := 0.0
			if summary.TotalTokens > 0 {
				pct = float64(tokens) / float64(summary.TotalTokens) * 100
			}
			fmt.Fprintf(out, "  %-25s %10d (%5.1f%%)\n", model, tokens, pct)
		}
	}

	if len(summary.ByOutcome) > 0 {
		outcomes := make([]string, 0, len(summary.ByOutcome))
		for o := range summary.ByOutcome {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)

		fmt.Fprintf(out, "\nBy Outcome:\n")
		for _, o := range outcomes {
			fmt.Fprintf(out, "  %-15s %10d (%5.1f%%)\n", o, summary.ByOutcome[o], summary.OutcomePercent[o])
		}
	}
}

func printSessionUsage(out io.Writer, sessionID string, turns []models.TokenUsage) {
	fmt.Fprintf(out, "Session %s (%d turns)\n", sessionID, len(turns))
	for _, t := range turns {
		id, err := models.RecordIDString(t.ID)
		if err != nil {
			id = "?"
		}
		fmt.Fprintf(out, "  %-22s %s  %-20s %6d + %6d tokens  %6dms  %s\n",
			id, t.CreatedAt.Local().Format(time.DateTime), t.Model,
			t.PromptTokens, t.CompletionTokens, t.DurationMs, t.Outcome)
	}
}

// printServerStats displays server runtime statistics.
func printServerStats(out io.Writer, stats *metrics.Snapshot) {
	fmt.Fprintf(out, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", stats.UptimeSeconds)
	fmt.Fprintf(out, "Open panels: %d\n", stats.ActiveSessions)

	if stats.Turn != nil {
		fmt.Fprintf(out, "\nTurns:\n")
		printOpStats(out, stats.Turn)
		printTokenStats(out, stats.Turn)
	}

	if stats.FirstFragment != nil {
		fmt.Fprintf(out, "\nTime to first fragment:\n")
		printOpStats(out, stats.FirstFragment)
	}

	if stats.LedgerWrite != nil {
		fmt.Fprintf(out, "\nLedger writes:\n")
		printOpStats(out, stats.LedgerWrite)
	}

	if len(stats.Errors) > 0 {
		kinds := make([]string, 0, len(stats.Errors))
		for k := range stats.Errors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintf(out, "\nErrors:\n")
		for _, k := range kinds {
			fmt.Fprintf(out, "  %-15s %d\n", k, stats.Errors[k])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(out, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalPromptTokens == nil || op.TotalCompletionTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Prompt tokens:     %d total", *op.TotalPromptTokens)
	if op.AvgPromptTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgPromptTokens)
	}
	if op.MaxPromptTokens != nil {
		fmt.Fprintf(out, ", max %d", *op.MaxPromptTokens)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Completion tokens: %d total", *op.TotalCompletionTokens)
	if op.AvgCompletionTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgCompletionTokens)
	}
	if op.MaxCompletionTokens != nil {
		fmt.Fprintf(out, ", max %d", *op.MaxCompletionTokens)
	}
	fmt.Fprintln(out)
}
