package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
	"omnipkg/pkg/classify"
)

var (
	historyLimit int
	pruneAge     time.Duration
)

var errNoHistory = errors.New("operation history is unavailable")

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show operation history",
	Long: `Display the install, update and uninstall operations omnipkg ran,
newest first, with their classified outcome.

Examples:
  omnipkg history              # Show recent history
  omnipkg history -l 50        # Show last 50 operations
  omnipkg history show <id>    # Show one operation with its output
  omnipkg history prune --older-than 720h`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one operation and its retained output",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return errNoHistory
		}
		if err := confirm("Delete the whole operation history?"); err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		ui.SuccessMsg("History cleared")
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete entries older than a given age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return errNoHistory
		}
		n, err := store.Prune(pruneAge)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		ui.SuccessMsg("Removed %d entries", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "number of entries to show")
	historyPruneCmd.Flags().DurationVar(&pruneAge, "older-than", 90*24*time.Hour, "age of the entries to delete")
	historyCmd.AddCommand(historyShowCmd, historyClearCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if store == nil {
		return errNoHistory
	}
	entries, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(entries) == 0 {
		ui.MutedMsg("No history entries found")
		return nil
	}

	ui.HeaderMsg("Operation History")
	for i := range entries {
		e := &entries[i]
		status := ui.Success.Sprint(e.Status())
		if !e.Success {
			status = ui.Error.Sprint(e.Status())
		}
		detail := e.Outcome
		if e.Reason != "" {
			detail = e.Reason
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s %s %s [%s] (%s: %s)\n",
			i+1,
			ui.Muted.Sprint(e.FormatTime()),
			ui.Bold(e.Kind),
			e.Package,
			ui.Cyan(e.Manager),
			status,
			detail,
		)
		if cfg.Output.Verbose {
			ui.MutedMsg("    id %s", e.ID)
		}
	}

	total, _ := store.Count() //nolint:errcheck
	ui.MutedMsg("\nShowing %d of %d total entries", len(entries), total)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	if store == nil {
		return errNoHistory
	}
	e, err := store.Get(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, e.Summary())
	t := ui.NewTable(w)
	t.AddRow("Command", e.Command)
	var outcome classify.Outcome
	if outcome.UnmarshalText([]byte(e.Outcome)) == nil {
		t.AddRow("Outcome", ui.OutcomeColor(outcome).Sprint(e.Outcome))
	} else {
		t.AddRow("Outcome", e.Outcome)
	}
	if e.Detail != "" {
		t.AddRow("Detail", e.Detail)
	}
	t.AddRow("Exit code", fmt.Sprint(e.ExitCode))
	t.AddRow("Duration", e.Duration.Round(time.Millisecond).String())
	t.Render()

	lines, err := e.Lines()
	if err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}
	if len(lines) > 0 {
		ui.HeaderMsg("Output")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
