package cli

import (
	"github.com/spf13/cobra"

	"omnipkg/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal user interface",
	Long: `Launch the interactive terminal user interface (TUI) for omnipkg.

The TUI provides a visual way to:
  - Browse installed packages and available updates
  - Search every manager at once
  - View package details
  - Install, update and remove packages and follow their progress
  - View operation history

Navigation:
  - Use arrow keys or j/k to navigate
  - Press 1-5 to switch tabs
  - Press / to search, f to filter
  - Press i to install, u to update, r to remove
  - Press x on the Operations tab to cancel
  - Press ? for help
  - Press q to quit`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	var hist tui.History
	if store != nil {
		hist = store
	}
	return tui.Run(cmd.Context(), eng, hist, sources())
}
