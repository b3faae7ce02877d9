package cli

import (
	"github.com/spf13/cobra"

	"omnipkg/pkg/manager"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall [packages...]",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove one or more packages",
	Long: `Remove installed packages. Without --source the installed listings
of every enabled manager are searched for the id.

Examples:
  omnipkg uninstall requests        # Remove from whichever manager has it
  omnipkg uninstall -y left-pad -s npm`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUninstall,
}

func init() {
	addOperationFlags(uninstallCmd, false)
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	return runOperations(cmd.Context(), manager.Uninstall, args)
}
