package cli

import (
	"github.com/spf13/cobra"

	"omnipkg/pkg/manager"
)

var installCmd = &cobra.Command{
	Use:   "install [packages...]",
	Short: "Install one or more packages",
	Long: `Install packages by id. Without --source every enabled manager is
searched for the id; when several offer it you pick one (or, with --yes,
the first in manager priority order).

Operations run through one queue, one at a time unless
general.max_parallel_operations allows more.

Examples:
  omnipkg install requests -s pip          # Install from pip
  omnipkg install Git.Git                  # Find the manager offering Git.Git
  omnipkg install ripgrep --version 14.1.0 -s scoop
  omnipkg install -y org.gimp.GIMP`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	addOperationFlags(installCmd, true)
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	return runOperations(cmd.Context(), manager.Install, args)
}
