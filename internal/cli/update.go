package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
	"omnipkg/pkg/manager"
)

var updateAll bool

var updateCmd = &cobra.Command{
	Use:     "update [packages...]",
	Aliases: []string{"upgrade"},
	Short:   "Update installed packages",
	Long: `Update installed packages to their latest versions.

With --all every package reported by "omnipkg updates" is updated.

Examples:
  omnipkg update requests           # Update one package
  omnipkg update --all -s winget    # Update everything winget reports
  omnipkg update --all -y`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVarP(&updateAll, "all", "a", false, "update every outdated package")
	addOperationFlags(updateCmd, false)
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !updateAll {
		return runOperations(ctx, manager.Update, args)
	}

	ch, err := eng.ListUpgradable(ctx, sources()...)
	if err != nil {
		return err
	}
	set := gather(ch, "Checking for updates")
	upgradable := set.Upgradable()
	if len(upgradable) == 0 {
		ui.SuccessMsg("Everything is up to date")
		return nil
	}

	ui.PrintUpgradable(cmd.OutOrStdout(), upgradable)
	if err := confirm(fmt.Sprintf("Update %d package(s)?", len(upgradable))); err != nil {
		return err
	}
	return submit(ctx, manager.Update, withOptions(set.Packages(), opFlags.options()))
}
