package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info [package]",
	Short: "Show package information",
	Long: `Display what a manager reports about a package: description,
publisher, homepage, license, installer URL and release notes.
Fields the manager does not report are left out.

Examples:
  omnipkg info requests -s pip
  omnipkg info org.gimp.GIMP        # Find the manager offering it`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := resolvePackages(args)[0]

	p, err := resolveTarget(ctx, id, false)
	if errors.Is(err, ErrPackageNotFound) {
		// Some managers only search their remotes.
		p, err = resolveTarget(ctx, id, true)
	}
	if err != nil {
		return err
	}

	spin := ui.NewSpinner("Fetching details of " + p.ID + "...")
	spin.Start()
	details, err := eng.GetInfo(ctx, p.ID, p.Manager())
	spin.Stop()
	if err != nil {
		return err
	}
	return ui.PrintDetails(cmd.OutOrStdout(), details)
}
