package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"omnipkg/internal/bundle"
	"omnipkg/internal/ui"
	"omnipkg/pkg/manager"
)

var bundlePin bool

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Export and import lists of installed packages",
	Long: `A bundle is a YAML file listing packages and the manager each comes
from. Export one on a machine and import it on another to install the
same packages.

Examples:
  omnipkg bundle export packages.yaml
  omnipkg bundle export -s pip,npm --pin dev.yaml
  omnipkg bundle import packages.yaml`,
}

var bundleExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the installed packages to a bundle (stdout without file)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBundleExport,
}

var bundleImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Install the packages of a bundle that are missing",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleImport,
}

func init() {
	bundleExportCmd.Flags().BoolVar(&bundlePin, "pin", false, "record installed versions")
	bundleCmd.AddCommand(bundleExportCmd, bundleImportCmd)
	rootCmd.AddCommand(bundleCmd)
}

func runBundleExport(cmd *cobra.Command, args []string) error {
	ch, err := eng.ListInstalled(cmd.Context(), sources()...)
	if err != nil {
		return err
	}
	b := bundle.New(gather(ch, "Listing installed packages").Packages(), bundlePin)

	if len(args) == 0 || args[0] == "-" {
		return b.Write(cmd.OutOrStdout())
	}
	if err := b.Save(args[0]); err != nil {
		return err
	}
	ui.SuccessMsg("Exported %d packages to %s", len(b.Packages), args[0])
	return nil
}

func runBundleImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := bundle.Load(args[0])
	if err != nil {
		return err
	}

	// Entries of managers this system cannot run are reported, not fatal.
	var usable []string
	for _, name := range b.Managers() {
		m, ok := eng.Registry().Get(name)
		switch {
		case !ok:
			ui.WarningMsg("%s: %v, skipping its packages", name, manager.ErrUnknownManager)
		case !m.Descriptor().Enabled:
			ui.WarningMsg("%s is disabled on this system, skipping its packages", name)
		default:
			usable = append(usable, name)
		}
	}
	if len(usable) == 0 {
		return fmt.Errorf("no package manager of the bundle is usable here")
	}

	ch, err := eng.ListInstalled(ctx, usable...)
	if err != nil {
		return err
	}
	missing := b.Missing(gather(ch, "Checking installed packages").Packages())

	var targets []target
	for _, p := range missing {
		for _, name := range usable {
			if p.Manager == name {
				targets = append(targets, target{id: p.ID, manager: p.Manager, opts: p.Options})
			}
		}
	}
	if len(targets) == 0 {
		ui.SuccessMsg("Every package of the bundle is installed")
		return nil
	}

	ui.InfoMsg("Install %d package(s):", len(targets))
	for _, t := range targets {
		ui.MutedMsg("  - %s from %s", t.id, t.manager)
	}
	if err := confirm("Proceed with install?"); err != nil {
		return err
	}
	return submit(ctx, manager.Install, targets)
}
