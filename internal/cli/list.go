package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/manager"
)

var (
	listLimit   int
	listPattern string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Long: `List the packages installed through every enabled manager.

Listings may be served from the cache; see "omnipkg cache".

Examples:
  omnipkg list                      # Every manager
  omnipkg list -s flatpak           # Installed Flatpaks
  omnipkg list -p python            # Names or ids containing 'python'`,
	RunE: runList,
}

var updatesCmd = &cobra.Command{
	Use:     "updates",
	Aliases: []string{"outdated"},
	Short:   "List packages with newer versions available",
	Long: `List installed packages for which a manager reports a newer version.

Examples:
  omnipkg updates                   # Every manager
  omnipkg updates -s pip,npm        # Language packages only`,
	RunE: runUpdates,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, updatesCmd} {
		c.Flags().IntVarP(&listLimit, "limit", "l", 0, "limit number of results")
		c.Flags().StringVarP(&listPattern, "pattern", "p", "", "filter by name or id")
		rootCmd.AddCommand(c)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ch, err := eng.ListInstalled(cmd.Context(), sources()...)
	if err != nil {
		return err
	}
	set := gather(ch, "Listing installed packages")

	var packages []aggregate.Event
	for _, ev := range set.Events() {
		if matchesPattern(ev) {
			packages = append(packages, ev)
		}
	}
	total := len(packages)
	if listLimit > 0 && len(packages) > listLimit {
		packages = packages[:listLimit]
	}

	pkgs := make([]manager.Package, len(packages))
	for i, ev := range packages {
		pkgs[i] = ev.Package
	}
	ui.PrintPackages(cmd.OutOrStdout(), pkgs)
	ui.MutedMsg("\nTotal: %d packages", total)
	return nil
}

func runUpdates(cmd *cobra.Command, args []string) error {
	ch, err := eng.ListUpgradable(cmd.Context(), sources()...)
	if err != nil {
		return err
	}
	set := gather(ch, "Checking for updates")

	var upgradable []manager.UpgradablePackage
	for _, ev := range set.Events() {
		if matchesPattern(ev) {
			upgradable = append(upgradable, ev.Upgradable())
		}
	}
	if len(upgradable) == 0 {
		ui.SuccessMsg("Everything is up to date")
		return nil
	}
	total := len(upgradable)
	if listLimit > 0 && len(upgradable) > listLimit {
		upgradable = upgradable[:listLimit]
	}

	ui.PrintUpgradable(cmd.OutOrStdout(), upgradable)
	ui.MutedMsg("\n%d updates available", total)
	return nil
}

func matchesPattern(ev aggregate.Event) bool {
	if listPattern == "" {
		return true
	}
	p := strings.ToLower(listPattern)
	return strings.Contains(strings.ToLower(ev.Package.Name), p) || strings.Contains(strings.ToLower(ev.Package.ID), p)
}
