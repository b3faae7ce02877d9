package cli

import (
	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
	"omnipkg/pkg/manager"
)

var (
	searchLimit   int
	searchInstall bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for packages",
	Long: `Search every enabled package manager at once. Results are merged,
ranked by how well their name or id matches the query, and grouped
by manager priority.

Examples:
  omnipkg search firefox            # Search all managers
  omnipkg search requests -s pip    # Search one manager
  omnipkg search -s universal gimp  # Search flatpak and snap
  omnipkg search --install vlc      # Pick a result and install it`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 50, "limit results (0 = no limit)")
	searchCmd.Flags().BoolVar(&searchInstall, "install", false, "choose a result to install")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := args[0]

	ch, err := eng.Search(ctx, query, sources()...)
	if err != nil {
		return err
	}
	set := gather(ch, "Searching for '"+query+"'")

	results := set.Ranked(query)
	if len(results) == 0 {
		ui.InfoMsg("No packages found matching '%s'", query)
		return nil
	}
	total := len(results)
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	ui.PrintPackages(cmd.OutOrStdout(), results)
	if total > len(results) {
		ui.MutedMsg("\nShowing %d of %d results (use --limit 0 for all)", len(results), total)
	} else {
		ui.MutedMsg("\nFound %d packages", total)
	}

	if !searchInstall {
		return nil
	}
	return offerInstall(cmd, results)
}

// offerInstall lets the user pick one result and installs it.
func offerInstall(cmd *cobra.Command, results []manager.Package) error {
	if !ui.IsTerminal() {
		return nil
	}
	p, err := ui.SelectPackage(results, "Select a package to install")
	if err != nil {
		return err
	}
	if err := confirm("Install " + p.ID + " from " + p.Source.DisplayName + "?"); err != nil {
		return err
	}
	return submit(cmd.Context(), manager.Install, withOptions([]manager.Package{*p}, opFlags.options()))
}
