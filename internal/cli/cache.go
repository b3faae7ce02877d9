package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cached installed listings",
	Long: `Installed listings of slow managers are cached on disk and served
while a fresh listing runs. These commands inspect and reset that cache.

Examples:
  omnipkg cache rebuild             # Relist every available manager
  omnipkg cache rebuild winget
  omnipkg cache clear               # Drop every cached listing
  omnipkg cache clear npm`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [manager]",
	Short: "Drop cached listings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := firstArg(args)
		if err := eng.ClearCache(name); err != nil {
			return err
		}
		if name == "" {
			ui.SuccessMsg("Cache cleared")
		} else {
			ui.SuccessMsg("Cache of %s cleared", name)
		}
		return nil
	},
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild [manager]",
	Short: "Relist installed packages and refresh the cache",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spin := ui.NewSpinner("Rebuilding cache...")
		spin.Start()
		counts, err := eng.RebuildCache(cmd.Context(), firstArg(args))
		spin.Stop()

		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ui.SuccessMsg("%s: %d packages", name, counts[name])
		}
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheRebuildCmd)
	rootCmd.AddCommand(cacheCmd)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
