package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"omnipkg/internal/executor"
	"omnipkg/internal/ui"
	"omnipkg/pkg/manager"
)

var managersCmd = &cobra.Command{
	Use:     "managers",
	Aliases: []string{"doctor"},
	Short:   "Show the package managers omnipkg knows",
	Long: `Show every package manager variant with whether it is enabled on
this system, whether its executable was found, and how its installed
listing is cached.

Examples:
  omnipkg managers
  omnipkg managers -v               # Include executable paths and options`,
	RunE: runManagers,
}

func init() {
	rootCmd.AddCommand(managersCmd)
}

func runManagers(cmd *cobra.Command, args []string) error {
	if info := eng.Registry().SystemInfo(); info != nil {
		name := info.PrettyName
		if name == "" {
			name = fmt.Sprint(info.OS)
		}
		ui.InfoMsg("System: %s (%s)", name, info.Arch)
	} else {
		ui.WarningMsg("System detection failed; managers use platform defaults")
	}
	ui.MutedMsg("Elevation: %s", executor.CurrentPrivileges())

	headers := []string{"name", "type", "enabled", "available", "cache", "cached"}
	if cfg.Output.Verbose {
		headers = append(headers, "path", "options")
	}
	t := ui.NewTable(cmd.OutOrStdout(), headers...)
	usable := 0
	for _, m := range eng.Registry().All() {
		d := m.Descriptor()
		available := d.Available()
		if d.Enabled && available {
			usable++
		}
		row := []string{
			d.Name,
			string(d.Type),
			yesNo(d.Enabled),
			yesNo(available),
			m.CachePolicy().String(),
			cachedAge(d.Name),
		}
		if cfg.Output.Verbose {
			row = append(row, d.ExecutablePath, capabilities(d.Capabilities))
		}
		t.AddRow(row...)
	}
	t.Render()

	if usable == 0 {
		ui.WarningMsg("No enabled package manager was found on this system")
	} else {
		ui.MutedMsg("\n%d package manager(s) ready", usable)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return ui.Success.Sprint(ui.SymbolSuccess)
	}
	return ui.Muted.Sprint("-")
}

func cachedAge(name string) string {
	e := eng.Cached(name)
	if e.Empty() {
		return "-"
	}
	return fmt.Sprintf("%d pkgs, %s ago", len(e.Lines), time.Since(e.RefreshedAt).Round(time.Second))
}

func capabilities(c manager.Capabilities) string {
	var out []string
	for _, f := range []struct {
		ok   bool
		name string
	}{
		{c.CanRunAsAdmin, "elevated"},
		{c.CanSkipIntegrityChecks, "skip-hash"},
		{c.CanRunInteractively, "interactive"},
		{c.SupportsCustomVersions, "version"},
		{c.SupportsCustomArchitectures, "arch"},
		{c.SupportsCustomScopes, "scope"},
	} {
		if f.ok {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
