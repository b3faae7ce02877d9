// Package cli implements the command-line interface for omnipkg.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"omnipkg/internal/config"
	"omnipkg/internal/executor"
	"omnipkg/internal/history"
	"omnipkg/internal/ui"
	"omnipkg/pkg/engine"
)

var (
	// Global flags
	cfgFile string
	source  string
	dryRun  bool
	yes     bool
	verbose bool
	noColor bool

	// Global state
	cfg    *config.Config
	eng    *engine.Engine
	store  *history.Store
	logger *log.Logger
)

// Build metadata - set at build time via ldflags
var (
	Version   = "0.1.0-dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "omnipkg",
	Short: "One front end for every package manager on the machine",
	Long: `omnipkg drives the package managers installed on this machine
through one interface: search all of them at once, list what is
installed or outdated, and install, update or remove packages with
progress and a classified outcome.

Supported package managers:
  Windows:   winget, scoop, chocolatey
  Universal: flatpak, snap
  Language:  pip, npm

Examples:
  omnipkg search ripgrep              # Search every enabled manager
  omnipkg search requests -s pip      # Search one manager
  omnipkg install BurntSushi.ripgrep.MSVC -s winget
  omnipkg updates                     # Packages with newer versions
  omnipkg tui                         # Interactive interface`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeApp()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdownApp()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&source, "source", "s", "", "managers or manager types to use, comma separated (pip, npm, native, ...)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "show what would happen without executing")
	rootCmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "assume yes to all prompts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. An interrupt cancels whatever is running.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		ui.ErrorMsg("%v", err)
		// PersistentPostRunE does not run after a failed command.
		_ = shutdownApp() //nolint:errcheck
	}
	return err
}

// initializeApp sets up the application state.
func initializeApp() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Apply global flag overrides
	if yes {
		cfg.General.AutoConfirm = true
	}
	if dryRun {
		cfg.General.DryRun = true
	}
	if verbose {
		cfg.Output.Verbose = true
	}
	if noColor {
		cfg.Output.Color = false
	}

	ui.Init(cfg.ShouldUseColor(), cfg.Output.Unicode)
	logger = newLogger(cfg)

	exec := executor.New(cfg.General.DryRun, cfg.Output.Verbose)
	exec.SetLogger(logger.WithPrefix("exec"))

	// History is optional; operations still run without it.
	store, err = history.Open(config.HistoryPath())
	if err != nil {
		logger.Warn("history unavailable", "err", err)
		store = nil
	}

	opts := engine.Options{
		Config:   cfg,
		Executor: exec,
		Logger:   logger,
	}
	if store != nil {
		opts.Recorder = store
	}
	eng, err = engine.New(opts)
	return err
}

// shutdownApp waits for queued operations and closes the history store.
func shutdownApp() error {
	var err error
	if eng != nil {
		err = eng.Close()
		eng = nil
	}
	if store != nil {
		if cerr := store.Close(); err == nil {
			err = cerr
		}
		store = nil
	}
	return err
}

// newLogger builds the diagnostics logger. Diagnostics go to stderr so they
// never mix with listings.
func newLogger(c *config.Config) *log.Logger {
	level, err := log.ParseLevel(c.Output.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	if c.Output.Verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "omnipkg",
		Level:  level,
	})
}

// sources splits the --source flag.
func sources() []string {
	if source == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(source, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// resolvePackages resolves aliases in package names.
func resolvePackages(packages []string) []string {
	return cfg.ResolveAliases(packages)
}

// confirm asks unless auto-confirm or dry-run is on.
func confirm(prompt string) error {
	if cfg.General.AutoConfirm || cfg.General.DryRun {
		return nil
	}
	ok, err := ui.Confirm(prompt, true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print omnipkg version",
	Run: func(cmd *cobra.Command, args []string) {
		ui.InfoMsg("omnipkg version %s", Version)
		if Commit != "unknown" {
			ui.MutedMsg("  Commit: %s", Commit)
		}
		if BuildTime != "unknown" {
			ui.MutedMsg("  Built:  %s", BuildTime)
		}
		if eng != nil {
			if info := eng.Registry().SystemInfo(); info != nil {
				ui.MutedMsg("  System: %s %s", fmt.Sprint(info.OS), info.Arch)
			}
		}
	},
}
