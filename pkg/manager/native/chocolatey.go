package native

import (
	"fmt"
	"strings"
	"time"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// Chocolatey implements the Manager interface for Chocolatey (Windows).
type Chocolatey struct {
	*manager.BaseManager
}

var chocolateyDefaults = manager.Defaults{
	Name:        "chocolatey",
	DisplayName: "Chocolatey",
	Binary:      "choco",
	Type:        manager.TypeNative,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:               true,
		CanSkipIntegrityChecks:      true,
		CanRunInteractively:         true,
		SupportsCustomVersions:      true,
		SupportsCustomArchitectures: true,
	},
	OperationTimeout: 60 * time.Minute,
	QueryTimeout:     5 * time.Minute,
	IdleTimeout:      20 * time.Minute,
	Policy:           cache.Policy{Mode: cache.ServeStale},
}

// "--limit-output" prints "id|version" records without banners.
var (
	chocoList     = parser.NewDelimited("|")
	chocoOutdated = parser.Delimited{Sep: "|", ID: 0, Name: -1, Version: 1, NewVersion: 2, Source: -1, MinFields: 3}
)

// NewChocolatey creates a new Chocolatey manager instance.
func NewChocolatey(cfg config.ManagerConfig) (*Chocolatey, error) {
	base, err := manager.NewBaseManager(chocolateyDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Chocolatey{BaseManager: base}, nil
}

// Search finds packages in the configured sources.
func (c *Chocolatey) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"search", query, "--limit-output"}, Grammar: chocoList}, nil
}

// ListInstalled lists installed packages.
func (c *Chocolatey) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list", "--limit-output"}, Grammar: chocoList}, nil
}

// ListUpgradable lists outdated packages.
func (c *Chocolatey) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"outdated", "--limit-output"}, Grammar: chocoOutdated}, nil
}

// Info shows a package's metadata.
func (c *Chocolatey) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"info", id}}, nil
}

// Install installs a package. Chocolatey always writes to the machine-wide
// lib folder, so every operation runs elevated.
func (c *Chocolatey) Install(id string, opts manager.Options) (manager.Invocation, error) {
	return c.operation("install", id, opts)
}

// Update upgrades a package.
func (c *Chocolatey) Update(id string, opts manager.Options) (manager.Invocation, error) {
	return c.operation("upgrade", id, opts)
}

// Uninstall removes a package.
func (c *Chocolatey) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Architecture != "" || opts.SkipIntegrity {
		return c.Unsupported("uninstall with install options")
	}
	return c.operation("uninstall", id, opts)
}

func (c *Chocolatey) operation(verb, id string, opts manager.Options) (manager.Invocation, error) {
	args := []string{verb, id, "--yes", "--no-progress"}
	args = appendOpt(args, "--version", opts.Version)
	switch strings.ToLower(opts.Architecture) {
	case "":
	case "x86", "386", "32bit":
		args = append(args, "--forcex86")
	default:
		return manager.Invocation{}, fmt.Errorf("chocolatey architecture %q: %w", opts.Architecture, manager.ErrUnsupported)
	}
	if opts.SkipIntegrity {
		args = append(args, "--ignore-checksums")
	}
	if opts.Interactive {
		args = append(args, "--not-silent")
	}
	return manager.Invocation{Args: args, Elevated: true}, nil
}

// Rules classifies chocolatey's exit codes and messages.
func (c *Chocolatey) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		ExitCodes: map[int]classify.Outcome{
			msiSuccessRebootRequired:  classify.NeedsRestart,
			msiSuccessRebootInitiated: classify.NeedsRestart,
		},
		Lines: []classify.LineRule{
			{Contains: "checksums do not match", Outcome: classify.IncorrectIntegrityHash},
			{Contains: "not running from an elevated command shell", Outcome: classify.NeedsElevation},
			{Contains: "is the latest version available", Outcome: classify.NoApplicableUpdate},
			{Contains: "already installed", Outcome: classify.NoApplicableUpdate},
			{Contains: "was successful", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "has been successfully uninstalled", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "reboot is required", Outcome: classify.NeedsRestart},
			{Contains: "Progress: Downloading", Checkpoint: classify.Downloading},
			{Contains: "Hashes match", Checkpoint: classify.Verifying},
		},
	}.With(classify.Common())
}

// ParseInfo reads the output of "choco info", whose title line carries the
// publish date after a pipe.
func (c *Chocolatey) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := c.BaseManager.ParseInfo(id, lines)
	f := d.Fields
	if title, _, _ := strings.Cut(f["title"], " | "); title != "" {
		d.Name = strings.TrimSpace(title)
	}
	set := func(dst *string, key string) {
		if v := f[key]; v != "" {
			*dst = v
		}
	}
	set(&d.Homepage, "software site")
	set(&d.License, "software license")
	set(&d.Publisher, "maintainer(s)")
	set(&d.Publisher, "software author")
	set(&d.ReleaseNotes, "release notes")
	if tags := f["tags"]; tags != "" {
		d.Tags = strings.Fields(tags)
	}
	if d.Version == manager.UnknownVersion {
		// "git 2.45.1 [Approved]"
		for _, line := range lines {
			fields := strings.Fields(parser.Clean(line))
			if len(fields) >= 2 && strings.EqualFold(fields[0], id) {
				d.Version = fields[1]
				break
			}
		}
	}
	return d
}

// Describe names a chocolatey or MSI exit code.
func (c *Chocolatey) Describe(code int) (string, bool) {
	return describeChoco(code)
}
