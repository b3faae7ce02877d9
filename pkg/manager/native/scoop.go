package native

import (
	"fmt"
	"time"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// Scoop implements the Manager interface for Scoop (Windows).
type Scoop struct {
	*manager.BaseManager
}

var scoopDefaults = manager.Defaults{
	Name:        "scoop",
	DisplayName: "Scoop",
	Binary:      "scoop",
	Type:        manager.TypeNative,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:               true,
		CanSkipIntegrityChecks:      true,
		SupportsCustomVersions:      true,
		SupportsCustomArchitectures: true,
		SupportsCustomScopes:        true,
	},
	OperationTimeout: 30 * time.Minute,
	QueryTimeout:     3 * time.Minute,
	IdleTimeout:      10 * time.Minute,
	Policy:           cache.Policy{Mode: cache.ServeStale},
}

// Scoop prints the app name, which is also its id, in the Name column.
var (
	scoopList = parser.NewColumn(parser.Hints{
		IDLabel:      "Name",
		VersionLabel: "Version",
		SourceLabel:  "Source",
	})
	scoopStatus = parser.NewColumn(parser.Hints{
		IDLabel:         "Name",
		VersionLabel:    "Installed Version",
		NewVersionLabel: "Latest Version",
	})
)

// scoopArch maps common architecture names to scoop's.
var scoopArch = map[string]string{
	"x64":   "64bit",
	"amd64": "64bit",
	"64bit": "64bit",
	"x86":   "32bit",
	"386":   "32bit",
	"32bit": "32bit",
	"arm64": "arm64",
}

// NewScoop creates a new Scoop manager instance.
func NewScoop(cfg config.ManagerConfig) (*Scoop, error) {
	base, err := manager.NewBaseManager(scoopDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Scoop{BaseManager: base}, nil
}

// Search finds apps in the known buckets.
func (s *Scoop) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"search", query}, Grammar: scoopList}, nil
}

// ListInstalled lists installed apps.
func (s *Scoop) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list"}, Grammar: scoopList}, nil
}

// ListUpgradable lists outdated apps.
func (s *Scoop) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"status"}, Grammar: scoopStatus}, nil
}

// Info shows an app's manifest summary.
func (s *Scoop) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"info", id}}, nil
}

// Install installs an app, pinned to "app@version" when a version is given.
func (s *Scoop) Install(id string, opts manager.Options) (manager.Invocation, error) {
	target := id
	if opts.Version != "" {
		target = id + "@" + opts.Version
	}
	args := []string{"install", target}
	if opts.Architecture != "" {
		arch, ok := scoopArch[opts.Architecture]
		if !ok {
			return manager.Invocation{}, fmt.Errorf("scoop architecture %q: %w", opts.Architecture, manager.ErrUnsupported)
		}
		args = append(args, "--arch", arch)
	}
	return s.finish(args, opts)
}

// Update updates an app to the latest version.
func (s *Scoop) Update(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Version != "" || opts.Architecture != "" {
		return s.Unsupported("update to a specific version or architecture")
	}
	return s.finish([]string{"update", id}, opts)
}

// Uninstall removes an app.
func (s *Scoop) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.SkipIntegrity {
		return s.Unsupported("uninstall without integrity checks")
	}
	return s.finish([]string{"uninstall", id}, opts)
}

// finish applies the scope and hash flags shared by every verb. Global apps
// live under the machine-wide root and need an elevated shell.
func (s *Scoop) finish(args []string, opts manager.Options) (manager.Invocation, error) {
	inv := manager.Invocation{}
	switch opts.Scope {
	case "", "user":
	case "machine", "global":
		args = append(args, "--global")
		inv.Elevated = true
	default:
		return manager.Invocation{}, fmt.Errorf("scoop scope %q: %w", opts.Scope, manager.ErrUnsupported)
	}
	if opts.SkipIntegrity {
		args = append(args, "--skip-hash-check")
	}
	inv.Args = args
	return inv, nil
}

// Rules classifies scoop's messages; scoop exits 0 for most failures, so
// the lines carry the verdict.
func (s *Scoop) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		Lines: []classify.LineRule{
			{Contains: "Hash check failed", Outcome: classify.IncorrectIntegrityHash},
			{Contains: "Couldn't find manifest", Outcome: classify.Failed},
			{Contains: "isn't installed", Outcome: classify.Failed},
			{Contains: "Latest versions for all apps are installed", Outcome: classify.NoApplicableUpdate},
			{Contains: "is already up to date", Outcome: classify.NoApplicableUpdate},
			{Contains: "requires admin rights", Outcome: classify.NeedsElevation},
			{Contains: "was uninstalled", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "was updated from", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "Checking hash", Checkpoint: classify.Verifying},
			{Contains: "Extracting", Checkpoint: classify.Installing},
			{Contains: "Linking", Checkpoint: classify.Installing},
		},
	}.With(classify.Common())
}
