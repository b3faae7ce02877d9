package native

import (
	"regexp"
	"strings"
	"time"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// Winget implements the Manager interface for Windows Package Manager (winget).
type Winget struct {
	*manager.BaseManager
}

var wingetDefaults = manager.Defaults{
	Name:        "winget",
	DisplayName: "Windows Package Manager",
	Binary:      "winget",
	Type:        manager.TypeNative,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:               true,
		CanSkipIntegrityChecks:      true,
		CanRunInteractively:         true,
		SupportsCustomVersions:      true,
		SupportsCustomArchitectures: true,
		SupportsCustomScopes:        true,
	},
	OperationTimeout: 60 * time.Minute,
	QueryTimeout:     3 * time.Minute,
	IdleTimeout:      20 * time.Minute,
	Policy:           cache.Policy{Mode: cache.ServeStale},
}

// Queries never prompt; the agreements flags keep a first run from
// blocking on the source terms.
var wingetQueryFlags = []string{"--accept-source-agreements", "--disable-interactivity"}

var (
	wingetTable = parser.NewColumn(parser.Hints{
		IDLabel:         "Id",
		NameLabel:       "Name",
		VersionLabel:    "Version",
		NewVersionLabel: "Available",
		SourceLabel:     "Source",
		Summary:         regexp.MustCompile(`^\d+ (upgrades? available|packages? ha(ve|s) version numbers)`),
	})
	wingetFound = regexp.MustCompile(`^Found (.+) \[(\S+)\]$`)
)

// NewWinget creates a new Winget manager instance.
func NewWinget(cfg config.ManagerConfig) (*Winget, error) {
	base, err := manager.NewBaseManager(wingetDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Winget{BaseManager: base}, nil
}

func (w *Winget) query(args ...string) manager.Invocation {
	return manager.Invocation{
		Args:    append(args, wingetQueryFlags...),
		Grammar: wingetTable,
	}
}

// Search finds packages matching the query.
func (w *Winget) Search(query string) (manager.Invocation, error) {
	return w.query("search", "--query", query), nil
}

// ListInstalled lists installed packages.
func (w *Winget) ListInstalled() (manager.Invocation, error) {
	return w.query("list"), nil
}

// ListUpgradable lists packages with a newer version, including those whose
// installed version winget cannot determine.
func (w *Winget) ListUpgradable() (manager.Invocation, error) {
	return w.query("upgrade", "--include-unknown"), nil
}

// Info shows one package's manifest.
func (w *Winget) Info(id string) (manager.Invocation, error) {
	return w.query("show", "--id", id, "--exact"), nil
}

// Install installs a package.
func (w *Winget) Install(id string, opts manager.Options) (manager.Invocation, error) {
	return w.operation("install", id, opts, true), nil
}

// Update upgrades a package.
func (w *Winget) Update(id string, opts manager.Options) (manager.Invocation, error) {
	return w.operation("upgrade", id, opts, true), nil
}

// Uninstall removes a package.
func (w *Winget) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	return w.operation("uninstall", id, opts, false), nil
}

func (w *Winget) operation(verb, id string, opts manager.Options, installs bool) manager.Invocation {
	args := []string{verb, "--id", id, "--exact", "--disable-interactivity", "--accept-source-agreements"}
	if installs {
		args = append(args, "--accept-package-agreements")
		args = appendOpt(args, "--architecture", opts.Architecture)
		if opts.SkipIntegrity {
			args = append(args, "--ignore-security-hash")
		}
	}
	args = appendOpt(args, "--version", opts.Version)
	args = appendOpt(args, "--scope", opts.Scope)
	if opts.Interactive {
		args = append(args, "--interactive")
	} else {
		args = append(args, "--silent")
	}
	return manager.Invocation{Args: args}
}

// Rules classifies winget's HRESULT exit codes and messages.
func (w *Winget) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		ExitCodes: map[int]classify.Outcome{
			manager.HResult(wingetInstallerHashMismatch):   classify.IncorrectIntegrityHash,
			manager.HResult(wingetUpdateNotApplicable):     classify.NoApplicableUpdate,
			manager.HResult(wingetRebootRequiredToFinish):  classify.NeedsRestart,
			manager.HResult(wingetRebootRequiredToInstall): classify.NeedsRestart,
			manager.HResult(wingetPackageAlreadyInstalled): classify.NoApplicableUpdate,
			manager.HResult(wingetInstallAlreadyInstalled): classify.NoApplicableUpdate,
			manager.HResult(wingetNoApplicationsFound):     classify.Failed,
			manager.HResult(accessDenied):                  classify.NeedsElevation,
			errorElevationRequired:                         classify.NeedsElevation,
		},
		Lines: []classify.LineRule{
			{Contains: "No applicable update found", Outcome: classify.NoApplicableUpdate},
			{Contains: "No available upgrade found", Outcome: classify.NoApplicableUpdate},
			{Contains: "No newer package versions are available", Outcome: classify.NoApplicableUpdate},
			{Contains: "Installer hash does not match", Outcome: classify.IncorrectIntegrityHash},
			{Contains: "Restart your PC to finish installation", Outcome: classify.NeedsRestart},
			{Contains: "Successfully verified installer hash", Checkpoint: classify.Verifying},
			{Contains: "Starting package install", Checkpoint: classify.Installing},
			{Contains: "Starting package uninstall", Checkpoint: classify.Installing},
			{Contains: "Found ", Checkpoint: classify.Started},
		},
	}.With(classify.Common())
}

// ParseInfo reads the output of "winget show".
func (w *Winget) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := w.BaseManager.ParseInfo(id, lines)
	for _, line := range lines {
		if m := wingetFound.FindStringSubmatch(strings.TrimSpace(parser.Clean(line))); m != nil {
			d.Name = m[1]
			d.ID = m[2]
			break
		}
	}
	if v := d.Fields["release notes url"]; v != "" && d.ReleaseNotes == manager.UnknownVersion {
		d.ReleaseNotes = v
	}
	return d
}

// Describe names a winget exit code.
func (w *Winget) Describe(code int) (string, bool) {
	return describeWinget(code)
}
