// Package universal implements the sandboxed application managers: flatpak
// and snap.
package universal

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

// All builds every universal variant from the per-manager configuration.
func All(cfg *config.Config) ([]manager.Manager, error) {
	flatpak, err := NewFlatpak(cfg.GetManagerConfig("flatpak"))
	if err != nil {
		return nil, err
	}
	snap, err := NewSnap(cfg.GetManagerConfig("snap"))
	if err != nil {
		return nil, err
	}
	return []manager.Manager{flatpak, snap}, nil
}

// Flatpak implements the Manager interface for Flatpak.
type Flatpak struct {
	*manager.BaseManager
	defaultRemote string
}

var flatpakDefaults = manager.Defaults{
	Name:        "flatpak",
	DisplayName: "Flatpak",
	Binary:      "flatpak",
	Type:        manager.TypeUniversal,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:               true,
		SupportsCustomArchitectures: true,
		SupportsCustomScopes:        true,
	},
	OperationTimeout: 60 * time.Minute,
	QueryTimeout:     3 * time.Minute,
	IdleTimeout:      15 * time.Minute,
	Policy:           cache.Policy{Mode: cache.TTL, MaxAge: 30 * time.Minute},
}

// Flatpak separates the requested columns with tabs when not on a terminal.
var (
	flatpakColumns  = "--columns=application,name,version,origin"
	flatpakList     = parser.Delimited{Sep: "\t", ID: 0, Name: 1, Version: 2, NewVersion: -1, Source: 3}
	flatpakUpdates  = parser.Delimited{Sep: "\t", ID: 0, Name: 1, Version: -1, NewVersion: 2, Source: 3}
	flatpakSearch   = parser.Delimited{Sep: "\t", ID: 0, Name: 1, Version: 2, NewVersion: -1, Source: 3}
	flatpakSearchBy = "--columns=application,name,version,remotes"
)

// NewFlatpak creates a new Flatpak manager instance.
func NewFlatpak(cfg config.ManagerConfig) (*Flatpak, error) {
	base, err := manager.NewBaseManager(flatpakDefaults, cfg)
	if err != nil {
		return nil, err
	}
	remote := cfg.Remote
	if remote == "" {
		remote = "flathub"
	}
	return &Flatpak{BaseManager: base, defaultRemote: remote}, nil
}

// Search finds applications in the configured remotes.
func (f *Flatpak) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"search", flatpakSearchBy, query}, Grammar: flatpakSearch}, nil
}

// ListInstalled lists installed applications, runtimes excluded.
func (f *Flatpak) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list", "--app", flatpakColumns}, Grammar: flatpakList}, nil
}

// ListUpgradable lists applications with pending updates. Flatpak reports
// only the new version.
func (f *Flatpak) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"remote-ls", "--updates", "--app", flatpakColumns}, Grammar: flatpakUpdates}, nil
}

// Info shows an installed application's metadata.
func (f *Flatpak) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"info", id}}, nil
}

// Install installs an application from the default remote.
func (f *Flatpak) Install(id string, opts manager.Options) (manager.Invocation, error) {
	return f.operation([]string{"install", "--noninteractive", "-y"}, []string{f.defaultRemote, id}, opts)
}

// Update updates an application.
func (f *Flatpak) Update(id string, opts manager.Options) (manager.Invocation, error) {
	return f.operation([]string{"update", "--noninteractive", "-y"}, []string{id}, opts)
}

// Uninstall removes an application.
func (f *Flatpak) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	return f.operation([]string{"uninstall", "--noninteractive", "-y"}, []string{id}, opts)
}

// operation adds the installation and architecture flags before the refs.
// System installations need root.
func (f *Flatpak) operation(args, refs []string, opts manager.Options) (manager.Invocation, error) {
	inv := manager.Invocation{}
	switch strings.ToLower(opts.Scope) {
	case "":
	case "user":
		args = append(args, "--user")
	case "system", "machine":
		args = append(args, "--system")
		inv.Elevated = true
	default:
		return manager.Invocation{}, fmt.Errorf("flatpak installation %q: %w", opts.Scope, manager.ErrUnsupported)
	}
	if opts.Architecture != "" {
		args = append(args, "--arch="+opts.Architecture)
	}
	inv.Args = append(args, refs...)
	return inv, nil
}

// Rules classifies flatpak's messages.
func (f *Flatpak) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		Lines: []classify.LineRule{
			{Contains: "Nothing to do", Outcome: classify.NoApplicableUpdate},
			{Contains: "is already installed", Outcome: classify.NoApplicableUpdate},
			{Contains: "not installed", Outcome: classify.Failed},
			{Contains: "No remote refs found", Outcome: classify.Failed},
			{Contains: "Installation complete", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "Updates complete", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "Uninstall complete", Outcome: classify.Succeeded, Checkpoint: classify.Installing},
		},
	}.With(classify.Common())
}

// ParseInfo reads "flatpak info", whose first line is "Name - Summary".
func (f *Flatpak) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := f.BaseManager.ParseInfo(id, lines)
	if v := d.Fields["id"]; v != "" {
		d.ID = v
	}
	for _, line := range lines {
		line = strings.TrimSpace(parser.Clean(line))
		if line == "" {
			continue
		}
		if name, summary, ok := strings.Cut(line, " - "); ok && !strings.Contains(name, ":") {
			d.Name = name
			d.Description = summary
		}
		break
	}
	if v := d.Fields["origin"]; v != "" {
		d.Publisher = v
	}
	return d
}
