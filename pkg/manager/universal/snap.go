package universal

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

// Snap implements the Manager interface for Snap.
type Snap struct {
	*manager.BaseManager
	allowClassic bool
}

var snapDefaults = manager.Defaults{
	Name:        "snap",
	DisplayName: "Snap",
	Binary:      "snap",
	Type:        manager.TypeUniversal,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:          true,
		SupportsCustomVersions: true,
	},
	OperationTimeout: 30 * time.Minute,
	QueryTimeout:     2 * time.Minute,
	IdleTimeout:      10 * time.Minute,
	Policy:           cache.Policy{Mode: cache.Always},
}

var (
	snapFind = parser.NewColumn(parser.Hints{
		IDLabel:      "Name",
		VersionLabel: "Version",
		SourceLabel:  "Publisher",
		Summary:      regexp.MustCompile(`^No matching snaps`),
	})
	snapList = parser.NewColumn(parser.Hints{
		IDLabel:      "Name",
		VersionLabel: "Version",
		SourceLabel:  "Publisher",
	})
	// "snap refresh --list" prints the version it would refresh to.
	snapRefreshList = parser.NewColumn(parser.Hints{
		IDLabel:         "Name",
		NewVersionLabel: "Version",
		SourceLabel:     "Publisher",
		Summary:         regexp.MustCompile(`^All snaps up to date`),
	})

	snapDone = regexp.MustCompile(`^\S+ (\(\S+\) )?\S+ from .+ (installed|refreshed)$|^\S+ removed$`)
)

// NewSnap creates a new Snap manager instance.
func NewSnap(cfg config.ManagerConfig) (*Snap, error) {
	base, err := manager.NewBaseManager(snapDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Snap{BaseManager: base, allowClassic: cfg.AllowClassic}, nil
}

// Search finds snaps in the store.
func (s *Snap) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"find", query}, Grammar: snapFind}, nil
}

// ListInstalled lists installed snaps.
func (s *Snap) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list"}, Grammar: snapList}, nil
}

// ListUpgradable lists snaps with pending refreshes.
func (s *Snap) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"refresh", "--list"}, Grammar: snapRefreshList}, nil
}

// Info shows a snap's store metadata.
func (s *Snap) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"info", id}}, nil
}

// Install installs a snap. A version selects the channel to track, e.g.
// "latest/edge". snapd only accepts changes from root.
func (s *Snap) Install(id string, opts manager.Options) (manager.Invocation, error) {
	args := []string{"install", id}
	if opts.Version != "" {
		args = append(args, "--channel="+opts.Version)
	}
	if s.allowClassic {
		args = append(args, "--classic")
	}
	return manager.Invocation{Args: args, Elevated: true}, nil
}

// Update refreshes a snap.
func (s *Snap) Update(id string, opts manager.Options) (manager.Invocation, error) {
	args := []string{"refresh", id}
	if opts.Version != "" {
		args = append(args, "--channel="+opts.Version)
	}
	return manager.Invocation{Args: args, Elevated: true}, nil
}

// Uninstall removes a snap.
func (s *Snap) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Version != "" {
		return s.Unsupported("remove a single channel")
	}
	return manager.Invocation{Args: []string{"remove", id}, Elevated: true}, nil
}

// Rules classifies snap's messages.
func (s *Snap) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		Lines: []classify.LineRule{
			{Contains: "has no updates available", Outcome: classify.NoApplicableUpdate},
			{Contains: "All snaps up to date", Outcome: classify.NoApplicableUpdate},
			{Contains: "not found", Outcome: classify.Failed},
			{Contains: "is not installed", Outcome: classify.Failed},
			{Contains: "requires classic confinement", Outcome: classify.Failed},
			{Contains: "access denied", Outcome: classify.NeedsElevation},
			{Pattern: snapDone, Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "Download snap", Checkpoint: classify.Downloading},
			{Contains: "Fetch and check assertions", Checkpoint: classify.Verifying},
			{Contains: "Mount snap", Checkpoint: classify.Installing},
		},
	}.With(classify.Common())
}

// ParseInfo reads "snap info". The description is a YAML block scalar
// whose lines are indented under "description: |".
func (s *Snap) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := s.BaseManager.ParseInfo(id, lines)
	f := d.Fields
	if v := strings.TrimSpace(strings.TrimPrefix(f["description"], "|")); v != "" {
		d.Description = parser.Collapse(v)
	}
	if v := f["store-url"]; v != "" {
		d.Homepage = v
	} else if v := f["contact"]; v != "" {
		d.Homepage = v
	}
	if v := f["installed"]; v != "" {
		d.Version = strings.Fields(v)[0]
	}
	return d
}
