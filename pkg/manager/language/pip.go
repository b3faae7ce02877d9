package language

import (
	"fmt"
	"regexp"
	"time"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// Pip implements the Manager interface for pip.
type Pip struct {
	*manager.BaseManager
}

var pipDefaults = manager.Defaults{
	Name:        "pip",
	DisplayName: "pip",
	Binary:      "pip",
	Type:        manager.TypeLanguage,
	Capabilities: manager.Capabilities{
		SupportsCustomVersions: true,
		SupportsCustomScopes:   true,
	},
	Env:              []string{"PIP_NO_INPUT=1", "PIP_DISABLE_PIP_VERSION_CHECK=1", "PYTHONIOENCODING=utf-8"},
	OperationTimeout: 20 * time.Minute,
	QueryTimeout:     2 * time.Minute,
	IdleTimeout:      5 * time.Minute,
	Policy:           cache.Policy{Mode: cache.TTL, MaxAge: 30 * time.Minute},
}

var (
	pipFreeze   = parser.Delimited{Sep: "==", ID: 0, Name: -1, Version: 1, NewVersion: -1, Source: -1, MinFields: 2}
	pipOutdated = parser.NewColumn(parser.Hints{
		IDLabel:         "Package",
		VersionLabel:    "Version",
		NewVersionLabel: "Latest",
	})
	// "pip index versions" prints "requests (2.32.3)" for an exact name.
	pipIndex = parser.NewPattern(`^(?P<id>[A-Za-z0-9][A-Za-z0-9._-]*) \((?P<version>[^)]+)\)$`)
)

// NewPip creates a new pip manager instance.
func NewPip(cfg config.ManagerConfig) (*Pip, error) {
	base, err := manager.NewBaseManager(pipDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Pip{BaseManager: base}, nil
}

// Search looks the query up as an exact distribution name. PyPI has no
// search API; "pip search" always fails against it.
func (p *Pip) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"index", "versions", query}, Grammar: pipIndex}, nil
}

// ListInstalled lists installed distributions.
func (p *Pip) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list", "--format=freeze"}, Grammar: pipFreeze}, nil
}

// ListUpgradable lists outdated distributions.
func (p *Pip) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"list", "--outdated", "--format=columns"}, Grammar: pipOutdated}, nil
}

// Info shows a distribution's metadata.
func (p *Pip) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"show", id}}, nil
}

// Install installs a distribution, pinned with "==" when a version is given.
func (p *Pip) Install(id string, opts manager.Options) (manager.Invocation, error) {
	target := id
	if opts.Version != "" {
		target = id + "==" + opts.Version
	}
	return p.withScope([]string{"install", target}, opts)
}

// Update upgrades a distribution.
func (p *Pip) Update(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Version != "" {
		return p.Install(id, opts)
	}
	return p.withScope([]string{"install", "--upgrade", id}, opts)
}

// Uninstall removes a distribution.
func (p *Pip) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Version != "" || opts.Scope != "" {
		return p.Unsupported("uninstall with install options")
	}
	return manager.Invocation{Args: []string{"uninstall", "--yes", id}}, nil
}

func (p *Pip) withScope(args []string, opts manager.Options) (manager.Invocation, error) {
	switch opts.Scope {
	case "":
	case "user":
		args = append(args, "--user")
	default:
		return manager.Invocation{}, fmt.Errorf("pip scope %q: %w", opts.Scope, manager.ErrUnsupported)
	}
	return manager.Invocation{Args: args}, nil
}

var pipDone = regexp.MustCompile(`^Successfully (installed|uninstalled) `)

// Rules classifies pip's messages.
func (p *Pip) Rules(kind manager.OperationKind) classify.Rules {
	rules := classify.Rules{
		Lines: []classify.LineRule{
			{Contains: "do not match the hashes", Outcome: classify.IncorrectIntegrityHash},
			{Contains: "Could not find a version that satisfies", Outcome: classify.Failed},
			{Contains: "No matching distribution found", Outcome: classify.Failed},
			{Contains: "externally-managed-environment", Outcome: classify.Failed},
			{Contains: "Consider using the `--user` option", Outcome: classify.NeedsElevation},
			{Pattern: pipDone, Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "Collecting ", Checkpoint: classify.Started},
			{Contains: "Installing collected packages", Checkpoint: classify.Installing},
		},
	}
	if kind != manager.Install {
		// An install of something present is a plain success; an
		// upgrade of it means there was nothing to do.
		rules.Lines = append([]classify.LineRule{
			{Contains: "Requirement already satisfied", Outcome: classify.NoApplicableUpdate},
		}, rules.Lines...)
	}
	return rules.With(classify.Common())
}

// ParseInfo reads "pip show".
func (p *Pip) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := p.BaseManager.ParseInfo(id, lines)
	if v := d.Fields["author-email"]; v != "" && d.Publisher == manager.UnknownVersion {
		d.Publisher = v
	}
	return d
}
