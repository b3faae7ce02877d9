package language

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// Npm implements the Manager interface for npm's global packages.
type Npm struct {
	*manager.BaseManager
}

var npmDefaults = manager.Defaults{
	Name:        "npm",
	DisplayName: "npm",
	Binary:      "npm",
	Type:        manager.TypeLanguage,
	Capabilities: manager.Capabilities{
		CanRunAsAdmin:          true,
		SupportsCustomVersions: true,
	},
	Env:              []string{"NO_COLOR=1", "npm_config_fund=false", "npm_config_update_notifier=false"},
	OperationTimeout: 20 * time.Minute,
	QueryTimeout:     3 * time.Minute,
	IdleTimeout:      5 * time.Minute,
	Policy:           cache.Policy{Mode: cache.ServeStale},
}

// npm package names, scoped ("@angular/cli") or not.
const npmName = `(?:@[^@\s/:]+/)?[^@\s/:\\]+`

var (
	// "npm search --parseable": name, description, author, date, version,
	// keywords, separated by tabs.
	npmSearch = parser.Delimited{Sep: "\t", ID: 0, Name: -1, Version: 4, NewVersion: -1, Source: -1, MinFields: 5}
	// "npm ls -g --depth=0" draws a tree: "├── typescript@5.4.5".
	npmTree = parser.NewPattern(`^(?:[├└│─┬ +|\\` + "`" + `-]+)?(?P<id>` + npmName + `)@(?P<version>\S+)$`)
	// "npm outdated -g --parseable":
	// dir:name@wanted:name@current:name@latest:dependent. The directory
	// may hold a drive colon, so the record is matched from the end.
	npmOutdated = parser.NewPattern(`:(?P<id>` + npmName + `)@[^:@]+:` + npmName + `@(?P<version>[^:@]+):` + npmName + `@(?P<newversion>[^:@]+):[^:]*$`)
)

// NewNpm creates a new npm manager instance.
func NewNpm(cfg config.ManagerConfig) (*Npm, error) {
	base, err := manager.NewBaseManager(npmDefaults, cfg)
	if err != nil {
		return nil, err
	}
	return &Npm{BaseManager: base}, nil
}

// Search queries the registry.
func (n *Npm) Search(query string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"search", "--parseable", "--no-description", query}, Grammar: npmSearch}, nil
}

// ListInstalled lists globally installed packages.
func (n *Npm) ListInstalled() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"ls", "--global", "--depth=0"}, Grammar: npmTree}, nil
}

// ListUpgradable lists outdated global packages.
func (n *Npm) ListUpgradable() (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"outdated", "--global", "--parseable"}, Grammar: npmOutdated}, nil
}

// Info shows a package's registry metadata as JSON.
func (n *Npm) Info(id string) (manager.Invocation, error) {
	return manager.Invocation{Args: []string{"view", id, "--json"}}, nil
}

// Install installs a package globally.
func (n *Npm) Install(id string, opts manager.Options) (manager.Invocation, error) {
	target := id
	if opts.Version != "" {
		target = id + "@" + opts.Version
	}
	return manager.Invocation{Args: []string{"install", "--global", target}}, nil
}

// Update installs the latest version, or the given one.
func (n *Npm) Update(id string, opts manager.Options) (manager.Invocation, error) {
	version := opts.Version
	if version == "" {
		version = "latest"
	}
	return manager.Invocation{Args: []string{"install", "--global", id + "@" + version}}, nil
}

// Uninstall removes a global package.
func (n *Npm) Uninstall(id string, opts manager.Options) (manager.Invocation, error) {
	if opts.Version != "" {
		return n.Unsupported("uninstall a single version")
	}
	return manager.Invocation{Args: []string{"uninstall", "--global", id}}, nil
}

var npmDone = regexp.MustCompile(`^(added|changed|removed) \d+ packages?`)

// Rules classifies npm's messages.
func (n *Npm) Rules(manager.OperationKind) classify.Rules {
	return classify.Rules{
		Lines: []classify.LineRule{
			{Contains: "EINTEGRITY", Outcome: classify.IncorrectIntegrityHash},
			{Contains: "EACCES", Outcome: classify.NeedsElevation},
			{Contains: "EPERM", Outcome: classify.NeedsElevation},
			{Contains: "E404", Outcome: classify.Failed},
			{Contains: "ETARGET", Outcome: classify.Failed},
			{Pattern: npmDone, Outcome: classify.Succeeded, Checkpoint: classify.Installing},
			{Contains: "up to date", Outcome: classify.NoApplicableUpdate},
			{Contains: "reify:", Checkpoint: classify.Installing},
			{Contains: "http fetch", Checkpoint: classify.Downloading},
		},
	}.With(classify.Common())
}

// npmView is the subset of "npm view --json" the details use.
type npmView struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Homepage    string          `json:"homepage"`
	License     json.RawMessage `json:"license"`
	Author      json.RawMessage `json:"author"`
	Keywords    []string        `json:"keywords"`
	Dist        struct {
		Tarball string `json:"tarball"`
	} `json:"dist"`
}

// ParseInfo decodes "npm view --json". An unknown package prints an error
// object instead, which yields details with every field unknown.
func (n *Npm) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := manager.NewPackageDetails(manager.Package{ID: id, Source: n.Descriptor()})

	var v npmView
	if err := json.Unmarshal([]byte(strings.Join(lines, "\n")), &v); err != nil || v.Name == "" {
		return d
	}
	set := func(dst *string, s string) {
		if s = strings.TrimSpace(s); s != "" {
			*dst = s
		}
	}
	set(&d.Name, v.Name)
	set(&d.ID, v.Name)
	set(&d.Version, v.Version)
	set(&d.Description, v.Description)
	set(&d.Homepage, v.Homepage)
	set(&d.License, looseString(v.License, "type"))
	set(&d.Publisher, looseString(v.Author, "name"))
	set(&d.InstallerURL, v.Dist.Tarball)
	d.Tags = v.Keywords
	d.Fields["name"] = v.Name
	d.Fields["version"] = v.Version
	return d
}

// looseString reads a field npm prints either as a string or as an object.
func looseString(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil {
		if v, ok := obj[key].(string); ok {
			return v
		}
	}
	return ""
}
