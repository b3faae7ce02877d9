package manager

import (
	"fmt"
	"strings"
	"time"

	"omnipkg/internal/config"
	"omnipkg/internal/executor"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager/detector"
	"omnipkg/pkg/parser"
)

// Defaults are a variant's built-in settings before configuration applies.
type Defaults struct {
	Name         string
	DisplayName  string
	Binary       string
	Type         ManagerType
	Capabilities Capabilities
	Env          []string

	OperationTimeout time.Duration
	QueryTimeout     time.Duration
	IdleTimeout      time.Duration

	Policy cache.Policy
}

// BaseManager provides the descriptor and cache policy shared by every
// variant. Variants embed it and add their verbs.
type BaseManager struct {
	desc   Descriptor
	policy cache.Policy
}

// NewBaseManager applies cfg to d. A manager is enabled by default when its
// platform lists it; cfg.Enabled overrides that either way.
func NewBaseManager(d Defaults, cfg config.ManagerConfig) (*BaseManager, error) {
	b := &BaseManager{
		desc: Descriptor{
			Name:             d.Name,
			DisplayName:      d.DisplayName,
			Type:             d.Type,
			ExecutablePath:   d.Binary,
			Enabled:          detector.EnabledByDefault(detector.CurrentOS(), d.Name),
			Capabilities:     d.Capabilities,
			Env:              d.Env,
			OperationTimeout: d.OperationTimeout,
			QueryTimeout:     d.QueryTimeout,
			IdleTimeout:      d.IdleTimeout,
		},
		policy: d.Policy,
	}

	if cfg.Enabled != nil {
		b.desc.Enabled = *cfg.Enabled
	}
	if cfg.Path != "" {
		b.desc.ExecutablePath = cfg.Path
	}
	args, err := cfg.Args()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	b.desc.ExtraArgs = args

	enc, err := executor.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	b.desc.Encoding = enc

	if cfg.Timeout.Duration > 0 {
		b.desc.OperationTimeout = cfg.Timeout.Duration
	}
	if cfg.IdleTimeout.Duration > 0 {
		b.desc.IdleTimeout = cfg.IdleTimeout.Duration
	}
	if cfg.CacheTTL.Duration > 0 {
		b.policy = cache.Policy{Mode: cache.TTL, MaxAge: cfg.CacheTTL.Duration}
	}
	return b, nil
}

// Descriptor returns the tool's identity.
func (b *BaseManager) Descriptor() *Descriptor {
	return &b.desc
}

// CachePolicy returns the staleness policy of the installed listing.
func (b *BaseManager) CachePolicy() cache.Policy {
	return b.policy
}

// Rules returns the shared classification table.
func (b *BaseManager) Rules(OperationKind) classify.Rules {
	return classify.Common()
}

// ParseInfo reads "Key: value" output with the most common key names.
func (b *BaseManager) ParseInfo(id string, lines []string) *PackageDetails {
	fields := parser.Fields(lines)
	d := NewPackageDetails(Package{ID: id, Source: &b.desc})
	d.Fill(fields, map[*string][]string{
		&d.Name:         {"name"},
		&d.Version:      {"version"},
		&d.Description:  {"description", "summary"},
		&d.Publisher:    {"publisher", "author"},
		&d.Homepage:     {"homepage", "home-page", "website"},
		&d.License:      {"license"},
		&d.InstallerURL: {"installer url", "url"},
		&d.ReleaseNotes: {"release notes"},
	})
	d.Tags = splitTags(fields["tags"])
	return d
}

// Unsupported returns ErrUnsupported for a verb this tool lacks.
func (b *BaseManager) Unsupported(verb string) (Invocation, error) {
	return Invocation{}, fmt.Errorf("%s %s: %w", b.desc.Name, verb, ErrUnsupported)
}

// splitTags splits a tags value printed on one line or one per line.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	sep := func(r rune) bool { return r == '\n' || r == ',' || r == ' ' }
	var tags []string
	for _, t := range strings.FieldsFunc(s, sep) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
