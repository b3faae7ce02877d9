// Package manager describes the external package-manager tools the engine
// drives: their identity and capabilities, the records parsed from their
// output, and the Manager interface every tool variant implements.
package manager

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/encoding"

	"omnipkg/internal/executor"
)

// ErrUnsupported is returned for verbs or options a manager does not offer.
var ErrUnsupported = errors.New("not supported by this package manager")

// ErrUnknownManager is returned when a name matches no registered manager.
var ErrUnknownManager = errors.New("unknown package manager")

// UnknownVersion is used when a tool does not report a version.
const UnknownVersion = "unknown"

// ManagerType represents the category of package manager.
type ManagerType string

const (
	// TypeNative represents system installers (winget, scoop, chocolatey).
	TypeNative ManagerType = "native"
	// TypeUniversal represents sandboxed app managers (flatpak, snap).
	TypeUniversal ManagerType = "universal"
	// TypeLanguage represents language package tools (pip, npm).
	TypeLanguage ManagerType = "language"
)

// Capabilities lists the optional features a manager supports.
type Capabilities struct {
	CanRunAsAdmin               bool
	CanSkipIntegrityChecks      bool
	CanRunInteractively         bool
	SupportsCustomVersions      bool
	SupportsCustomArchitectures bool
	SupportsCustomScopes        bool
}

// Check returns ErrUnsupported for the first option the capabilities do
// not allow.
func (c Capabilities) Check(o Options) error {
	switch {
	case o.Elevated && !c.CanRunAsAdmin:
		return fmt.Errorf("running as administrator: %w", ErrUnsupported)
	case o.SkipIntegrity && !c.CanSkipIntegrityChecks:
		return fmt.Errorf("skipping integrity checks: %w", ErrUnsupported)
	case o.Interactive && !c.CanRunInteractively:
		return fmt.Errorf("interactive mode: %w", ErrUnsupported)
	case o.Version != "" && !c.SupportsCustomVersions:
		return fmt.Errorf("custom version: %w", ErrUnsupported)
	case o.Architecture != "" && !c.SupportsCustomArchitectures:
		return fmt.Errorf("custom architecture: %w", ErrUnsupported)
	case o.Scope != "" && !c.SupportsCustomScopes:
		return fmt.Errorf("custom scope: %w", ErrUnsupported)
	}
	return nil
}

// Descriptor is the identity of one tool. It is built once from the
// built-in defaults and the user's configuration and never changes.
type Descriptor struct {
	Name           string
	DisplayName    string
	Type           ManagerType
	ExecutablePath string
	Enabled        bool
	Capabilities   Capabilities

	// ExtraArgs is appended to every invocation.
	ExtraArgs []string
	// Encoding decodes the tool's console output; nil is UTF-8.
	Encoding encoding.Encoding
	// Env is added to the environment of every invocation.
	Env []string

	// OperationTimeout and QueryTimeout bound a whole run; IdleTimeout
	// bounds the silence between two lines.
	OperationTimeout time.Duration
	QueryTimeout     time.Duration
	IdleTimeout      time.Duration
}

// Available reports whether the executable can be found.
func (d *Descriptor) Available() bool {
	_, err := exec.LookPath(d.ExecutablePath)
	return err == nil
}

// QueryCommand builds the command for a search, listing or info query.
func (d *Descriptor) QueryCommand(inv Invocation) executor.Command {
	idle := d.IdleTimeout
	if d.QueryTimeout > 0 && (idle == 0 || d.QueryTimeout < idle) {
		idle = d.QueryTimeout
	}
	return executor.Command{
		Path:        d.ExecutablePath,
		Args:        append(append([]string(nil), inv.Args...), d.ExtraArgs...),
		Env:         append(append([]string(nil), d.Env...), inv.Env...),
		Timeout:     d.QueryTimeout,
		IdleTimeout: idle,
		Encoding:    d.Encoding,
	}
}

// OperationCommand builds the command for an install, update or uninstall.
func (d *Descriptor) OperationCommand(inv Invocation) executor.Command {
	return executor.Command{
		Path:        d.ExecutablePath,
		Args:        append(append([]string(nil), inv.Args...), d.ExtraArgs...),
		Env:         append(append([]string(nil), d.Env...), inv.Env...),
		Elevated:    inv.Elevated,
		Interactive: inv.Interactive,
		Mutates:     true,
		Timeout:     d.OperationTimeout,
		IdleTimeout: d.IdleTimeout,
		Encoding:    d.Encoding,
	}
}

// Package is one package as reported by one manager. Source is a
// back-reference; records never own their manager.
type Package struct {
	Name    string      `json:"name" yaml:"name"`
	ID      string      `json:"id" yaml:"id"`
	Version string      `json:"version" yaml:"version"`
	Source  *Descriptor `json:"-" yaml:"-"`
}

// Manager returns the name of the source manager.
func (p Package) Manager() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.Name
}

// UpgradablePackage is an installed package with a newer version available.
type UpgradablePackage struct {
	Package
	NewVersion string `json:"new_version" yaml:"new_version"`
}

// PackageDetails is the best-effort result of an info query. Fields the
// tool did not report are UnknownVersion ("unknown").
type PackageDetails struct {
	Package
	Description  string
	Publisher    string
	Homepage     string
	License      string
	InstallerURL string
	ReleaseNotes string
	Tags         []string
	// Fields holds every key the tool printed, lower-cased.
	Fields map[string]string
}

// NewPackageDetails returns details with every field set to "unknown".
func NewPackageDetails(p Package) *PackageDetails {
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Version == "" {
		p.Version = UnknownVersion
	}
	return &PackageDetails{
		Package:      p,
		Description:  UnknownVersion,
		Publisher:    UnknownVersion,
		Homepage:     UnknownVersion,
		License:      UnknownVersion,
		InstallerURL: UnknownVersion,
		ReleaseNotes: UnknownVersion,
		Fields:       map[string]string{},
	}
}

// Fill copies known keys from fields, the first non-empty key winning for
// each attribute.
func (d *PackageDetails) Fill(fields map[string]string, keys map[*string][]string) {
	for k, v := range fields {
		d.Fields[k] = v
	}
	for dst, names := range keys {
		for _, name := range names {
			if v := strings.TrimSpace(fields[name]); v != "" {
				*dst = v
				break
			}
		}
	}
}

// QueryKind selects a listing.
type QueryKind int

const (
	QueryInstalled QueryKind = iota
	QueryUpdates
	QuerySearch
)

func (k QueryKind) String() string {
	switch k {
	case QueryInstalled:
		return "installed"
	case QueryUpdates:
		return "updates"
	case QuerySearch:
		return "search"
	}
	return fmt.Sprintf("query(%d)", int(k))
}

// OperationKind selects an action on one package.
type OperationKind int

const (
	Install OperationKind = iota
	Update
	Uninstall
)

func (k OperationKind) String() string {
	switch k {
	case Install:
		return "install"
	case Update:
		return "update"
	case Uninstall:
		return "uninstall"
	}
	return fmt.Sprintf("operation(%d)", int(k))
}

// ParseOperationKind is the inverse of OperationKind.String.
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(s) {
	case "install":
		return Install, nil
	case "update", "upgrade":
		return Update, nil
	case "uninstall", "remove":
		return Uninstall, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Options are the per-operation choices a caller can make. Each is only
// honored when the manager's capabilities allow it.
type Options struct {
	Version       string `yaml:"version,omitempty"`
	Architecture  string `yaml:"architecture,omitempty"`
	Scope         string `yaml:"scope,omitempty"`
	Elevated      bool   `yaml:"elevated,omitempty"`
	Interactive   bool   `yaml:"interactive,omitempty"`
	SkipIntegrity bool   `yaml:"skip_integrity,omitempty"`
}

// HResult converts a Windows HRESULT such as 0x8A150011 to the signed exit
// code the executor reports for it.
func HResult(code uint32) int {
	return int(int32(code))
}
