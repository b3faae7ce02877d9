package manager

import (
	"fmt"

	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/parser"
)

// Invocation is one tool run as a manager would spell it: the verb and its
// arguments, plus the grammar that reads the output of a listing.
type Invocation struct {
	Args []string
	Env  []string
	// Grammar parses a listing's output. Unused for operations and info.
	Grammar parser.Grammar

	Elevated    bool
	Interactive bool
}

// Manager is the capability set of one tool variant. Verbs return an
// Invocation for the engine to run; they never run anything themselves.
// A verb the tool lacks returns ErrUnsupported.
type Manager interface {
	// Descriptor returns the tool's identity. It never changes.
	Descriptor() *Descriptor

	Search(query string) (Invocation, error)
	ListInstalled() (Invocation, error)
	ListUpgradable() (Invocation, error)
	Info(id string) (Invocation, error)

	Install(id string, opts Options) (Invocation, error)
	Update(id string, opts Options) (Invocation, error)
	Uninstall(id string, opts Options) (Invocation, error)

	// ParseInfo builds details from the output of Info.
	ParseInfo(id string, lines []string) *PackageDetails

	// Rules returns the classification table for an operation kind.
	Rules(kind OperationKind) classify.Rules

	// CachePolicy returns the staleness policy of the installed listing.
	CachePolicy() cache.Policy
}

// Describer is implemented by managers whose exit codes carry meaning
// beyond success and failure.
type Describer interface {
	// Describe returns a human-readable name for code. ok is false for
	// codes the tool does not document.
	Describe(code int) (msg string, ok bool)
}

// Query returns the invocation for a listing.
func Query(m Manager, kind QueryKind, text string) (Invocation, error) {
	switch kind {
	case QueryInstalled:
		return m.ListInstalled()
	case QueryUpdates:
		return m.ListUpgradable()
	case QuerySearch:
		return m.Search(text)
	}
	return Invocation{}, fmt.Errorf("%v: %w", kind, ErrUnsupported)
}

// Operate validates opts against the manager's capabilities and returns the
// invocation for an operation.
func Operate(m Manager, kind OperationKind, id string, opts Options) (Invocation, error) {
	if err := m.Descriptor().Capabilities.Check(opts); err != nil {
		return Invocation{}, err
	}
	var (
		inv Invocation
		err error
	)
	switch kind {
	case Install:
		inv, err = m.Install(id, opts)
	case Update:
		inv, err = m.Update(id, opts)
	case Uninstall:
		inv, err = m.Uninstall(id, opts)
	default:
		return Invocation{}, fmt.Errorf("%v: %w", kind, ErrUnsupported)
	}
	if err != nil {
		return Invocation{}, err
	}
	inv.Elevated = inv.Elevated || opts.Elevated
	inv.Interactive = inv.Interactive || opts.Interactive
	return inv, nil
}

// ToPackage converts a parsed row into a record attributed to d. A missing
// version becomes UnknownVersion.
func ToPackage(d *Descriptor, r parser.Row) Package {
	p := Package{Name: r.Name, ID: r.ID, Version: r.Version, Source: d}
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Version == "" {
		p.Version = UnknownVersion
	}
	return p
}

// ToUpgradable converts a parsed row of an updates listing.
func ToUpgradable(d *Descriptor, r parser.Row) UpgradablePackage {
	u := UpgradablePackage{Package: ToPackage(d, r), NewVersion: r.NewVersion}
	if u.NewVersion == "" {
		u.NewVersion = UnknownVersion
	}
	return u
}
