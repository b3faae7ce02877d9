// Package bundle reads and writes package bundles: YAML lists of
// installed packages that can be installed again on another machine.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"omnipkg/pkg/manager"
)

// FormatVersion is the bundle format written by this package.
const FormatVersion = 1

// ErrInvalid is returned for bundles that cannot be imported.
var ErrInvalid = errors.New("invalid bundle")

// Bundle is a set of packages with the manager each came from.
type Bundle struct {
	Version    int       `yaml:"version"`
	ExportedAt time.Time `yaml:"exported_at"`
	Packages   []Package `yaml:"packages"`
}

// Package is one bundle entry. The options are passed to the install.
type Package struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name,omitempty"`
	Manager         string `yaml:"manager"`
	manager.Options `yaml:",inline"`
}

// New builds a bundle from installed packages. With pin set the installed
// versions are kept, except unknown ones.
func New(packages []manager.Package, pin bool) *Bundle {
	b := &Bundle{Version: FormatVersion, ExportedAt: time.Now().UTC().Truncate(time.Second)}
	for _, p := range packages {
		entry := Package{ID: p.ID, Manager: p.Manager()}
		if p.Name != p.ID {
			entry.Name = p.Name
		}
		if pin && p.Version != "" && p.Version != manager.UnknownVersion {
			entry.Options.Version = p.Version
		}
		b.Packages = append(b.Packages, entry)
	}
	return b
}

// Read decodes and validates a bundle.
func Read(r io.Reader) (*Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", ErrInvalid)
		}
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Load reads a bundle file.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Validate checks the format version and that every entry names a package
// and a manager.
func (b *Bundle) Validate() error {
	if b.Version != FormatVersion {
		return fmt.Errorf("unsupported version %d: %w", b.Version, ErrInvalid)
	}
	for i, p := range b.Packages {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Manager) == "" {
			return fmt.Errorf("entry %d: id and manager are required: %w", i+1, ErrInvalid)
		}
	}
	return nil
}

// Write encodes the bundle.
func (b *Bundle) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("marshaling bundle: %w", err)
	}
	return enc.Close()
}

// Save writes the bundle to path, creating its directory.
func (b *Bundle) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	if err := b.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Missing returns the entries not among the installed packages. Ids are
// compared case-insensitively within the same manager.
func (b *Bundle) Missing(installed []manager.Package) []Package {
	have := make(map[string]bool, len(installed))
	for _, p := range installed {
		have[key(p.Manager(), p.ID)] = true
	}
	var out []Package
	for _, p := range b.Packages {
		if !have[key(p.Manager, p.ID)] {
			out = append(out, p)
		}
	}
	return out
}

// Managers returns the distinct managers the bundle uses, in order of
// first appearance.
func (b *Bundle) Managers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range b.Packages {
		if !seen[p.Manager] {
			seen[p.Manager] = true
			out = append(out, p.Manager)
		}
	}
	return out
}

func key(managerName, id string) string {
	return managerName + "\x00" + strings.ToLower(id)
}
