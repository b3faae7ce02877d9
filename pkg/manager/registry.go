package manager

import (
	"fmt"
	"sort"
	"sync"

	"omnipkg/internal/config"
	"omnipkg/pkg/manager/detector"
)

// Registry holds every known manager variant and orders them by the
// configured priority.
type Registry struct {
	managers map[string]Manager
	sysInfo  *detector.SystemInfo
	cfg      *config.Config
	mu       sync.RWMutex
}

// NewRegistry creates a new package manager registry.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		managers: make(map[string]Manager),
		cfg:      cfg,
	}
}

// Register adds a manager to the registry, replacing one of the same name.
func (r *Registry) Register(mgr Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[mgr.Descriptor().Name] = mgr
}

// Detect records the host system.
func (r *Registry) Detect() error {
	info, err := detector.Detect()
	if err != nil {
		return fmt.Errorf("failed to detect system: %w", err)
	}
	r.mu.Lock()
	r.sysInfo = info
	r.mu.Unlock()
	return nil
}

// SystemInfo returns the detected system information, nil before Detect.
func (r *Registry) SystemInfo() *detector.SystemInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sysInfo
}

// Get returns a specific manager by name.
func (r *Registry) Get(name string) (Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mgr, ok := r.managers[name]
	return mgr, ok
}

// All returns every registered manager in priority order.
func (r *Registry) All() []Manager {
	return r.filter(func(Manager) bool { return true })
}

// Enabled returns the managers enabled on this system, installed or not.
func (r *Registry) Enabled() []Manager {
	return r.filter(func(m Manager) bool { return m.Descriptor().Enabled })
}

// Available returns the enabled managers whose executable can be found.
func (r *Registry) Available() []Manager {
	return r.filter(func(m Manager) bool {
		d := m.Descriptor()
		return d.Enabled && d.Available()
	})
}

// AvailableByType returns available managers of a specific type.
func (r *Registry) AvailableByType(t ManagerType) []Manager {
	var out []Manager
	for _, m := range r.Available() {
		if m.Descriptor().Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) filter(keep func(Manager) bool) []Manager {
	r.mu.RLock()
	var out []Manager
	for _, mgr := range r.managers {
		if keep(mgr) {
			out = append(out, mgr)
		}
	}
	r.mu.RUnlock()

	r.sortByPriority(out)
	return out
}

// Resolve returns the manager for a source string. Source can be a manager
// name (e.g., "winget") or a type (e.g., "universal"), in which case the
// highest-priority available manager of that type is used.
func (r *Registry) Resolve(source string) (Manager, error) {
	if mgr, ok := r.Get(source); ok {
		d := mgr.Descriptor()
		if !d.Enabled {
			return nil, fmt.Errorf("package manager '%s' is disabled", source)
		}
		if !d.Available() {
			return nil, fmt.Errorf("package manager '%s' is not available on this system", source)
		}
		return mgr, nil
	}

	switch t := ManagerType(source); t {
	case TypeNative, TypeUniversal, TypeLanguage:
		managers := r.AvailableByType(t)
		if len(managers) == 0 {
			return nil, fmt.Errorf("no %s package managers available", t)
		}
		return managers[0], nil
	}

	return nil, fmt.Errorf("%s: %w", source, ErrUnknownManager)
}

// Rank returns the position of a manager name in the configured priority;
// unlisted names sort last.
func (r *Registry) Rank(name string) int {
	if r.cfg == nil {
		return 0
	}
	for i, n := range r.cfg.General.ManagerPriority {
		if n == name {
			return i
		}
	}
	return len(r.cfg.General.ManagerPriority)
}

// sortByPriority sorts managers by configured priority, then by name.
func (r *Registry) sortByPriority(managers []Manager) {
	sort.SliceStable(managers, func(i, j int) bool {
		ni, nj := managers[i].Descriptor().Name, managers[j].Descriptor().Name
		pi, pj := r.Rank(ni), r.Rank(nj)
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
}
