package manager

import (
	"errors"
	"testing"

	"omnipkg/internal/config"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
)

// MockManager for testing
type MockManager struct {
	desc Descriptor
}

func newMock(name string, t ManagerType, enabled, available bool) *MockManager {
	path := "sh"
	if !available {
		path = "omnipkg-missing-binary"
	}
	return &MockManager{desc: Descriptor{Name: name, DisplayName: name, Type: t, Enabled: enabled, ExecutablePath: path}}
}

func (m *MockManager) Descriptor() *Descriptor                   { return &m.desc }
func (m *MockManager) Search(q string) (Invocation, error)       { return Invocation{Args: []string{"search", q}}, nil }
func (m *MockManager) ListInstalled() (Invocation, error)        { return Invocation{Args: []string{"list"}}, nil }
func (m *MockManager) ListUpgradable() (Invocation, error)       { return Invocation{}, ErrUnsupported }
func (m *MockManager) Info(id string) (Invocation, error)        { return Invocation{Args: []string{"show", id}}, nil }
func (m *MockManager) ParseInfo(id string, _ []string) *PackageDetails {
	return NewPackageDetails(Package{ID: id})
}
func (m *MockManager) Rules(OperationKind) classify.Rules { return classify.Rules{} }
func (m *MockManager) CachePolicy() cache.Policy          { return cache.Policy{} }

func (m *MockManager) Install(id string, _ Options) (Invocation, error) {
	return Invocation{Args: []string{"install", id}}, nil
}
func (m *MockManager) Update(id string, _ Options) (Invocation, error) {
	return Invocation{Args: []string{"upgrade", id}, Elevated: true}, nil
}
func (m *MockManager) Uninstall(id string, _ Options) (Invocation, error) {
	return Invocation{Args: []string{"remove", id}}, nil
}

func names(ms []Manager) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Descriptor().Name
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(config.Default())

	mock := newMock("winget", TypeNative, true, true)
	registry.Register(mock)

	mgr, ok := registry.Get("winget")
	if !ok || mgr != mock {
		t.Error("Get() should find registered manager")
	}
	if _, ok := registry.Get("nonexistent"); ok {
		t.Error("Get() should return false for non-existent manager")
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	registry := NewRegistry(config.Default())
	for _, n := range []string{"npm", "zzz", "winget", "aaa", "flatpak"} {
		registry.Register(newMock(n, TypeNative, true, true))
	}

	got := names(registry.All())
	want := []string{"winget", "flatpak", "npm", "aaa", "zzz"}
	if len(got) != len(want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("All() = %v, want %v", got, want)
		}
	}
}

func TestRegistryFilters(t *testing.T) {
	registry := NewRegistry(config.Default())
	registry.Register(newMock("winget", TypeNative, true, true))
	registry.Register(newMock("scoop", TypeNative, true, false))
	registry.Register(newMock("snap", TypeUniversal, false, true))
	registry.Register(newMock("pip", TypeLanguage, true, true))

	if got := names(registry.Enabled()); len(got) != 3 {
		t.Errorf("Enabled() = %v", got)
	}
	if got := names(registry.Available()); len(got) != 2 || got[0] != "winget" || got[1] != "pip" {
		t.Errorf("Available() = %v", got)
	}
	if got := names(registry.AvailableByType(TypeLanguage)); len(got) != 1 || got[0] != "pip" {
		t.Errorf("AvailableByType(language) = %v", got)
	}
	if got := registry.AvailableByType(TypeUniversal); len(got) != 0 {
		t.Errorf("a disabled manager is not available, got %v", names(got))
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(config.Default())
	registry.Register(newMock("winget", TypeNative, true, true))
	registry.Register(newMock("scoop", TypeNative, true, false))
	registry.Register(newMock("snap", TypeUniversal, false, true))

	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{"winget", "winget", false},
		{"native", "winget", false},
		{"scoop", "", true},
		{"snap", "", true},
		{"universal", "", true},
		{"brew", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			mgr, err := registry.Resolve(tt.source)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v, wantErr %v", tt.source, err, tt.wantErr)
			}
			if err == nil && mgr.Descriptor().Name != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.source, mgr.Descriptor().Name, tt.want)
			}
		})
	}

	if _, err := registry.Resolve("brew"); !errors.Is(err, ErrUnknownManager) {
		t.Errorf("unknown source error = %v, want ErrUnknownManager", err)
	}
}

func TestRegistrySystemInfo(t *testing.T) {
	registry := NewRegistry(config.Default())
	if registry.SystemInfo() != nil {
		t.Error("SystemInfo() should be nil before detection")
	}
	if err := registry.Detect(); err != nil {
		t.Logf("Detect() returned error (may be expected): %v", err)
	}
	if registry.SystemInfo() == nil {
		t.Error("SystemInfo() should not be nil after detection")
	}
}
