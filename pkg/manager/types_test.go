package manager

import (
	"errors"
	"slices"
	"testing"
	"time"

	"omnipkg/pkg/parser"
)

func TestCapabilitiesCheck(t *testing.T) {
	all := Capabilities{true, true, true, true, true, true}
	tests := []struct {
		name string
		caps Capabilities
		opts Options
		ok   bool
	}{
		{"no options", Capabilities{}, Options{}, true},
		{"everything allowed", all, Options{Version: "1.0", Architecture: "x64", Scope: "user", Elevated: true, Interactive: true, SkipIntegrity: true}, true},
		{"version", Capabilities{}, Options{Version: "1.0"}, false},
		{"architecture", Capabilities{}, Options{Architecture: "arm64"}, false},
		{"scope", Capabilities{}, Options{Scope: "machine"}, false},
		{"elevated", Capabilities{}, Options{Elevated: true}, false},
		{"interactive", Capabilities{}, Options{Interactive: true}, false},
		{"skip integrity", Capabilities{CanRunAsAdmin: true}, Options{SkipIntegrity: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.caps.Check(tt.opts)
			if (err == nil) != tt.ok {
				t.Fatalf("Check() = %v, ok %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrUnsupported) {
				t.Errorf("Check() = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestDescriptorCommands(t *testing.T) {
	d := &Descriptor{
		Name:             "winget",
		ExecutablePath:   "winget",
		ExtraArgs:        []string{"--disable-interactivity"},
		Env:              []string{"A=1"},
		OperationTimeout: time.Hour,
		QueryTimeout:     3 * time.Minute,
		IdleTimeout:      20 * time.Minute,
	}
	inv := Invocation{Args: []string{"list"}, Env: []string{"B=2"}}

	q := d.QueryCommand(inv)
	if !slices.Equal(q.Args, []string{"list", "--disable-interactivity"}) {
		t.Errorf("query args = %q", q.Args)
	}
	if !slices.Equal(q.Env, []string{"A=1", "B=2"}) {
		t.Errorf("query env = %q", q.Env)
	}
	if q.Mutates || q.Timeout != 3*time.Minute || q.IdleTimeout != 3*time.Minute {
		t.Errorf("query command = %+v", q)
	}

	inv.Elevated = true
	op := d.OperationCommand(inv)
	if !op.Mutates || !op.Elevated || op.Timeout != time.Hour || op.IdleTimeout != 20*time.Minute {
		t.Errorf("operation command = %+v", op)
	}
	if !slices.Equal(inv.Args, []string{"list"}) {
		t.Errorf("building a command modified the invocation: %q", inv.Args)
	}
}

func TestOperate(t *testing.T) {
	m := newMock("winget", TypeNative, true, true)
	m.desc.Capabilities = Capabilities{CanRunInteractively: true}

	inv, err := Operate(m, Install, "Git.Git", Options{Interactive: true})
	if err != nil {
		t.Fatal(err)
	}
	if !inv.Interactive || !slices.Equal(inv.Args, []string{"install", "Git.Git"}) {
		t.Errorf("Operate(install) = %+v", inv)
	}

	// Elevation asked for by the manager itself survives.
	inv, err = Operate(m, Update, "Git.Git", Options{})
	if err != nil || !inv.Elevated {
		t.Errorf("Operate(update) = %+v, %v", inv, err)
	}

	if _, err := Operate(m, Uninstall, "Git.Git", Options{Elevated: true}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unsupported option error = %v", err)
	}
	if _, err := Operate(m, OperationKind(9), "x", Options{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestQuery(t *testing.T) {
	m := newMock("winget", TypeNative, true, true)
	inv, err := Query(m, QuerySearch, "git")
	if err != nil || !slices.Equal(inv.Args, []string{"search", "git"}) {
		t.Errorf("Query(search) = %+v, %v", inv, err)
	}
	if _, err := Query(m, QueryUpdates, ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Query(updates) error = %v", err)
	}
}

func TestOperationKindText(t *testing.T) {
	for _, k := range []OperationKind{Install, Update, Uninstall} {
		got, err := ParseOperationKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseOperationKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if k, _ := ParseOperationKind("remove"); k != Uninstall {
		t.Errorf("remove should mean uninstall, got %v", k)
	}
	if _, err := ParseOperationKind("reinstall"); err == nil {
		t.Error("ParseOperationKind(reinstall) should fail")
	}
}

func TestToPackage(t *testing.T) {
	d := &Descriptor{Name: "scoop"}
	p := ToPackage(d, parser.Row{ID: "git"})
	if p.Name != "git" || p.Version != UnknownVersion || p.Manager() != "scoop" {
		t.Errorf("ToPackage() = %+v", p)
	}
	u := ToUpgradable(d, parser.Row{ID: "git", Version: "2.44", NewVersion: "2.45"})
	if u.NewVersion != "2.45" || u.Version != "2.44" {
		t.Errorf("ToUpgradable() = %+v", u)
	}
	if (Package{}).Manager() != "" {
		t.Error("a package without source has no manager")
	}
}

func TestPackageDetailsFill(t *testing.T) {
	d := NewPackageDetails(Package{ID: "Git.Git"})
	if d.Name != "Git.Git" || d.Description != UnknownVersion || d.License != UnknownVersion {
		t.Fatalf("NewPackageDetails() = %+v", d)
	}

	d.Fill(map[string]string{"description": "  ", "about": "Fast VCS", "homepage": "https://git-scm.com"},
		map[*string][]string{
			&d.Description: {"description", "about"},
			&d.Homepage:    {"homepage"},
			&d.License:     {"license"},
		})
	if d.Description != "Fast VCS" || d.Homepage != "https://git-scm.com" || d.License != UnknownVersion {
		t.Errorf("Fill() = %+v", d)
	}
	if d.Fields["about"] != "Fast VCS" {
		t.Errorf("Fields = %v", d.Fields)
	}
}

func TestHResult(t *testing.T) {
	if got := HResult(0x8A150011); got != -1978335215 {
		t.Errorf("HResult(0x8A150011) = %d", got)
	}
	if got := HResult(740); got != 740 {
		t.Errorf("HResult(740) = %d", got)
	}
}
