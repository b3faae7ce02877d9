package aggregate

import (
	"slices"
	"testing"

	"omnipkg/pkg/manager"
)

func pkgEvent(mgr, id, version string) Event {
	d := &manager.Descriptor{Name: mgr}
	return Event{Type: EventPackage, Manager: mgr, Package: manager.Package{Name: id, ID: id, Version: version, Source: d}}
}

func describe(pkgs []manager.Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Manager() + ":" + p.ID + "@" + p.Version
	}
	return out
}

func TestResultSetCoalesces(t *testing.T) {
	rank := map[string]int{"winget": 0, "scoop": 1}
	s := NewResultSet(func(m string) int { return rank[m] })

	cached := pkgEvent("scoop", "git", "2.44")
	cached.Cached = true
	s.Add(cached)
	s.Add(pkgEvent("winget", "Git.Git", "2.45.1"))
	s.Add(pkgEvent("scoop", "7zip", "23.01"))
	s.Add(pkgEvent("scoop", "git", "2.45"))
	s.Add(Event{Type: EventFinished, Manager: "scoop", Status: StatusOK, Count: 3})

	want := []string{"winget:Git.Git@2.45.1", "scoop:git@2.45", "scoop:7zip@23.01"}
	if got := describe(s.Packages()); !slices.Equal(got, want) {
		t.Errorf("Packages() = %q, want %q", got, want)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d", s.Len())
	}
	if f := s.Finished(); len(f) != 1 || f["scoop"].Count != 3 {
		t.Errorf("Finished() = %+v", f)
	}
}

func TestResultSetSameIDDifferentManagers(t *testing.T) {
	s := NewResultSet(nil)
	s.Add(pkgEvent("pip", "black", "24.4"))
	s.Add(pkgEvent("npm", "black", "0.3"))
	if s.Len() != 2 {
		t.Errorf("records of different managers must not coalesce, got %d", s.Len())
	}
}

func TestResultSetUpgradable(t *testing.T) {
	s := NewResultSet(nil)
	ev := pkgEvent("winget", "Mozilla.Firefox", "126.0")
	ev.NewVersion = "127.0"
	s.Add(ev)
	s.Add(pkgEvent("winget", "Unknown.App", "1.0"))

	got := s.Upgradable()
	if len(got) != 2 || got[0].NewVersion != "127.0" || got[1].NewVersion != manager.UnknownVersion {
		t.Errorf("Upgradable() = %+v", got)
	}
}

func TestResultSetRanked(t *testing.T) {
	s := NewResultSet(nil)
	for _, id := range []string{"vscodium", "Microsoft.VisualStudioCode", "code-minimap", "neovim"} {
		s.Add(pkgEvent("winget", id, "1"))
	}

	got := s.Ranked("code")
	if len(got) != 4 {
		t.Fatalf("Ranked() returned %d records, want all 4", len(got))
	}
	if got[0].ID != "code-minimap" {
		t.Errorf("best match = %q, want code-minimap", got[0].ID)
	}
	if got[3].ID != "neovim" {
		t.Errorf("unmatched record should come last, got %q", got[3].ID)
	}
	if all := s.Ranked(""); all[0].ID != "vscodium" {
		t.Errorf("an empty query keeps arrival order, got %q first", all[0].ID)
	}
}

func TestCollect(t *testing.T) {
	ch := make(chan Event, 3)
	ch <- pkgEvent("npm", "typescript", "5.4.5")
	ch <- pkgEvent("npm", "typescript", "5.5.2")
	ch <- Event{Type: EventFinished, Manager: "npm"}
	close(ch)

	s := Collect(ch, nil)
	if got := describe(s.Packages()); !slices.Equal(got, []string{"npm:typescript@5.5.2"}) {
		t.Errorf("Packages() = %q", got)
	}
}
