package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"slices"
	"testing"
	"time"

	"omnipkg/internal/config"
	"omnipkg/internal/executor"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/operation"
	"omnipkg/pkg/parser"
)

// fake is a manager driven by shell scripts. Listings print
// "id|version|newversion" lines; the package id is passed to info and
// operation scripts as $1.
type fake struct {
	desc                       manager.Descriptor
	installed, updates, search string
	info                       string
	ops                        map[manager.OperationKind]string
	policy                     cache.Policy
}

func newFake(name string, t manager.ManagerType) *fake {
	return &fake{
		desc: manager.Descriptor{
			Name:             name,
			DisplayName:      name,
			Type:             t,
			ExecutablePath:   "sh",
			Enabled:          true,
			QueryTimeout:     10 * time.Second,
			OperationTimeout: 10 * time.Second,
		},
		ops: map[manager.OperationKind]string{},
	}
}

var rows = parser.Delimited{Sep: "|", ID: 0, Name: -1, Version: 1, NewVersion: 2, Source: -1}

func (f *fake) script(script string, args ...string) (manager.Invocation, error) {
	if script == "" {
		return manager.Invocation{}, manager.ErrUnsupported
	}
	return manager.Invocation{Args: append([]string{"-c", script, "sh"}, args...), Grammar: rows}, nil
}

func (f *fake) Descriptor() *manager.Descriptor              { return &f.desc }
func (f *fake) Search(string) (manager.Invocation, error)    { return f.script(f.search) }
func (f *fake) ListInstalled() (manager.Invocation, error)   { return f.script(f.installed) }
func (f *fake) ListUpgradable() (manager.Invocation, error)  { return f.script(f.updates) }
func (f *fake) Info(id string) (manager.Invocation, error)   { return f.script(f.info, id) }
func (f *fake) Rules(manager.OperationKind) classify.Rules   { return classify.Common() }
func (f *fake) CachePolicy() cache.Policy                    { return f.policy }
func (f *fake) Install(id string, _ manager.Options) (manager.Invocation, error) {
	return f.script(f.ops[manager.Install], id)
}
func (f *fake) Update(id string, _ manager.Options) (manager.Invocation, error) {
	return f.script(f.ops[manager.Update], id)
}
func (f *fake) Uninstall(id string, _ manager.Options) (manager.Invocation, error) {
	return f.script(f.ops[manager.Uninstall], id)
}
func (f *fake) ParseInfo(id string, lines []string) *manager.PackageDetails {
	d := manager.NewPackageDetails(manager.Package{ID: id})
	d.Fill(parser.Fields(lines), map[*string][]string{
		&d.Name:        {"name"},
		&d.Version:     {"version"},
		&d.Description: {"description"},
	})
	return d
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newEngine(t *testing.T, cfg *config.Config, ms ...manager.Manager) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	runner := executor.New(false, false)
	runner.SetOutput(io.Discard)
	e, err := New(Options{
		Config:   cfg,
		Executor: runner,
		CacheDir: t.TempDir(),
		Managers: ms,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func drain(t *testing.T, ch <-chan aggregate.Event) []aggregate.Event {
	t.Helper()
	var evs []aggregate.Event
	timeout := time.After(20 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestSelectManagers(t *testing.T) {
	pip := newFake("pip", manager.TypeLanguage)
	npm := newFake("npm", manager.TypeLanguage)
	snap := newFake("snap", manager.TypeUniversal)
	off := newFake("flatpak", manager.TypeUniversal)
	off.desc.Enabled = false
	e := newEngine(t, nil, pip, npm, snap, off)

	tests := []struct {
		name    string
		sources []string
		want    []string
		wantErr error
	}{
		{name: "all enabled", want: []string{"snap", "pip", "npm"}},
		{name: "by name", sources: []string{"npm"}, want: []string{"npm"}},
		{name: "by type", sources: []string{"language"}, want: []string{"pip", "npm"}},
		{name: "no duplicates", sources: []string{"pip", "language"}, want: []string{"pip", "npm"}},
		{name: "disabled type member skipped", sources: []string{"universal"}, want: []string{"snap"}},
		{name: "disabled by name", sources: []string{"flatpak"}, wantErr: operation.ErrDisabled},
		{name: "unknown", sources: []string{"brew"}, wantErr: manager.ErrUnknownManager},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.selectManagers(tt.sources)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("selectManagers() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectManagers() error = %v", err)
			}
			var names []string
			for _, m := range got {
				names = append(names, m.Descriptor().Name)
			}
			if !slices.Equal(names, tt.want) {
				t.Errorf("selectManagers() = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestManagersIncludesDisabled(t *testing.T) {
	off := newFake("npm", manager.TypeLanguage)
	off.desc.Enabled = false
	e := newEngine(t, nil, newFake("pip", manager.TypeLanguage), off)

	var names []string
	for _, d := range e.Managers() {
		names = append(names, d.Name)
	}
	if !slices.Equal(names, []string{"pip", "npm"}) {
		t.Errorf("Managers() = %v", names)
	}
}

func TestSearch(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.search = `printf 'requests|2.32.3\nrequests-oauthlib|2.0.0\n'`
	npm := newFake("npm", manager.TypeLanguage)
	npm.search = "exit 1"
	e := newEngine(t, nil, pip, npm)

	if _, err := e.Search(context.Background(), ""); err == nil {
		t.Error("Search(\"\") should fail")
	}

	ch, err := e.Search(context.Background(), "requests")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	set := aggregate.NewResultSet(e.Rank)
	for _, ev := range drain(t, ch) {
		set.Add(ev)
	}

	if set.Len() != 2 {
		t.Errorf("records = %d, want 2", set.Len())
	}
	finished := set.Finished()
	if finished["pip"].Status != aggregate.StatusOK || finished["pip"].Count != 2 {
		t.Errorf("pip finished = %+v", finished["pip"])
	}
	if finished["npm"].Status != aggregate.StatusFailed {
		t.Errorf("npm status = %v, want failed", finished["npm"].Status)
	}
}

func TestListUpgradable(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.updates = `printf 'requests|2.31.0|2.32.3\nurllib3|1.26.0|\n'`
	e := newEngine(t, nil, pip)

	ch, err := e.ListUpgradable(context.Background())
	if err != nil {
		t.Fatalf("ListUpgradable() error = %v", err)
	}
	set := aggregate.NewResultSet(e.Rank)
	for _, ev := range drain(t, ch) {
		set.Add(ev)
	}
	got := map[string]string{}
	for _, u := range set.Upgradable() {
		got[u.ID] = u.NewVersion
	}
	if got["requests"] != "2.32.3" || got["urllib3"] != manager.UnknownVersion {
		t.Errorf("upgradable = %v", got)
	}
}

func TestListInstalledUsesCache(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.installed = `printf 'requests|2.32.3\n'`
	pip.policy = cache.Policy{Mode: cache.TTL, MaxAge: time.Hour}
	e := newEngine(t, nil, pip)

	first := listInstalled(t, e)
	if cached(first) {
		t.Fatal("first listing should not come from the cache")
	}
	if e.Cached("pip").Empty() {
		t.Fatal("listing was not cached")
	}

	pip.installed = "exit 1"
	second := listInstalled(t, e)
	if !cached(second) {
		t.Error("second listing should come from the cache")
	}
}

func listInstalled(t *testing.T, e *Engine) []aggregate.Event {
	t.Helper()
	ch, err := e.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("ListInstalled() error = %v", err)
	}
	return drain(t, ch)
}

func cached(evs []aggregate.Event) bool {
	for _, ev := range evs {
		if ev.Type == aggregate.EventPackage && ev.Cached {
			return true
		}
	}
	return false
}

func TestGetInfo(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.info = `printf 'Name: %s\nVersion: 2.32.3\nSummary: ignored\nDescription: HTTP for Humans.\n' "$1"; exit 1`
	missing := newFake("npm", manager.TypeLanguage)
	missing.desc.ExecutablePath = "omnipkg-missing-binary"
	missing.info = "true"
	noinfo := newFake("snap", manager.TypeUniversal)

	cfg := config.Default()
	cfg.Aliases = map[string]string{"req": "requests"}
	e := newEngine(t, cfg, pip, missing, noinfo)

	d, err := e.GetInfo(context.Background(), "req", "pip")
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if d.ID != "requests" || d.Name != "requests" || d.Version != "2.32.3" {
		t.Errorf("package = %+v", d.Package)
	}
	if d.Description != "HTTP for Humans." {
		t.Errorf("Description = %q", d.Description)
	}
	if d.Homepage != manager.UnknownVersion {
		t.Errorf("Homepage = %q, want unknown", d.Homepage)
	}
	if d.Manager() != "pip" {
		t.Errorf("Manager() = %q", d.Manager())
	}

	if _, err := e.GetInfo(context.Background(), "x", "npm"); !errors.Is(err, executor.ErrNotFound) {
		t.Errorf("missing executable error = %v", err)
	}
	if _, err := e.GetInfo(context.Background(), "x", "snap"); !errors.Is(err, manager.ErrUnsupported) {
		t.Errorf("unsupported info error = %v", err)
	}
	if _, err := e.GetInfo(context.Background(), "x", "brew"); !errors.Is(err, manager.ErrUnknownManager) {
		t.Errorf("unknown manager error = %v", err)
	}
}

func wait(t *testing.T, h *operation.Handle) operation.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return res
}

func TestExecuteUninstallForgetsPackage(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.ops[manager.Uninstall] = `echo "Successfully uninstalled $1"`
	cfg := config.Default()
	cfg.Aliases = map[string]string{"req": "requests"}
	e := newEngine(t, cfg, pip)
	if err := e.cache.Save("pip", []string{"requests|2.32.3|requests", "urllib3|2.2.0|urllib3"}); err != nil {
		t.Fatal(err)
	}

	h, err := e.Execute(context.Background(), manager.Uninstall, "req", "pip", manager.Options{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := h.Snapshot().PackageID; got != "requests" {
		t.Errorf("PackageID = %q, want alias resolved", got)
	}
	if res := wait(t, h); !res.Success() {
		t.Fatalf("result = %v", res)
	}

	if got := e.Cached("pip").Lines; !slices.Equal(got, []string{"urllib3|2.2.0|urllib3"}) {
		t.Errorf("cache = %v, want requests forgotten", got)
	}
}

func TestCloseAfterUninstallLeavesCacheUpdated(t *testing.T) {
	requireShell(t)

	npm := newFake("npm", manager.TypeLanguage)
	npm.policy = cache.Policy{Mode: cache.ServeStale}
	npm.ops[manager.Uninstall] = `echo "removed 1 package"`
	e := newEngine(t, nil, npm)
	if err := e.cache.Save("npm", []string{"left-pad|1.3.0|left-pad", "typescript|5.6.2|typescript"}); err != nil {
		t.Fatal(err)
	}

	h, err := e.Execute(context.Background(), manager.Uninstall, "left-pad", "npm", manager.Options{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for range h.Events() {
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := e.Cached("npm").Lines; !slices.Equal(got, []string{"typescript|5.6.2|typescript"}) {
		t.Errorf("cache after Close = %v, want left-pad forgotten", got)
	}
}

func TestExecuteClearsTTLCache(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.policy = cache.Policy{Mode: cache.TTL, MaxAge: time.Hour}
	pip.ops[manager.Install] = `echo "Successfully installed $1"`
	pip.ops[manager.Update] = "echo 'Hash mismatch'; exit 1"
	e := newEngine(t, nil, pip)
	if err := e.cache.Save("pip", []string{"urllib3|2.2.0|urllib3"}); err != nil {
		t.Fatal(err)
	}

	h, err := e.Execute(context.Background(), manager.Update, "urllib3", "pip", manager.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res := wait(t, h); res.Success() {
		t.Fatalf("failing update result = %v", res)
	}
	if e.Cached("pip").Empty() {
		t.Fatal("a failed operation must not touch the cache")
	}

	h, err = e.Execute(context.Background(), manager.Install, "requests", "pip", manager.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res := wait(t, h); !res.Success() {
		t.Fatalf("install result = %v", res)
	}
	if !e.Cached("pip").Empty() {
		t.Error("ttl cache was not cleared after install")
	}
}

func TestExecuteErrors(t *testing.T) {
	pip := newFake("pip", manager.TypeLanguage)
	off := newFake("npm", manager.TypeLanguage)
	off.desc.Enabled = false
	e := newEngine(t, nil, pip, off)

	tests := []struct {
		name    string
		mgr     string
		opts    manager.Options
		wantErr error
	}{
		{name: "unknown manager", mgr: "brew", wantErr: manager.ErrUnknownManager},
		{name: "disabled manager", mgr: "npm", wantErr: operation.ErrDisabled},
		{name: "missing verb", mgr: "pip", wantErr: manager.ErrUnsupported},
		{name: "unsupported option", mgr: "pip", opts: manager.Options{Elevated: true}, wantErr: manager.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), manager.Install, "requests", tt.mgr, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := e.Cancel("nope"); !errors.Is(err, operation.ErrNotFound) {
		t.Errorf("Cancel() error = %v", err)
	}
	if n := len(e.Active()); n != 0 {
		t.Errorf("Active() = %d operations", n)
	}
}

func TestRebuildAndClearCache(t *testing.T) {
	requireShell(t)

	pip := newFake("pip", manager.TypeLanguage)
	pip.installed = `printf 'requests|2.32.3\nurllib3|2.2.0\n'`
	npm := newFake("npm", manager.TypeLanguage)
	npm.installed = `printf 'typescript|5.4.5\n'`
	e := newEngine(t, nil, pip, npm)

	counts, err := e.RebuildCache(context.Background(), "")
	if err != nil {
		t.Fatalf("RebuildCache() error = %v", err)
	}
	if counts["pip"] != 2 || counts["npm"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	if err := e.ClearCache("pip"); err != nil {
		t.Fatal(err)
	}
	if !e.Cached("pip").Empty() || e.Cached("npm").Empty() {
		t.Error("ClearCache(pip) should only clear pip")
	}
	if err := e.ClearCache(""); err != nil {
		t.Fatal(err)
	}
	if !e.Cached("npm").Empty() {
		t.Error("ClearCache(\"\") should clear everything")
	}
	if err := e.ClearCache("brew"); !errors.Is(err, manager.ErrUnknownManager) {
		t.Errorf("ClearCache(brew) error = %v", err)
	}

	if _, err := e.RebuildCache(context.Background(), "brew"); !errors.Is(err, manager.ErrUnknownManager) {
		t.Errorf("RebuildCache(brew) error = %v", err)
	}
}
