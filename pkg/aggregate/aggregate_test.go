package aggregate

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"omnipkg/internal/executor"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// pipeGrammar reads "id|version|newversion".
var pipeGrammar = parser.Delimited{Sep: "|", ID: 0, Name: -1, Version: 1, NewVersion: 2, Source: -1}

// scripted is a manager whose listings are shell scripts. An empty script
// makes the listing unsupported.
type scripted struct {
	desc                       manager.Descriptor
	installed, updates, search string
	grammar                    parser.Grammar
	policy                     cache.Policy
}

func newScripted(name string) *scripted {
	return &scripted{
		desc: manager.Descriptor{
			Name:           name,
			DisplayName:    name,
			ExecutablePath: "sh",
			Enabled:        true,
			QueryTimeout:   10 * time.Second,
		},
		grammar: pipeGrammar,
	}
}

func (s *scripted) listing(script string) (manager.Invocation, error) {
	if script == "" {
		return manager.Invocation{}, manager.ErrUnsupported
	}
	return manager.Invocation{Args: []string{"-c", script}, Grammar: s.grammar}, nil
}

func (s *scripted) Descriptor() *manager.Descriptor { return &s.desc }
func (s *scripted) Search(string) (manager.Invocation, error) {
	return s.listing(s.search)
}
func (s *scripted) ListInstalled() (manager.Invocation, error)  { return s.listing(s.installed) }
func (s *scripted) ListUpgradable() (manager.Invocation, error) { return s.listing(s.updates) }
func (s *scripted) Info(string) (manager.Invocation, error) {
	return manager.Invocation{}, manager.ErrUnsupported
}
func (s *scripted) Install(string, manager.Options) (manager.Invocation, error) {
	return manager.Invocation{}, manager.ErrUnsupported
}
func (s *scripted) Update(string, manager.Options) (manager.Invocation, error) {
	return manager.Invocation{}, manager.ErrUnsupported
}
func (s *scripted) Uninstall(string, manager.Options) (manager.Invocation, error) {
	return manager.Invocation{}, manager.ErrUnsupported
}
func (s *scripted) ParseInfo(id string, _ []string) *manager.PackageDetails {
	return manager.NewPackageDetails(manager.Package{ID: id})
}
func (s *scripted) Rules(manager.OperationKind) classify.Rules { return classify.Common() }
func (s *scripted) CachePolicy() cache.Policy                  { return s.policy }

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newAggregator(store *cache.Store, retries int) *Aggregator {
	return New(Options{Runner: executor.New(false, false), Cache: store, Retries: retries})
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var evs []Event
	timeout := time.After(20 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-timeout:
			t.Fatal("dispatch did not close its stream")
		}
	}
}

func finishedBy(evs []Event) map[string]Event {
	out := map[string]Event{}
	for _, ev := range evs {
		if ev.Type == EventFinished {
			out[ev.Manager] = ev
		}
	}
	return out
}

func idsOf(evs []Event, mgr string) []string {
	var ids []string
	for _, ev := range evs {
		if ev.Type == EventPackage && ev.Manager == mgr {
			ids = append(ids, ev.Package.ID)
		}
	}
	return ids
}

func TestDispatchFinishesEveryManager(t *testing.T) {
	requireShell(t)

	ok := newScripted("ok")
	ok.search = `printf 'a|1\nb|2\n'`
	missing := newScripted("missing")
	missing.desc.ExecutablePath = "omnipkg-missing-binary"
	missing.search = "true"
	failing := newScripted("failing")
	failing.search = "echo boom; exit 3"
	garbled := newScripted("garbled")
	garbled.grammar = parser.NewColumn(parser.Hints{IDLabel: "Id", VersionLabel: "Version"})
	garbled.search = "echo 'Keine Pakete gefunden'"
	none := newScripted("unsupported")

	managers := []manager.Manager{ok, missing, failing, garbled, none}
	evs := collect(t, newAggregator(nil, 0).Dispatch(context.Background(), managers, Query{Kind: manager.QuerySearch, Text: "a"}))

	var finished int
	for _, ev := range evs {
		if ev.Type == EventFinished {
			finished++
		}
	}
	if finished != len(managers) {
		t.Fatalf("got %d Finished events, want %d", finished, len(managers))
	}

	want := map[string]Status{
		"ok":          StatusOK,
		"missing":     StatusUnavailable,
		"failing":     StatusFailed,
		"garbled":     StatusUnrecognized,
		"unsupported": StatusUnsupported,
	}
	got := finishedBy(evs)
	for name, status := range want {
		if got[name].Status != status {
			t.Errorf("%s: status = %v (err %v), want %v", name, got[name].Status, got[name].Err, status)
		}
	}
	if got["ok"].Count != 2 {
		t.Errorf("ok: Count = %d, want 2", got["ok"].Count)
	}
	if ids := idsOf(evs, "ok"); !slices.Equal(ids, []string{"a", "b"}) {
		t.Errorf("ok records = %q", ids)
	}
}

func TestDispatchRecordsPrecedeFinished(t *testing.T) {
	requireShell(t)

	var managers []manager.Manager
	for _, name := range []string{"one", "two", "three"} {
		m := newScripted(name)
		m.updates = `for i in 1 2 3 4 5 6 7 8 9 10; do printf "p$i|1.$i|2.$i\n"; done`
		managers = append(managers, m)
	}
	evs := collect(t, newAggregator(nil, 0).Dispatch(context.Background(), managers, Query{Kind: manager.QueryUpdates}))

	done := map[string]bool{}
	seen := map[string][]string{}
	for _, ev := range evs {
		if done[ev.Manager] {
			t.Fatalf("event for %s after its Finished: %+v", ev.Manager, ev)
		}
		switch ev.Type {
		case EventFinished:
			done[ev.Manager] = true
		case EventPackage:
			seen[ev.Manager] = append(seen[ev.Manager], ev.Package.ID)
			if u := ev.Upgradable(); u.NewVersion == manager.UnknownVersion {
				t.Errorf("%s: missing new version", ev.Package.ID)
			}
		}
	}
	want := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
	for name, ids := range seen {
		if !slices.Equal(ids, want) {
			t.Errorf("%s: records out of order: %q", name, ids)
		}
	}
}

func TestDispatchNonzeroExitWithRows(t *testing.T) {
	requireShell(t)
	m := newScripted("npm")
	m.updates = `printf 'typescript|5.4.5|5.5.2\n'; exit 1`

	evs := collect(t, newAggregator(nil, 0).Dispatch(context.Background(), []manager.Manager{m}, Query{Kind: manager.QueryUpdates}))
	if f := finishedBy(evs)["npm"]; f.Status != StatusOK || f.Count != 1 {
		t.Errorf("Finished = %+v, want ok with one record", f)
	}
}

func TestDispatchRetries(t *testing.T) {
	requireShell(t)

	flaky := func(t *testing.T) *scripted {
		marker := filepath.Join(t.TempDir(), "ran")
		m := newScripted("flaky")
		m.search = `if [ -f '` + marker + `' ]; then printf 'a|1\n'; else touch '` + marker + `'; exit 1; fi`
		return m
	}

	tests := []struct {
		name    string
		retries int
		want    Status
		count   int
	}{
		{"retried once", 1, StatusOK, 1},
		{"no retries", 0, StatusFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := flaky(t)
			evs := collect(t, newAggregator(nil, tt.retries).Dispatch(context.Background(), []manager.Manager{m}, Query{Kind: manager.QuerySearch, Text: "a"}))
			f := finishedBy(evs)["flaky"]
			if f.Status != tt.want || f.Count != tt.count {
				t.Errorf("Finished = %+v, want %v with %d records", f, tt.want, tt.count)
			}
		})
	}
}

func TestDispatchInstalledIsNotRetried(t *testing.T) {
	requireShell(t)
	marker := filepath.Join(t.TempDir(), "ran")
	m := newScripted("once")
	m.installed = `if [ -f '` + marker + `' ]; then printf 'a|1\n'; else touch '` + marker + `'; exit 1; fi`

	evs := collect(t, newAggregator(nil, 3).Dispatch(context.Background(), []manager.Manager{m}, Query{Kind: manager.QueryInstalled}))
	if f := finishedBy(evs)["once"]; f.Status != StatusFailed {
		t.Errorf("Finished = %+v, want failed", f)
	}
}

func TestDispatchTimeout(t *testing.T) {
	requireShell(t)
	m := newScripted("hung")
	m.desc.QueryTimeout = 300 * time.Millisecond
	m.search = "sleep 10"

	start := time.Now()
	evs := collect(t, newAggregator(nil, 1).Dispatch(context.Background(), []manager.Manager{m}, Query{Kind: manager.QuerySearch, Text: "x"}))
	f := finishedBy(evs)["hung"]
	if f.Status != StatusTimeout || !(errors.Is(f.Err, executor.ErrTimeout) || errors.Is(f.Err, executor.ErrIdleTimeout)) {
		t.Errorf("Finished = %+v, want timeout", f)
	}
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("timeout took %v; timed-out runs must not be retried", elapsed)
	}
}

func TestDispatchCancelled(t *testing.T) {
	requireShell(t)
	m := newScripted("slow")
	m.search = "sleep 10"

	ctx, cancel := context.WithCancel(context.Background())
	ch := newAggregator(nil, 1).Dispatch(ctx, []manager.Manager{m}, Query{Kind: manager.QuerySearch, Text: "x"})
	time.AfterFunc(100*time.Millisecond, cancel)

	f := finishedBy(collect(t, ch))["slow"]
	if f.Status != StatusCancelled {
		t.Errorf("Finished = %+v, want cancelled", f)
	}
}

func TestDispatchLimit(t *testing.T) {
	requireShell(t)

	var ms []manager.Manager
	for _, name := range []string{"one", "two", "three"} {
		m := newScripted(name)
		m.search = "sleep 0.3; echo '" + name + "|1'"
		ms = append(ms, m)
	}
	agg := New(Options{Runner: executor.New(false, false), Limit: 1})

	start := time.Now()
	evs := collect(t, agg.Dispatch(context.Background(), ms, Query{Kind: manager.QuerySearch, Text: "x"}))
	if elapsed := time.Since(start); elapsed < 850*time.Millisecond {
		t.Errorf("three managers limited to one at a time took %v", elapsed)
	}
	finished := finishedBy(evs)
	for _, m := range ms {
		name := m.Descriptor().Name
		if f := finished[name]; f.Status != StatusOK || f.Count != 1 {
			t.Errorf("%s Finished = %+v", name, f)
		}
	}
}

func TestDispatchLimitCancelsWaiting(t *testing.T) {
	requireShell(t)

	slow := newScripted("slow")
	slow.search = "sleep 10"
	waiting := newScripted("waiting")
	waiting.search = "echo 'a|1'"
	agg := New(Options{Runner: executor.New(false, false), Limit: 1})

	ctx, cancel := context.WithCancel(context.Background())
	ch := agg.Dispatch(ctx, []manager.Manager{slow, waiting}, Query{Kind: manager.QuerySearch, Text: "x"})
	time.AfterFunc(100*time.Millisecond, cancel)

	finished := finishedBy(collect(t, ch))
	for _, name := range []string{"slow", "waiting"} {
		if f := finished[name]; f.Status != StatusCancelled {
			t.Errorf("%s Finished = %+v, want cancelled", name, f)
		}
	}
}

func TestDispatchNoManagers(t *testing.T) {
	evs := collect(t, newAggregator(nil, 0).Dispatch(context.Background(), nil, Query{Kind: manager.QueryInstalled}))
	if len(evs) != 0 {
		t.Errorf("got %d events from no managers", len(evs))
	}
}

func TestInstalledCachePolicies(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name       string
		policy     cache.Policy
		script     string
		wantIDs    []string
		wantCached int
		wantStatus Status
		wantErr    bool
		wantLines  []string
	}{
		{
			name:       "always lists",
			policy:     cache.Policy{Mode: cache.Always},
			script:     `printf 'new|2\n'`,
			wantIDs:    []string{"new"},
			wantStatus: StatusOK,
			wantLines:  []string{"new|2|new", "old|1|old"},
		},
		{
			name:       "serve stale then refresh",
			policy:     cache.Policy{Mode: cache.ServeStale},
			script:     `printf 'old|1.1\nnew|2\n'`,
			wantIDs:    []string{"old", "old", "new"},
			wantCached: 1,
			wantStatus: StatusOK,
			wantLines:  []string{"old|1.1|old", "new|2|new"},
		},
		{
			name:       "stale cache covers a failed refresh",
			policy:     cache.Policy{Mode: cache.ServeStale},
			script:     "exit 2",
			wantIDs:    []string{"old"},
			wantCached: 1,
			wantStatus: StatusOK,
			wantErr:    true,
			wantLines:  []string{"old|1|old"},
		},
		{
			name:       "fresh ttl skips the tool",
			policy:     cache.Policy{Mode: cache.TTL, MaxAge: time.Hour},
			script:     "exit 2",
			wantIDs:    []string{"old"},
			wantCached: 1,
			wantStatus: StatusOK,
			wantLines:  []string{"old|1|old"},
		},
		{
			name:       "expired ttl lists",
			policy:     cache.Policy{Mode: cache.TTL, MaxAge: time.Nanosecond},
			script:     "exit 2",
			wantStatus: StatusFailed,
			wantErr:    true,
			wantLines:  []string{"old|1|old"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.New(t.TempDir(), nil)
			if err := store.Save("fake", []string{"old|1|old"}); err != nil {
				t.Fatal(err)
			}
			m := newScripted("fake")
			m.policy = tt.policy
			m.installed = tt.script

			evs := collect(t, newAggregator(store, 0).Dispatch(context.Background(), []manager.Manager{m}, Query{Kind: manager.QueryInstalled}))

			if ids := idsOf(evs, "fake"); !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("records = %q, want %q", ids, tt.wantIDs)
			}
			var cached int
			for i, ev := range evs {
				if ev.Cached {
					cached++
					if i >= tt.wantCached {
						t.Errorf("cached record %q after fresh ones", ev.Package.ID)
					}
				}
			}
			if cached != tt.wantCached {
				t.Errorf("cached records = %d, want %d", cached, tt.wantCached)
			}
			f := finishedBy(evs)["fake"]
			if f.Status != tt.wantStatus || (f.Err != nil) != tt.wantErr {
				t.Errorf("Finished = %+v, want %v (err %v)", f, tt.wantStatus, tt.wantErr)
			}
			if got := store.Load("fake").Lines; !slices.Equal(got, tt.wantLines) {
				t.Errorf("cache = %q, want %q", got, tt.wantLines)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	requireShell(t)
	store := cache.New(t.TempDir(), nil)
	m := newScripted("fake")
	m.policy = cache.Policy{Mode: cache.TTL, MaxAge: time.Hour}
	m.installed = `printf 'a|1\nb|2\n'`

	n, err := newAggregator(store, 0).Refresh(context.Background(), m)
	if err != nil || n != 2 {
		t.Fatalf("Refresh() = %d, %v", n, err)
	}
	if got := store.Load("fake").Lines; !slices.Equal(got, []string{"a|1|a", "b|2|b"}) {
		t.Errorf("cache = %q", got)
	}

	m.installed = "exit 4"
	if _, err := newAggregator(store, 0).Refresh(context.Background(), m); err == nil {
		t.Error("Refresh() of a failing tool should fail")
	}
}
