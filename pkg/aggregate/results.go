package aggregate

import (
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"

	"omnipkg/pkg/manager"
)

type resultKey struct {
	manager string
	id      string
}

type result struct {
	ev  Event
	seq int
}

// ResultSet folds a dispatch stream into a listing. Records with the same
// manager and id are coalesced, the last one winning; a record keeps the
// position of its first arrival. Safe for concurrent use.
type ResultSet struct {
	mu       sync.Mutex
	rank     func(manager string) int
	items    map[resultKey]*result
	seq      int
	finished map[string]Event
}

// NewResultSet returns an empty set ordering managers by rank. A nil rank
// keeps arrival order.
func NewResultSet(rank func(manager string) int) *ResultSet {
	if rank == nil {
		rank = func(string) int { return 0 }
	}
	return &ResultSet{
		rank:     rank,
		items:    make(map[resultKey]*result),
		finished: make(map[string]Event),
	}
}

// Collect drains ch into a new set.
func Collect(ch <-chan Event, rank func(manager string) int) *ResultSet {
	s := NewResultSet(rank)
	for ev := range ch {
		s.Add(ev)
	}
	return s
}

// Add records one event.
func (s *ResultSet) Add(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == EventFinished {
		s.finished[ev.Manager] = ev
		return
	}
	k := resultKey{manager: ev.Manager, id: ev.Package.ID}
	if r, ok := s.items[k]; ok {
		r.ev = ev
		return
	}
	s.items[k] = &result{ev: ev, seq: s.seq}
	s.seq++
}

// Len returns the number of distinct records.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Finished returns the Finished event of every manager that reported one.
func (s *ResultSet) Finished() map[string]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Event, len(s.finished))
	for k, v := range s.finished {
		out[k] = v
	}
	return out
}

// Events returns the coalesced records ordered by manager rank, then
// arrival.
func (s *ResultSet) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*result, 0, len(s.items))
	for _, r := range s.items {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		ri, rj := s.rank(all[i].ev.Manager), s.rank(all[j].ev.Manager)
		if ri != rj {
			return ri < rj
		}
		return all[i].seq < all[j].seq
	})
	out := make([]Event, len(all))
	for i, r := range all {
		out[i] = r.ev
	}
	return out
}

// Packages returns the records of Events.
func (s *ResultSet) Packages() []manager.Package {
	evs := s.Events()
	out := make([]manager.Package, len(evs))
	for i, ev := range evs {
		out[i] = ev.Package
	}
	return out
}

// Upgradable returns the records of Events with their new versions.
func (s *ResultSet) Upgradable() []manager.UpgradablePackage {
	evs := s.Events()
	out := make([]manager.UpgradablePackage, len(evs))
	for i, ev := range evs {
		out[i] = ev.Upgradable()
	}
	return out
}

// packageSource matches a query against "name id".
type packageSource []manager.Package

func (p packageSource) String(i int) string { return p[i].Name + " " + p[i].ID }
func (p packageSource) Len() int            { return len(p) }

// Ranked orders the records by how well name and id match query, best
// first. Records the tool matched on something else (a description or a
// tag) follow in their usual order.
func (s *ResultSet) Ranked(query string) []manager.Package {
	pkgs := s.Packages()
	if query == "" {
		return pkgs
	}
	matches := fuzzy.FindFrom(query, packageSource(pkgs))
	out := make([]manager.Package, 0, len(pkgs))
	used := make([]bool, len(pkgs))
	for _, m := range matches {
		out = append(out, pkgs[m.Index])
		used[m.Index] = true
	}
	for i, p := range pkgs {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}
