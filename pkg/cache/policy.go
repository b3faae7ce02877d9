package cache

import (
	"fmt"
	"time"
)

// Mode selects how a manager's cached listing is used.
type Mode int

const (
	// Always ignores the cache and lists synchronously every time.
	Always Mode = iota
	// ServeStale serves whatever is cached right away and refreshes in
	// the background.
	ServeStale
	// TTL serves the cache while it is younger than MaxAge and rebuilds
	// synchronously afterwards.
	TTL
)

func (m Mode) String() string {
	switch m {
	case Always:
		return "always"
	case ServeStale:
		return "serve-stale"
	case TTL:
		return "ttl"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Policy is a manager's staleness policy.
type Policy struct {
	Mode   Mode
	MaxAge time.Duration
}

func (p Policy) String() string {
	if p.Mode == TTL {
		return fmt.Sprintf("ttl %s", p.MaxAge)
	}
	return p.Mode.String()
}

// Decision tells the caller what to do with an entry.
type Decision struct {
	// Serve means the entry's records may be emitted.
	Serve bool
	// Refresh means the tool must be run.
	Refresh bool
	// Sync means the refresh must finish before the listing is complete.
	// A refresh with Sync false runs after the served records.
	Sync bool
}

// Decide applies the policy to an entry at time now.
func (p Policy) Decide(e Entry, now time.Time) Decision {
	if e.Empty() {
		return Decision{Refresh: true, Sync: true}
	}
	switch p.Mode {
	case ServeStale:
		return Decision{Serve: true, Refresh: true}
	case TTL:
		if now.Sub(e.RefreshedAt) < p.MaxAge {
			return Decision{Serve: true}
		}
		return Decision{Refresh: true, Sync: true}
	}
	return Decision{Refresh: true, Sync: true}
}
