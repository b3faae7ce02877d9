package cli

import (
	"fmt"
	"sort"

	"omnipkg/internal/ui"
	"omnipkg/pkg/aggregate"
)

// gather drains a dispatch stream behind a spinner and reports the
// managers that did not answer.
func gather(ch <-chan aggregate.Event, what string) *aggregate.ResultSet {
	set := aggregate.NewResultSet(eng.Rank)
	spin := ui.NewSpinner(what + "...")
	spin.Start()

	done := 0
	for ev := range ch {
		set.Add(ev)
		if ev.Type == aggregate.EventFinished {
			done++
			spin.UpdateMessage(fmt.Sprintf("%s... %d results, %d managers done", what, set.Len(), done))
		}
	}
	spin.Stop()

	reportManagers(set)
	return set
}

// reportManagers warns about managers whose part of a listing failed.
// Unsupported and unavailable managers only show up in verbose mode.
func reportManagers(set *aggregate.ResultSet) {
	finished := set.Finished()
	names := make([]string, 0, len(finished))
	for name := range finished {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return eng.Rank(names[i]) < eng.Rank(names[j]) })

	for _, name := range names {
		ev := finished[name]
		switch ev.Status {
		case aggregate.StatusOK:
			if ev.Err != nil {
				ui.WarningMsg("%s: served from cache, refresh failed: %v", name, ev.Err)
			}
		case aggregate.StatusUnsupported, aggregate.StatusUnavailable:
			if cfg.Output.Verbose {
				ui.MutedMsg("%s: %s", name, ev.Status)
			}
		default:
			if ev.Err != nil {
				ui.WarningMsg("%s: %s: %v", name, ev.Status, ev.Err)
			} else {
				ui.WarningMsg("%s: %s", name, ev.Status)
			}
		}
	}
}
