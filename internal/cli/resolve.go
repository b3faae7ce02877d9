package cli

import (
	"context"
	"fmt"
	"strings"

	"omnipkg/internal/ui"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/manager"
)

// resolveTarget finds which manager a package id belongs to. A single
// --source manager is taken at its word. Otherwise installed packages are
// looked up in the installed listings and the rest through search; when
// several managers match the user picks one.
func resolveTarget(ctx context.Context, id string, installed bool) (manager.Package, error) {
	srcs := sources()
	if len(srcs) == 1 {
		if m, ok := eng.Registry().Get(srcs[0]); ok {
			return manager.Package{Name: id, ID: id, Version: manager.UnknownVersion, Source: m.Descriptor()}, nil
		}
	}

	var stream <-chan aggregate.Event
	var err error
	if installed {
		stream, err = eng.ListInstalled(ctx, srcs...)
	} else {
		stream, err = eng.Search(ctx, id, srcs...)
	}
	if err != nil {
		return manager.Package{}, err
	}

	var matches []manager.Package
	for _, p := range gather(stream, "Looking up "+id).Packages() {
		if strings.EqualFold(p.ID, id) || strings.EqualFold(p.Name, id) {
			matches = append(matches, p)
		}
	}
	return choose(id, matches)
}

// choose picks one of the managers offering id.
func choose(id string, matches []manager.Package) (manager.Package, error) {
	switch {
	case len(matches) == 0:
		return manager.Package{}, fmt.Errorf("%s: %w", id, ErrPackageNotFound)
	case len(matches) == 1:
		return matches[0], nil
	case cfg.General.AutoConfirm:
		// Matches are in manager priority order.
		return matches[0], nil
	case !ui.IsTerminal():
		return manager.Package{}, fmt.Errorf("%s: %w", id, ErrAmbiguous)
	}

	p, err := ui.SelectPackage(matches, fmt.Sprintf("%s is offered by several managers", id))
	if err != nil {
		return manager.Package{}, err
	}
	return *p, nil
}
