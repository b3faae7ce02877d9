package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"omnipkg/internal/ui"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/operation"
)

// failureTail is how many retained output lines are shown for a failed
// operation.
const failureTail = 10

// operationFlags are the per-operation options shared by install, update
// and uninstall.
type operationFlags struct {
	version     string
	arch        string
	scope       string
	elevated    bool
	interactive bool
	skipHash    bool
}

var opFlags operationFlags

func addOperationFlags(cmd *cobra.Command, withVersion bool) {
	f := cmd.Flags()
	if withVersion {
		f.StringVar(&opFlags.version, "version", "", "install a specific version")
	}
	f.StringVar(&opFlags.arch, "arch", "", "target architecture")
	f.StringVar(&opFlags.scope, "scope", "", "installation scope (user, machine)")
	f.BoolVar(&opFlags.elevated, "elevated", false, "run the manager as administrator")
	f.BoolVarP(&opFlags.interactive, "interactive", "i", false, "let the manager ask its own questions")
	f.BoolVar(&opFlags.skipHash, "skip-hash", false, "skip integrity checks")
}

func (f operationFlags) options() manager.Options {
	return manager.Options{
		Version:       f.version,
		Architecture:  f.arch,
		Scope:         f.scope,
		Elevated:      f.elevated,
		Interactive:   f.interactive,
		SkipIntegrity: f.skipHash,
	}
}

// runOperations resolves every package, asks once and runs them through
// the queue.
func runOperations(ctx context.Context, kind manager.OperationKind, ids []string) error {
	if len(ids) == 0 {
		return ErrNoPackages
	}

	var targets []manager.Package
	for _, id := range resolvePackages(ids) {
		p, err := resolveTarget(ctx, id, kind != manager.Install)
		if err != nil {
			return err
		}
		targets = append(targets, p)
	}

	ui.InfoMsg("%s %d package(s):", titleCase(kind.String()), len(targets))
	for _, p := range targets {
		ui.MutedMsg("  - %s from %s", p.ID, p.Source.DisplayName)
	}
	if err := confirm(fmt.Sprintf("Proceed with %s?", kind)); err != nil {
		return err
	}
	return submit(ctx, kind, withOptions(targets, opFlags.options()))
}

// target is one package to operate on.
type target struct {
	id      string
	manager string
	opts    manager.Options
}

func withOptions(pkgs []manager.Package, opts manager.Options) []target {
	out := make([]target, len(pkgs))
	for i, p := range pkgs {
		out[i] = target{id: p.ID, manager: p.Manager(), opts: opts}
	}
	return out
}

// submit queues one operation per target and follows them in order.
func submit(ctx context.Context, kind manager.OperationKind, targets []target) error {
	failed := 0
	var handles []*operation.Handle
	for _, t := range targets {
		h, err := eng.Execute(ctx, kind, t.id, t.manager, t.opts)
		if err != nil {
			ui.ErrorMsg("%s %s: %v", kind, t.id, err)
			failed++
			continue
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if !follow(h) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(targets), ErrOperationsFailed)
	}
	return nil
}

// follow shows an operation's progress until it ends and reports the
// result.
func follow(h *operation.Handle) bool {
	op := h.Snapshot()
	label := fmt.Sprintf("%s %s (%s)", progressive(op.Kind), op.PackageID, op.Manager)

	var spin *ui.Spinner
	if cfg.Output.Verbose {
		ui.InfoMsg("%s", label)
	} else {
		spin = ui.NewSpinner(label + "...")
		spin.Start()
	}

	progress, last := 0, ""
	for ev := range h.Events() {
		switch ev.Type {
		case operation.EventLine:
			if cfg.Output.Verbose {
				ui.MutedMsg("  %s", ev.Line)
				continue
			}
			if line := strings.TrimSpace(ev.Line); line != "" {
				last = line
			}
		case operation.EventProgress:
			progress = ev.Progress
		default:
			continue
		}
		if spin != nil {
			spin.UpdateMessage(fmt.Sprintf("%s... %d%% %s", label, progress, ui.Truncate(last, 50)))
		}
	}

	res := h.Result()
	msg := fmt.Sprintf("%s %s (%s): %s", op.Kind, op.PackageID, op.Manager, res)
	switch {
	case spin != nil && res.Success():
		spin.Success(msg)
	case spin != nil:
		spin.Error(msg)
	case res.Success():
		ui.SuccessMsg("%s", msg)
	default:
		ui.ErrorMsg("%s", msg)
	}

	if !res.Success() && !res.Cancelled && !cfg.Output.Verbose {
		out := h.Snapshot().Output
		if len(out) > failureTail {
			out = out[len(out)-failureTail:]
		}
		for _, line := range out {
			ui.MutedMsg("    %s", line)
		}
	}
	return res.Success()
}

func progressive(k manager.OperationKind) string {
	switch k {
	case manager.Install:
		return "Installing"
	case manager.Update:
		return "Updating"
	case manager.Uninstall:
		return "Uninstalling"
	}
	return titleCase(k.String())
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
