//go:build !windows

package executor

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestStreamInteractive(t *testing.T) {
	requireShell(t)
	exec := New(false, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := shell(`if [ -t 1 ]; then echo terminal; else echo pipe; fi; exit 4`)
	c.Interactive = true
	lines, res, err := exec.Output(ctx, c)
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if !slices.Contains(lines, "terminal") {
		t.Errorf("lines = %q, want the tool to see a terminal", lines)
	}
	if res.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4", res.ExitCode)
	}
}
