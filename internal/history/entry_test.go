package history

import (
	"slices"
	"strings"
	"testing"
	"time"

	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/operation"
)

func finished(id string, at time.Time, res operation.Result, output ...string) operation.Operation {
	return operation.Operation{
		ID:         id,
		PackageID:  "Git.Git",
		Manager:    "winget",
		Kind:       manager.Install,
		Options:    manager.Options{Version: "2.45.0"},
		State:      operation.Finished,
		Progress:   100,
		Command:    "winget install --id Git.Git --exact",
		Output:     output,
		Result:     res,
		QueuedAt:   at.Add(-3 * time.Second),
		StartedAt:  at.Add(-2 * time.Second),
		FinishedAt: at,
	}
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	op := finished("20240501120000-1", at, operation.Result{Outcome: classify.Succeeded}, "Downloading", "Successfully installed")

	e, err := NewEntry(op)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if e.ID != op.ID || e.Kind != "install" || e.Manager != "winget" || e.Package != "Git.Git" || e.Version != "2.45.0" {
		t.Errorf("entry = %+v", e)
	}
	if !e.Success || e.Outcome != classify.Succeeded.String() {
		t.Errorf("Success = %v, Outcome = %q", e.Success, e.Outcome)
	}
	if e.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", e.Duration)
	}

	lines, err := e.Lines()
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if !slices.Equal(lines, []string{"Downloading", "Successfully installed"}) {
		t.Errorf("Lines() = %q", lines)
	}
}

func TestNewEntryDefaults(t *testing.T) {
	e, err := NewEntry(operation.Operation{Kind: manager.Uninstall, Result: operation.Result{Outcome: classify.Failed, ExitCode: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("missing id or timestamp: %+v", e)
	}
	if e.Output != nil {
		t.Error("no output should compress to nothing")
	}
	if lines, err := e.Lines(); err != nil || lines != nil {
		t.Errorf("Lines() = %v, %v", lines, err)
	}
}

func TestEntryStatusAndSummary(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		res    operation.Result
		status string
		suffix string
	}{
		{
			name:   "success",
			res:    operation.Result{Outcome: classify.Succeeded},
			status: "success",
			suffix: "(success)",
		},
		{
			name:   "classified failure",
			res:    operation.Result{Outcome: classify.IncorrectIntegrityHash, ExitCode: 1},
			status: "failed",
			suffix: "(failed: " + classify.IncorrectIntegrityHash.String() + ")",
		},
		{
			name:   "timeout",
			res:    operation.Result{Outcome: classify.Failed, Reason: operation.ReasonTimeout, ExitCode: -1},
			status: "failed",
			suffix: "(failed: timeout)",
		},
		{
			name:   "cancelled",
			res:    operation.Result{Outcome: classify.Failed, Cancelled: true, Reason: operation.ReasonCancelled},
			status: "cancelled",
			suffix: "(cancelled)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEntry(finished("x", at, tt.res))
			if err != nil {
				t.Fatal(err)
			}
			if got := e.Status(); got != tt.status {
				t.Errorf("Status() = %q, want %q", got, tt.status)
			}
			s := e.Summary()
			if !strings.HasPrefix(s, "2024-05-01 12:00:00 install Git.Git [winget] ") {
				t.Errorf("Summary() = %q", s)
			}
			if !strings.HasSuffix(s, tt.suffix) {
				t.Errorf("Summary() = %q, want suffix %q", s, tt.suffix)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	if got := generateID(at); got != "20240501120000.123456" {
		t.Errorf("generateID() = %q", got)
	}
}
