// Package operation runs install, update and uninstall requests through an
// admission-controlled queue.
//
// A request is admitted unless an operation for the same package and
// manager is still queued or running. Admitted operations run on a bounded
// number of workers; each one streams its output through the manager's
// classifier and ends with exactly one Done event.
package operation

import (
	"errors"
	"fmt"
	"time"

	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
)

var (
	// ErrAlreadyPending is returned when the package already has a queued
	// or running operation on that manager.
	ErrAlreadyPending = errors.New("an operation for this package is already pending")

	// ErrUnknownManager is returned for a manager name the queue cannot
	// resolve.
	ErrUnknownManager = manager.ErrUnknownManager

	// ErrUnsupported is returned for a verb or option the manager lacks.
	ErrUnsupported = manager.ErrUnsupported

	// ErrNotFound is returned by Cancel for an id that is not active.
	ErrNotFound = errors.New("operation not found")

	// ErrDisabled is returned when the manager is disabled.
	ErrDisabled = errors.New("package manager is disabled")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("operation queue closed")
)

// Reasons qualify a Failed outcome.
const (
	ReasonCancelled    = "cancelled"
	ReasonTimeout      = "timeout"
	ReasonUnavailable  = "unavailable"
	ReasonNoPrivileges = "no privileges"
	ReasonDryRun       = "dry run"
)

// State is where an operation is in its lifecycle.
type State int

const (
	Queued State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request asks for one operation.
type Request struct {
	Kind      manager.OperationKind
	PackageID string
	Manager   string
	Options   manager.Options
}

// Result is the terminal classification of an operation.
type Result struct {
	Outcome classify.Outcome
	// Cancelled is set when the operation was stopped. Outcome is Failed.
	Cancelled bool
	// Reason qualifies a failure that did not come from the tool, such as
	// ReasonTimeout.
	Reason   string
	ExitCode int
	// Detail names the line rule or exit code the outcome came from.
	Detail string
}

// Success reports whether the package ended in the requested state.
func (r Result) Success() bool {
	return !r.Cancelled && r.Outcome.Success()
}

func (r Result) String() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Reason != "":
		return fmt.Sprintf("%s (%s)", r.Outcome, r.Reason)
	case r.Detail != "":
		return fmt.Sprintf("%s (%s)", r.Outcome, r.Detail)
	}
	return r.Outcome.String()
}

// Operation is a snapshot of one tracked operation.
type Operation struct {
	ID        string
	PackageID string
	Manager   string
	Kind      manager.OperationKind
	Options   manager.Options
	State     State
	Progress  int
	// Command is the command line that was run, set once running.
	Command string
	// Output holds the most recent lines of output.
	Output []string
	// Result is valid once State is Finished.
	Result Result

	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// EventType names an operation event.
type EventType int

const (
	EventQueued EventType = iota
	EventRunning
	EventLine
	EventProgress
	EventDone
)

func (t EventType) String() string {
	switch t {
	case EventQueued:
		return "queued"
	case EventRunning:
		return "running"
	case EventLine:
		return "line"
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is one notice about an operation.
type Event struct {
	Type EventType
	ID   string
	// Line is set for EventLine.
	Line string
	// Progress is set for EventProgress and EventDone.
	Progress int
	// Result is set for EventDone.
	Result Result
}

// Recorder persists finished operations.
type Recorder interface {
	Record(op Operation) error
}
