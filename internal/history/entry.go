// Package history records finished operations in a BoltDB file.
package history

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"omnipkg/pkg/operation"
)

// Entry is one finished operation.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Manager   string        `json:"manager"`
	Package   string        `json:"package"`
	Version   string        `json:"version,omitempty"`
	Command   string        `json:"command,omitempty"`
	Duration  time.Duration `json:"duration"`

	Outcome   string `json:"outcome"`
	Success   bool   `json:"success"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	ExitCode  int    `json:"exit_code"`

	// Output is the retained output tail, xz-compressed.
	Output []byte `json:"output,omitempty"`
}

// NewEntry builds an entry from a finished operation.
func NewEntry(op operation.Operation) (*Entry, error) {
	e := &Entry{
		ID:        op.ID,
		Timestamp: op.FinishedAt,
		Kind:      op.Kind.String(),
		Manager:   op.Manager,
		Package:   op.PackageID,
		Version:   op.Options.Version,
		Command:   op.Command,
		Outcome:   op.Result.Outcome.String(),
		Success:   op.Result.Success(),
		Cancelled: op.Result.Cancelled,
		Reason:    op.Result.Reason,
		Detail:    op.Result.Detail,
		ExitCode:  op.Result.ExitCode,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.ID == "" {
		e.ID = generateID(e.Timestamp)
	}
	if !op.StartedAt.IsZero() {
		e.Duration = e.Timestamp.Sub(op.StartedAt)
	}
	if len(op.Output) > 0 {
		out, err := compress(op.Output)
		if err != nil {
			return nil, fmt.Errorf("compressing output: %w", err)
		}
		e.Output = out
	}
	return e, nil
}

// Lines returns the retained output.
func (e *Entry) Lines() ([]string, error) {
	if len(e.Output) == 0 {
		return nil, nil
	}
	r, err := xz.NewReader(bytes.NewReader(e.Output))
	if err != nil {
		return nil, fmt.Errorf("creating xz reader: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}

func compress(lines []string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generateID(t time.Time) string {
	return t.Format("20060102150405.000000")
}

// FormatTime returns a human-readable timestamp.
func (e *Entry) FormatTime() string {
	return e.Timestamp.Format("2006-01-02 15:04:05")
}

// Status is the one-word result shown in listings.
func (e *Entry) Status() string {
	switch {
	case e.Cancelled:
		return "cancelled"
	case e.Success:
		return "success"
	}
	return "failed"
}

// Summary returns a brief summary of the operation.
func (e *Entry) Summary() string {
	s := fmt.Sprintf("%s %s %s [%s] (%s", e.FormatTime(), e.Kind, e.Package, e.Manager, e.Status())
	if !e.Success && !e.Cancelled {
		if e.Reason != "" {
			s += ": " + e.Reason
		} else {
			s += ": " + e.Outcome
		}
	}
	return s + ")"
}
