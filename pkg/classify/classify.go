// Package classify turns the output and exit status of an install, update or
// uninstall run into one normalized outcome.
//
// Classification has two layers. Line rules match literal text while the
// tool is running; they set a tentative outcome and advance a coarse
// progress counter. When the process exits, the manager's exit-code table is
// consulted and overrides the tentative outcome. A run that matches nothing
// succeeds on exit code 0 and fails otherwise, keeping the raw code.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"omnipkg/pkg/parser"
)

// Outcome is the terminal classification of an operation.
type Outcome int

const (
	// None means no evidence has been seen yet. It is never terminal.
	None Outcome = iota
	Succeeded
	Failed
	NeedsElevation
	NeedsRestart
	NoApplicableUpdate
	IncorrectIntegrityHash
)

var outcomeNames = map[Outcome]string{
	None:                   "none",
	Succeeded:              "succeeded",
	Failed:                 "failed",
	NeedsElevation:         "needs-elevation",
	NeedsRestart:           "needs-restart",
	NoApplicableUpdate:     "no-applicable-update",
	IncorrectIntegrityHash: "incorrect-integrity-hash",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for k, v := range outcomeNames {
		if v == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Success reports outcomes after which the package is in the requested
// state. NeedsRestart counts: the change was applied.
func (o Outcome) Success() bool {
	return o == Succeeded || o == NoApplicableUpdate || o == NeedsRestart
}

// Progress checkpoints. Progress never moves backwards.
const (
	Started     = 10
	Downloading = 40
	Verifying   = 60
	Installing  = 80
	Complete    = 100
)

// LineRule matches one output line. Contains is compared case-insensitively;
// Pattern, when set, is used instead.
type LineRule struct {
	Contains   string
	Pattern    *regexp.Regexp
	Outcome    Outcome
	Checkpoint int
}

func (r LineRule) match(lower, line string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(line)
	}
	return r.Contains != "" && strings.Contains(lower, strings.ToLower(r.Contains))
}

func (r LineRule) describe() string {
	if r.Pattern != nil {
		return r.Pattern.String()
	}
	return r.Contains
}

// Rules is one manager's classification table.
type Rules struct {
	ExitCodes map[int]Outcome
	Lines     []LineRule
}

// With returns r extended by more. Exit codes in r win; line rules of r are
// tried first.
func (r Rules) With(more Rules) Rules {
	out := Rules{
		ExitCodes: make(map[int]Outcome, len(r.ExitCodes)+len(more.ExitCodes)),
		Lines:     make([]LineRule, 0, len(r.Lines)+len(more.Lines)),
	}
	for code, o := range more.ExitCodes {
		out.ExitCodes[code] = o
	}
	for code, o := range r.ExitCodes {
		out.ExitCodes[code] = o
	}
	out.Lines = append(out.Lines, r.Lines...)
	out.Lines = append(out.Lines, more.Lines...)
	return out
}

// Source says which layer decided a verdict.
type Source string

const (
	FromExitCode Source = "exit-code"
	FromLine     Source = "line"
	FromDefault  Source = "default"
)

// Verdict is the final classification.
type Verdict struct {
	Outcome  Outcome
	ExitCode int
	Source   Source
	// Detail names the rule that decided, if any.
	Detail string
}

// Classifier follows one operation. It is not safe for concurrent use.
type Classifier struct {
	rules     Rules
	tentative Outcome
	detail    string
	progress  int
}

// New returns a classifier for rules.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Start records that the process was spawned.
func (c *Classifier) Start() int {
	c.advance(Started)
	return c.progress
}

// Observe feeds one output line. It returns the progress counter and
// whether it changed.
func (c *Classifier) Observe(line string) (progress int, changed bool) {
	line = parser.Clean(line)
	if line == "" {
		return c.progress, false
	}
	lower := strings.ToLower(line)
	for _, r := range c.rules.Lines {
		if !r.match(lower, line) {
			continue
		}
		if r.Outcome != None {
			c.tentative = r.Outcome
			c.detail = r.describe()
		}
		changed = c.advance(r.Checkpoint)
		break
	}
	return c.progress, changed
}

// Tentative returns the outcome suggested by the lines seen so far.
func (c *Classifier) Tentative() Outcome {
	return c.tentative
}

// Progress returns the current progress counter.
func (c *Classifier) Progress() int {
	return c.progress
}

// Finish classifies the run from its exit code and completes progress.
func (c *Classifier) Finish(exitCode int) Verdict {
	c.advance(Complete)
	if o, ok := c.rules.ExitCodes[exitCode]; ok {
		return Verdict{Outcome: o, ExitCode: exitCode, Source: FromExitCode, Detail: fmt.Sprintf("exit code %d", exitCode)}
	}
	if c.tentative != None {
		return Verdict{Outcome: c.tentative, ExitCode: exitCode, Source: FromLine, Detail: c.detail}
	}
	if exitCode == 0 {
		return Verdict{Outcome: Succeeded, ExitCode: 0, Source: FromDefault}
	}
	return Verdict{Outcome: Failed, ExitCode: exitCode, Source: FromDefault, Detail: fmt.Sprintf("exit code %d", exitCode)}
}

func (c *Classifier) advance(checkpoint int) bool {
	if checkpoint > c.progress {
		c.progress = checkpoint
		return true
	}
	return false
}

// Common returns the rules every manager shares. Manager tables extend it
// with Rules.With.
func Common() Rules {
	return Rules{
		ExitCodes: map[int]Outcome{},
		Lines: []LineRule{
			{Contains: "hash mismatch", Outcome: IncorrectIntegrityHash},
			{Contains: "hash does not match", Outcome: IncorrectIntegrityHash},
			{Contains: "checksum mismatch", Outcome: IncorrectIntegrityHash},
			{Contains: "requires admin", Outcome: NeedsElevation},
			{Contains: "run as administrator", Outcome: NeedsElevation},
			{Contains: "access is denied", Outcome: NeedsElevation},
			{Contains: "permission denied", Outcome: NeedsElevation},
			{Contains: "restart required", Outcome: NeedsRestart},
			{Contains: "reboot required", Outcome: NeedsRestart},
			{Contains: "requires a restart", Outcome: NeedsRestart},
			{Contains: "already installed", Outcome: NoApplicableUpdate},
			{Contains: "already up to date", Outcome: NoApplicableUpdate},
			{Contains: "installed successfully", Outcome: Succeeded, Checkpoint: Installing},
			{Contains: "successfully installed", Outcome: Succeeded, Checkpoint: Installing},
			{Contains: "successfully uninstalled", Outcome: Succeeded, Checkpoint: Installing},
			{Contains: "downloading", Checkpoint: Downloading},
			{Contains: "verif", Checkpoint: Verifying},
			{Contains: "installing", Checkpoint: Installing},
			{Contains: "uninstalling", Checkpoint: Installing},
		},
	}
}
