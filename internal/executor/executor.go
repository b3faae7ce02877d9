// Package executor runs package-manager tools as subprocesses and streams
// their console output line by line.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrNotFound is returned when the tool's executable cannot be found.
	ErrNotFound = errors.New("executable not found")

	// ErrTimeout is returned when a process outlives Command.Timeout.
	ErrTimeout = errors.New("process timed out")

	// ErrIdleTimeout is returned when a process prints nothing for
	// Command.IdleTimeout.
	ErrIdleTimeout = errors.New("process produced no output")
)

// waitDelay is how long output pipes stay open after the process was
// killed, in case a grandchild still holds them.
const waitDelay = 2 * time.Second

// Command describes one tool invocation.
type Command struct {
	Path string
	Args []string
	// Env is added to the current environment.
	Env []string
	// Stdin is connected to the process when set.
	Stdin io.Reader

	// Elevated runs the command through sudo (gsudo on Windows) unless the
	// process already has administrator rights.
	Elevated bool
	// Interactive attaches a pseudo-terminal so the tool renders as it
	// would for a user.
	Interactive bool
	// Mutates marks commands that change the system; dry-run skips them.
	Mutates bool

	// Timeout bounds the whole process, IdleTimeout the gap between two
	// lines. Zero disables either.
	Timeout     time.Duration
	IdleTimeout time.Duration

	// Encoding decodes output written in a legacy code page. A byte order
	// mark always wins; nil means UTF-8.
	Encoding encoding.Encoding
}

// String renders the command line for logs and dry-run output.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result describes a finished process.
type Result struct {
	// ExitCode is the process exit status as a signed 32-bit value, so
	// Windows HRESULT-style codes such as 0x8A150011 come out negative.
	// -1 means the process was killed.
	ExitCode int
	Duration time.Duration
	DryRun   bool
}

// Executor handles command execution with optional elevation.
type Executor struct {
	mu      sync.RWMutex
	dryRun  bool
	verbose bool
	out     io.Writer
	logger  *log.Logger
}

// New creates a new Executor with the given options.
func New(dryRun, verbose bool) *Executor {
	return &Executor{
		dryRun:  dryRun,
		verbose: verbose,
		out:     os.Stdout,
		logger:  log.New(io.Discard),
	}
}

// SetDryRun enables or disables dry-run mode.
func (e *Executor) SetDryRun(dryRun bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dryRun = dryRun
}

// SetVerbose enables or disables verbose mode.
func (e *Executor) SetVerbose(verbose bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verbose = verbose
}

// SetOutput sets where dry-run and verbose notices are printed.
func (e *Executor) SetOutput(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = w
}

// SetLogger sets the diagnostics logger. nil discards.
func (e *Executor) SetLogger(l *log.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l == nil {
		l = log.New(io.Discard)
	}
	e.logger = l
}

// DryRun reports whether mutating commands are skipped.
func (e *Executor) DryRun() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dryRun
}

// Stream runs c and calls onLine for every line of its merged stdout and
// stderr, in order, from the calling goroutine. Lines are split on "\n",
// "\r" and "\r\n" and have no length limit.
//
// A nonzero exit status is not an error; it is reported in Result. Errors
// are ErrNotFound, ErrNoPrivileges, ErrTimeout, ErrIdleTimeout, the context's
// error when ctx ends first, or a start failure.
func (e *Executor) Stream(ctx context.Context, c Command, onLine func(string)) (Result, error) {
	e.mu.RLock()
	dryRun, verbose, out, logger := e.dryRun, e.verbose, e.out, e.logger
	e.mu.RUnlock()

	if dryRun && c.Mutates {
		e.printDryRun(out, c)
		return Result{DryRun: true}, nil
	}

	name, args, err := resolve(c)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	if verbose {
		fmt.Fprintf(out, "Executing: %s %s\n", name, strings.Join(args, " "))
	}
	logger.Debug("exec", "cmd", c.String(), "elevated", c.Elevated, "interactive", c.Interactive)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if c.Timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, c.Timeout, ErrTimeout)
		defer stop()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	start := time.Now()
	var p *process
	if c.Interactive {
		p, err = startPTY(cmd, c.Stdin)
	} else {
		cmd.Stdin = c.Stdin
		p, err = startPipe(cmd)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return Result{ExitCode: -1}, fmt.Errorf("%s: %w", c.Path, ErrNotFound)
		}
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", c.Path, err)
	}

	var idle *time.Timer
	if c.IdleTimeout > 0 {
		idle = time.AfterFunc(c.IdleTimeout, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	readErr := scanLines(decode(p.out, c.Encoding), func(line string) {
		if idle != nil {
			idle.Reset(c.IdleTimeout)
		}
		onLine(line)
	})
	waitErr := p.wait()
	res := Result{ExitCode: -1, Duration: time.Since(start)}

	if cause := context.Cause(runCtx); errors.Is(cause, ErrTimeout) || errors.Is(cause, ErrIdleTimeout) {
		logger.Warn("killed", "cmd", c.String(), "reason", cause, "after", res.Duration)
		return res, cause
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		res.ExitCode = normalizeExitCode(exitErr.ExitCode())
	default:
		return res, waitErr
	}
	if readErr != nil && !c.Interactive {
		logger.Debug("read output", "cmd", c.String(), "err", readErr)
	}
	return res, nil
}

// Output runs c and collects its lines.
func (e *Executor) Output(ctx context.Context, c Command) ([]string, Result, error) {
	var lines []string
	res, err := e.Stream(ctx, c, func(line string) {
		lines = append(lines, line)
	})
	return lines, res, err
}

// resolve locates the executable and wraps it for elevation.
func resolve(c Command) (string, []string, error) {
	if c.Path == "" {
		return "", nil, ErrNotFound
	}
	full, err := exec.LookPath(c.Path)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", c.Path, ErrNotFound)
	}
	if !c.Elevated || isRoot() {
		return full, c.Args, nil
	}
	sudo, ok := sudoBinary()
	if !ok {
		return "", nil, ErrNoPrivileges
	}
	return sudo, append([]string{full}, c.Args...), nil
}

type process struct {
	out  io.Reader
	wait func() error
}

// startPipe merges stdout and stderr into one pipe. The pipe is closed once
// the process has exited and its output has been copied.
func startPipe(cmd *exec.Cmd) (*process, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		done <- err
	}()
	return &process{out: pr, wait: func() error { return <-done }}, nil
}

// decode turns raw process output into UTF-8. A byte order mark selects
// UTF-8 or UTF-16; otherwise enc (or UTF-8) applies. Invalid sequences
// become U+FFFD.
func decode(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == nil {
		enc = unicode.UTF8
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))
}

// scanLines splits r on "\n", "\r" and "\r\n".
func scanLines(r io.Reader, onLine func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), math.MaxInt32)
	sc.Split(splitLines)
	for sc.Scan() {
		onLine(sc.Text())
	}
	return sc.Err()
}

func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A lone trailing '\r' may be the first half of "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// normalizeExitCode reinterprets the status as a signed 32-bit value.
func normalizeExitCode(code int) int {
	return int(int32(uint32(code)))
}

func (e *Executor) printDryRun(w io.Writer, c Command) {
	if c.Elevated && !isRoot() {
		fmt.Fprintf(w, "[dry-run] Would execute (elevated): %s\n", c.String())
		return
	}
	fmt.Fprintf(w, "[dry-run] Would execute: %s\n", c.String())
}
