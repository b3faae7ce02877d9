package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shell(script string) Command {
	return Command{Path: "sh", Args: []string{"-c", script}}
}

func TestNew(t *testing.T) {
	exec := New(false, false)
	if exec == nil {
		t.Fatal("New() returned nil")
	}
	if exec.DryRun() {
		t.Error("New(false, false) should not be in dry-run mode")
	}
	exec.SetDryRun(true)
	if !exec.DryRun() {
		t.Error("SetDryRun(true) was not applied")
	}
}

func TestStreamLines(t *testing.T) {
	requireShell(t)
	exec := New(false, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	res, err := exec.Stream(ctx, shell(`printf 'a\nb\r\nc\rd'`), func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if want := []string{"a", "b", "c", "d"}; !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestStreamMergesStderr(t *testing.T) {
	requireShell(t)
	exec := New(false, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lines, _, err := exec.Output(ctx, shell(`echo out; echo err >&2`))
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if !slices.Contains(lines, "out") || !slices.Contains(lines, "err") {
		t.Errorf("lines = %q, want both streams", lines)
	}
}

func TestStreamExitCode(t *testing.T) {
	requireShell(t)
	exec := New(false, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := exec.Stream(ctx, shell(`echo partial; exit 3`), func(string) {})
	if err != nil {
		t.Fatalf("a nonzero exit should not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestStreamNotFound(t *testing.T) {
	exec := New(false, false)

	_, err := exec.Stream(context.Background(), Command{Path: "omnipkg-no-such-tool"}, func(string) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Stream() error = %v, want ErrNotFound", err)
	}

	_, err = exec.Stream(context.Background(), Command{}, func(string) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Stream() with empty path error = %v, want ErrNotFound", err)
	}
}

func TestStreamTimeout(t *testing.T) {
	requireShell(t)
	exec := New(false, false)

	c := shell(`echo started; sleep 10`)
	c.Timeout = 200 * time.Millisecond
	start := time.Now()
	res, err := exec.Stream(context.Background(), c, func(string) {})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Stream() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("process was not killed promptly: %v", elapsed)
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestStreamIdleTimeout(t *testing.T) {
	requireShell(t)
	exec := New(false, false)

	c := shell(`echo started; sleep 10`)
	c.IdleTimeout = 200 * time.Millisecond
	var lines []string
	_, err := exec.Stream(context.Background(), c, func(line string) {
		lines = append(lines, line)
	})
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("Stream() error = %v, want ErrIdleTimeout", err)
	}
	if !slices.Equal(lines, []string{"started"}) {
		t.Errorf("lines = %q", lines)
	}
}

func TestStreamIdleTimeoutResetsOnOutput(t *testing.T) {
	requireShell(t)
	exec := New(false, false)

	c := shell(`for i in 1 2 3 4 5; do echo $i; sleep 0.2; done`)
	c.IdleTimeout = 2 * time.Second
	lines, _, err := exec.Output(context.Background(), c)
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if len(lines) != 5 {
		t.Errorf("expected 5 lines, got %q", lines)
	}
}

func TestStreamContextCancellation(t *testing.T) {
	requireShell(t)
	exec := New(false, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := exec.Stream(ctx, shell(`echo ready; sleep 10`), func(line string) {
		if line == "ready" {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Stream() error = %v, want context.Canceled", err)
	}
}

func TestStreamDryRun(t *testing.T) {
	exec := New(true, false)
	var out bytes.Buffer
	exec.SetOutput(&out)

	// Mutating commands are only printed, even if they would fail.
	res, err := exec.Stream(context.Background(), Command{Path: "omnipkg-no-such-tool", Args: []string{"install", "x"}, Mutates: true}, func(string) {
		t.Error("no output expected in dry-run mode")
	})
	if err != nil {
		t.Fatalf("Stream() in dry-run mode error: %v", err)
	}
	if !res.DryRun || res.ExitCode != 0 {
		t.Errorf("Result = %+v, want dry-run success", res)
	}
	if !strings.Contains(out.String(), "[dry-run] Would execute: omnipkg-no-such-tool install x") {
		t.Errorf("dry-run notice = %q", out.String())
	}
}

func TestStreamDryRunStillQueries(t *testing.T) {
	requireShell(t)
	exec := New(true, false)
	exec.SetOutput(&bytes.Buffer{})

	lines, res, err := exec.Output(context.Background(), shell(`echo listing`))
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if res.DryRun || !slices.Equal(lines, []string{"listing"}) {
		t.Errorf("read-only commands should run in dry-run mode, got %q (%+v)", lines, res)
	}
}

func TestStreamDecoding(t *testing.T) {
	requireShell(t)
	exec := New(false, false)

	tests := []struct {
		name   string
		script string
		cmd    func(Command) Command
		want   []string
	}{
		{
			name:   "utf-16 with byte order mark",
			script: `printf '\377\376h\000i\000\n\000'`,
			want:   []string{"hi"},
		},
		{
			name:   "utf-8 byte order mark is dropped",
			script: `printf '\357\273\277ok\n'`,
			want:   []string{"ok"},
		},
		{
			name:   "legacy code page",
			script: `printf 'caf\202\n'`,
			cmd: func(c Command) Command {
				c.Encoding = charmap.CodePage850
				return c
			},
			want: []string{"café"},
		},
		{
			name:   "invalid utf-8 is replaced",
			script: `printf 'caf\351\n'`,
			want:   []string{"caf�"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := shell(tt.script)
			if tt.cmd != nil {
				c = tt.cmd(c)
			}
			lines, _, err := exec.Output(context.Background(), c)
			if err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			if !slices.Equal(lines, tt.want) {
				t.Errorf("lines = %q, want %q", lines, tt.want)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\nb\r\n", []string{"a", "b"}},
		{"10%\r50%\r100%\ndone", []string{"10%", "50%", "100%", "done"}},
		{"a\n\nb", []string{"a", "", "b"}},
		{"trailing\r", []string{"trailing"}},
	}

	for _, tt := range tests {
		var got []string
		if err := scanLines(strings.NewReader(tt.in), func(line string) { got = append(got, line) }); err != nil {
			t.Fatalf("scanLines(%q) error: %v", tt.in, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("scanLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 1<<20)
	var got []string
	if err := scanLines(strings.NewReader(long+"\nend"), func(line string) { got = append(got, line) }); err != nil {
		t.Fatalf("scanLines() error: %v", err)
	}
	if len(got) != 2 || len(got[0]) != len(long) {
		t.Errorf("long line was not delivered intact")
	}
}

func TestNormalizeExitCode(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{3, 3},
		{-1, -1},
		{0x8A150011, -1978335215},
		{3010, 3010},
	}
	for _, tt := range tests {
		if got := normalizeExitCode(tt.in); got != tt.want {
			t.Errorf("normalizeExitCode(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLookupEncoding(t *testing.T) {
	if enc, err := LookupEncoding(""); enc != nil || err != nil {
		t.Errorf("LookupEncoding(\"\") = %v, %v", enc, err)
	}
	for _, name := range []string{"windows-1252", "shift_jis", "cp850"} {
		if enc, err := LookupEncoding(name); err != nil || enc == nil {
			t.Errorf("LookupEncoding(%q) = %v, %v", name, enc, err)
		}
	}
	if _, err := LookupEncoding("no-such-charset"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Path: "winget", Args: []string{"install", "--id", "Git.Git"}}
	if got := c.String(); got != "winget install --id Git.Git" {
		t.Errorf("String() = %q", got)
	}
}
