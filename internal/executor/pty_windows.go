//go:build windows

package executor

import (
	"io"
	"os/exec"
)

// startPTY falls back to pipes; console tools on Windows write the same
// output either way.
func startPTY(cmd *exec.Cmd, stdin io.Reader) (*process, error) {
	cmd.Stdin = stdin
	return startPipe(cmd)
}
