//go:build !windows

package executor

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// startPTY runs cmd on a pseudo-terminal. Output is read until the terminal
// reports EIO, which Linux does once the process has exited.
func startPTY(cmd *exec.Cmd, stdin io.Reader) (*process, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 200})
	if err != nil {
		return nil, err
	}
	if stdin != nil {
		go io.Copy(f, stdin) //nolint:errcheck
	}
	return &process{
		out: eioReader{f},
		wait: func() error {
			err := cmd.Wait()
			f.Close()
			return err
		},
	}, nil
}

// eioReader turns the EIO a closed pseudo-terminal returns into io.EOF.
type eioReader struct {
	r io.Reader
}

func (e eioReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}
