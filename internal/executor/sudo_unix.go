//go:build !windows

package executor

import (
	"os"
	"os/exec"
)

// isRoot returns true if the current process is running as root.
func isRoot() bool {
	return os.Geteuid() == 0
}

// sudoBinary returns the path of sudo if it is installed.
func sudoBinary() (string, bool) {
	path, err := exec.LookPath("sudo")
	return path, err == nil
}
