//go:build !windows

package executor

import (
	"os"
	"os/exec"
	"testing"
)

func TestCurrentPrivilegesUnix(t *testing.T) {
	p := CurrentPrivileges()
	if p.Elevated != (os.Geteuid() == 0) {
		t.Errorf("Elevated = %v with euid %d", p.Elevated, os.Geteuid())
	}
	if p.Elevated {
		return
	}
	_, err := exec.LookPath("sudo")
	if (p.Helper != "") != (err == nil) {
		t.Errorf("Helper = %q, sudo lookup err = %v", p.Helper, err)
	}
}
