//go:build windows

package executor

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// isRoot returns true if the current process is running with administrator privileges on Windows.
func isRoot() bool {
	var sid *windows.SID

	// Get the SID for the Administrators group
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	// Check if the current process token is a member of the Administrators group
	token := windows.Token(0)
	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// sudoBinary returns gsudo, or the sudo built into Windows 11, whichever
// is found first on PATH.
func sudoBinary() (string, bool) {
	for _, name := range []string{"gsudo.exe", "sudo.exe"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}
