//go:build windows

package executor

import "testing"

func TestCurrentPrivilegesWindows(t *testing.T) {
	p := CurrentPrivileges()
	if p.Elevated && p.Helper != "" {
		t.Errorf("an elevated process should not report a helper, got %q", p.Helper)
	}
	t.Logf("privileges: %s", p)
}
