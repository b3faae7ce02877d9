package executor

import (
	"errors"
	"strings"
	"testing"
)

func TestPrivileges(t *testing.T) {
	tests := []struct {
		name       string
		p          Privileges
		canElevate bool
		want       string
	}{
		{"root", Privileges{Elevated: true}, true, "running elevated"},
		{"helper", Privileges{Helper: "/usr/bin/sudo"}, true, "via /usr/bin/sudo"},
		{"none", Privileges{}, false, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.CanElevate(); got != tt.canElevate {
				t.Errorf("CanElevate() = %v, want %v", got, tt.canElevate)
			}
			if got := tt.p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckPrivileges(t *testing.T) {
	if err := CheckPrivileges(false); err != nil {
		t.Errorf("CheckPrivileges(false) = %v", err)
	}

	err := CheckPrivileges(true)
	if CurrentPrivileges().CanElevate() {
		if err != nil {
			t.Errorf("CheckPrivileges(true) = %v, want nil", err)
		}
		return
	}
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("CheckPrivileges(true) = %v, want ErrNoPrivileges", err)
	}
	if !strings.Contains(err.Error(), "administrator") {
		t.Errorf("message %q does not mention administrator rights", err.Error())
	}
}
