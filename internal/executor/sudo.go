package executor

// Privileges describes how elevated commands will be run.
type Privileges struct {
	// Elevated is set when the process already runs as root or
	// administrator; commands then run as they are.
	Elevated bool
	// Helper is the sudo-like program elevated commands are wrapped in.
	Helper string
}

// CanElevate reports whether an elevated command can run at all.
func (p Privileges) CanElevate() bool {
	return p.Elevated || p.Helper != ""
}

// String names the elevation route for status output.
func (p Privileges) String() string {
	switch {
	case p.Elevated:
		return "running elevated"
	case p.Helper != "":
		return "via " + p.Helper
	}
	return "unavailable"
}

// CurrentPrivileges inspects the running process and PATH.
func CurrentPrivileges() Privileges {
	if isRoot() {
		return Privileges{Elevated: true}
	}
	helper, _ := sudoBinary()
	return Privileges{Helper: helper}
}

// CheckPrivileges returns ErrNoPrivileges when elevated is requested but
// cannot be honored.
func CheckPrivileges(elevated bool) error {
	if elevated && !CurrentPrivileges().CanElevate() {
		return ErrNoPrivileges
	}
	return nil
}

type errNoPrivileges struct{}

func (errNoPrivileges) Error() string {
	return "operation needs administrator rights, but the process is not elevated and no sudo helper was found"
}

// ErrNoPrivileges is returned for elevated commands that cannot be
// elevated.
var ErrNoPrivileges error = errNoPrivileges{}
