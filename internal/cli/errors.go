package cli

import "errors"

var (
	// ErrNoPackages is returned when no packages are specified.
	ErrNoPackages = errors.New("no packages specified")

	// ErrPackageNotFound is returned when no enabled manager knows a package.
	ErrPackageNotFound = errors.New("package not found")

	// ErrAmbiguous is returned when several managers offer a package and
	// no prompt can pick one.
	ErrAmbiguous = errors.New("package offered by several managers; choose one with --source")

	// ErrAborted is returned when the user aborts an operation.
	ErrAborted = errors.New("operation aborted by user")

	// ErrOperationsFailed is returned when at least one operation did not
	// succeed.
	ErrOperationsFailed = errors.New("some operations failed")
)
