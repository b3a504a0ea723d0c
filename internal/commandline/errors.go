package commandline

import "errors"

// Domain errors for command-line switches.
var (
	// ErrMissingID is returned when a switch is created without an identifier.
	ErrMissingID = errors.New("commandline: switch id is required")

	// ErrMissingRunner is returned when a switch is created without a command runner.
	ErrMissingRunner = errors.New("commandline: command runner is required")

	// ErrStopped is returned when an operation is requested on a stopped switch.
	ErrStopped = errors.New("commandline: switch is stopped")
)
