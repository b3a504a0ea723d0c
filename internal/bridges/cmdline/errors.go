package cmdline

import "errors"

// Domain errors for the command-line bridge.
var (
	// ErrUnknownSwitch is returned when a command names a switch that is not configured.
	ErrUnknownSwitch = errors.New("cmdline: switch not configured")

	// ErrUnknownCommand is returned for commands other than on, off, toggle, and refresh.
	ErrUnknownCommand = errors.New("cmdline: unknown command")

	// ErrBridgeStopped is returned when a command arrives after Stop.
	ErrBridgeStopped = errors.New("cmdline: bridge stopped")

	// ErrInvalidTemplate is returned when a switch's value or icon template does not compile.
	ErrInvalidTemplate = errors.New("cmdline: invalid template")
)
