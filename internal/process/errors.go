package process

import "errors"

// ErrExecutionFault is returned when a command cannot be started at all,
// for example because the shell is missing or not executable. A command
// that starts and exits non-zero is not an execution fault.
var ErrExecutionFault = errors.New("process: execution fault")
