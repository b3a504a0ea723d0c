// Package process runs short-lived shell commands with a hard timeout.
//
// Each command is executed as "<shell> -c <line>" in a fresh process group.
// When the timeout elapses the entire group is killed with SIGKILL, so a
// command that forks helpers cannot outlive its deadline.
//
// The runner distinguishes three outcomes:
//   - completed: Result.ExitCode holds the exit status (0 or non-zero)
//   - timed out: Result.TimedOut is true and Result.ExitCode is -1
//   - not started: ErrExecutionFault is returned
//
// Example usage:
//
//	runner := process.NewRunner(process.Config{})
//	res, err := runner.Run(ctx, process.Command{
//	    Line:          "cat /sys/class/gpio/gpio17/value",
//	    Timeout:       5 * time.Second,
//	    CaptureOutput: true,
//	})
//	if err != nil {
//	    return err
//	}
//	if res.Success() {
//	    fmt.Println(res.Stdout)
//	}
package process
