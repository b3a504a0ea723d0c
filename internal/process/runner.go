package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Runner defaults.
const (
	// DefaultShell is the interpreter used to run command lines.
	DefaultShell = "/bin/sh"

	// DefaultTimeout bounds a command when the caller does not supply one.
	DefaultTimeout = 15 * time.Second

	// defaultWaitDelay is how long Wait keeps draining output after the
	// process group has been killed before the pipes are force-closed.
	defaultWaitDelay = 2 * time.Second

	// timedOutExitCode is reported when a command was killed at its deadline.
	timedOutExitCode = -1
)

// Command describes a single shell command invocation.
type Command struct {
	// Line is the command line, interpreted by the runner's shell.
	Line string

	// Timeout is the hard wall-clock limit. Zero or negative uses DefaultTimeout.
	Timeout time.Duration

	// CaptureOutput collects standard output into Result.Stdout.
	CaptureOutput bool

	// LogExitCode logs an error when the command exits non-zero.
	LogExitCode bool

	// Kind is an optional caller label, e.g. "on" or "state". The runner
	// only logs it.
	Kind string
}

// Result is the outcome of a command that was started.
type Result struct {
	// ExitCode is the process exit status, or -1 if it was killed at its deadline.
	ExitCode int

	// Stdout is the trimmed standard output. Empty means no output was captured.
	Stdout string

	// TimedOut is true when the command exceeded its timeout and was killed.
	TimedOut bool

	// Duration is the wall-clock time the command ran for.
	Duration time.Duration
}

// Success reports whether the command completed with exit status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Config holds Runner settings.
type Config struct {
	// Shell is the interpreter invoked as "<Shell> -c <line>".
	// Default: /bin/sh
	Shell string

	// DefaultTimeout applies to commands that carry no timeout of their own.
	// Default: 15s
	DefaultTimeout time.Duration

	// WaitDelay bounds output draining after a kill.
	// Default: 2s
	WaitDelay time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner executes shell commands with a hard timeout.
//
// Every command runs in its own process group so that a timeout kills the
// shell together with anything it spawned.
//
// Thread Safety: Run may be called concurrently from multiple goroutines.
type Runner struct {
	cfg    Config
	logger Logger
}

// NewRunner creates a runner, applying defaults for zero values.
func NewRunner(cfg Config) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}

	return &Runner{
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes the command and waits for it to finish or time out.
//
// A non-zero exit status or a timeout is reported through Result, never as
// an error. The only error is a failure to start the command at all, which
// wraps ErrExecutionFault.
//
// Parameters:
//   - ctx: Parent context; cancelling it kills the command like a timeout
//   - c: The command to run
//
// Returns:
//   - Result: Exit code, trimmed stdout (if captured) and timeout flag
//   - error: ErrExecutionFault if the shell could not be started
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Shell, "-c", c.Line) //nolint:gosec // Command lines come from operator configuration

	// New process group so a kill reaches every child of the shell
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = r.cfg.WaitDelay

	var stdout bytes.Buffer
	if c.CaptureOutput {
		cmd.Stdout = &stdout
	}

	r.logger.Info("running command", "command", c.Line, "kind", c.Kind)

	start := time.Now()
	err := cmd.Run()
	result := Result{Duration: time.Since(start)}

	switch {
	case runCtx.Err() != nil && (err != nil || cmd.ProcessState == nil || !cmd.ProcessState.Success()):
		result.ExitCode = timedOutExitCode
		result.TimedOut = true
		r.logger.Error("command timed out",
			"command", c.Line,
			"timeout", timeout,
		)
		return result, nil

	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		result.ExitCode = cmd.ProcessState.ExitCode()

	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.logger.Error("command could not be started",
				"command", c.Line,
				"error", err,
			)
			return Result{ExitCode: timedOutExitCode, Duration: result.Duration},
				fmt.Errorf("%w: %s: %w", ErrExecutionFault, c.Line, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if c.CaptureOutput {
		result.Stdout = strings.TrimSpace(stdout.String())
	}

	if result.ExitCode != 0 && c.LogExitCode {
		r.logger.Error("command failed",
			"command", c.Line,
			"exit_code", result.ExitCode,
		)
	}

	return result, nil
}

// killGroup sends SIGKILL to the whole process group led by pid.
func killGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %d: %w", pid, err)
	}
	return nil
}
