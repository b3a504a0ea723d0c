package commandline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
)

// Switch defaults.
const (
	// DefaultCommand is used for a missing on or off command. It always succeeds.
	DefaultCommand = "true"

	// DefaultTimeout bounds each command when none is configured.
	DefaultTimeout = 15 * time.Second

	// DefaultScanInterval is how often the state command runs.
	DefaultScanInterval = 30 * time.Second
)

// Source identifies what produced a state update.
type Source string

const (
	// SourceCommand marks an optimistic update after an on/off command.
	SourceCommand Source = "command"

	// SourcePoll marks an update derived from the state command.
	SourcePoll Source = "poll"
)

// Command kinds set on every process.Command a switch runs.
const (
	KindOn    = "on"
	KindOff   = "off"
	KindState = "state"
)

// CommandRunner executes shell commands. Satisfied by *process.Runner.
type CommandRunner interface {
	Run(ctx context.Context, c process.Command) (process.Result, error)
}

// ValueTemplate extracts a value from state command output.
// Satisfied by *template.Template.
type ValueTemplate interface {
	Render(payload string) (string, error)
}

// Host receives state changes from switches.
type Host interface {
	// StateChanged is called after the cached state has been written.
	// It is never called after the switch has been stopped.
	StateChanged(ctx context.Context, u Update)
}

// Update describes a state change delivered to the Host.
type Update struct {
	SwitchID  string
	Name      string
	State     State
	Assumed   bool
	Payload   string
	Source    Source
	Timestamp time.Time
}

// Snapshot is a point-in-time copy of a switch's state and settings.
type Snapshot struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        State         `json:"state"`
	Assumed      bool          `json:"assumed_state"`
	Payload      string        `json:"payload,omitempty"`
	ScanInterval time.Duration `json:"scan_interval"`
	UpdatedAt    time.Time     `json:"updated_at"`
	SkippedPolls int64         `json:"skipped_polls"`
}

// Options configures a Switch.
type Options struct {
	// ID uniquely identifies the switch. Required.
	ID string

	// Name is the display name. Defaults to ID.
	Name string

	// CommandOn and CommandOff switch the device. Default: "true".
	CommandOn  string
	CommandOff string

	// CommandState queries the device. Empty means the switch runs in
	// assumed-state mode and never polls.
	CommandState string

	// ValueTemplate, when set, switches the state query to output-capture
	// mode and extracts the value from the captured output.
	ValueTemplate ValueTemplate

	// Timeout bounds each command. Default: 15s.
	Timeout time.Duration

	// ScanInterval is the polling period. Default: 30s.
	ScanInterval time.Duration

	// Runner executes the commands. Required.
	Runner CommandRunner

	// Host receives state changes. Optional.
	Host Host

	// Logger is optional.
	Logger Logger
}

// Switch is a binary device whose real state lives behind shell commands.
//
// With a state command the switch polls and trusts only what the command
// reports. Without one it runs in assumed-state mode and flips its cached
// state optimistically after a successful on/off command.
//
// Commands are not cancelled by the caller's context; the configured
// timeout is the only bound on how long one can run.
//
// Thread Safety: All methods are safe for concurrent use.
type Switch struct {
	id           string
	name         string
	commandOn    string
	commandOff   string
	commandState string
	tmpl         ValueTemplate
	timeout      time.Duration
	scanInterval time.Duration

	runner CommandRunner
	host   Host
	logger Logger
	guard  *PollGuard

	mu        sync.RWMutex
	state     State
	payload   string
	updatedAt time.Time

	// notifyMu serialises state writes with Stop so that nothing is
	// written or delivered once stopped is set.
	notifyMu   sync.Mutex
	stopped    atomic.Bool
	cancelPoll func()
}

// NewSwitch creates a switch. The cached state starts as StateOff.
//
// Parameters:
//   - opts: Switch options (ID and Runner are required)
//
// Returns:
//   - *Switch: Ready for use; call Start to begin polling
//   - error: ErrMissingID or ErrMissingRunner
func NewSwitch(opts Options) (*Switch, error) {
	if opts.ID == "" {
		return nil, ErrMissingID
	}
	if opts.Runner == nil {
		return nil, ErrMissingRunner
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	if opts.CommandOn == "" {
		opts.CommandOn = DefaultCommand
	}
	if opts.CommandOff == "" {
		opts.CommandOff = DefaultCommand
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Switch{
		id:           opts.ID,
		name:         opts.Name,
		commandOn:    opts.CommandOn,
		commandOff:   opts.CommandOff,
		commandState: opts.CommandState,
		tmpl:         opts.ValueTemplate,
		timeout:      opts.Timeout,
		scanInterval: opts.ScanInterval,
		runner:       opts.Runner,
		host:         opts.Host,
		logger:       opts.Logger,
		guard:        NewPollGuard(opts.Name, opts.ScanInterval, opts.Logger),
		state:        StateOff,
	}, nil
}

// ID returns the switch identifier.
func (s *Switch) ID() string {
	return s.id
}

// Name returns the display name.
func (s *Switch) Name() string {
	return s.name
}

// AssumedState reports whether the switch has no state command.
func (s *Switch) AssumedState() bool {
	return s.commandState == ""
}

// State returns the cached state.
func (s *Switch) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a copy of the switch's current state and settings.
func (s *Switch) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.id,
		Name:         s.name,
		State:        s.state,
		Assumed:      s.AssumedState(),
		Payload:      s.payload,
		ScanInterval: s.scanInterval,
		UpdatedAt:    s.updatedAt,
		SkippedPolls: s.guard.Skipped(),
	}
}

// TurnOn runs the on command, then refreshes the state.
//
// A failing command is logged and the refresh still runs. Only an execution
// fault (the shell could not be started) is returned.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.actuate(ctx, s.commandOn, KindOn, StateOn)
}

// TurnOff runs the off command, then refreshes the state.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.actuate(ctx, s.commandOff, KindOff, StateOff)
}

// Toggle turns the switch off if it is cached as on, and on otherwise.
func (s *Switch) Toggle(ctx context.Context) error {
	if s.State().IsOn() {
		return s.TurnOff(ctx)
	}
	return s.TurnOn(ctx)
}

// Update refreshes the cached state from the state command.
//
// It is a no-op in assumed-state mode. Concurrent calls are collapsed by
// the poll guard: an Update that overlaps a running one returns nil at once.
func (s *Switch) Update(ctx context.Context) error {
	if s.isStopped() {
		return ErrStopped
	}
	if s.AssumedState() {
		return nil
	}
	return s.guard.Attempt(context.WithoutCancel(ctx), s.refresh)
}

// Start registers periodic refreshes with the scheduler. Switches without a
// state command are never scheduled. Calling Start more than once has no
// further effect.
func (s *Switch) Start(scheduler Scheduler) {
	if s.AssumedState() {
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.stopped.Load() || s.cancelPoll != nil {
		return
	}

	s.cancelPoll = scheduler.Every(s.scanInterval, s.poll)
	s.logger.Debug("switch polling started",
		"switch", s.id,
		"scan_interval", s.scanInterval,
	)
}

// Stop cancels polling. Work already in flight runs to completion but its
// result is discarded: the cached state is not written and the host is not
// notified. Safe to call more than once.
func (s *Switch) Stop() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.stopped.Load() {
		return
	}
	s.stopped.Store(true)
	if s.cancelPoll != nil {
		s.cancelPoll()
	}
}

// poll is the scheduled tick.
func (s *Switch) poll() {
	if err := s.Update(context.Background()); err != nil && !errors.Is(err, ErrStopped) {
		s.logger.Error("scheduled state refresh failed",
			"switch", s.id,
			"error", err,
		)
	}
}

// actuate runs an on/off command and follows up with a refresh.
func (s *Switch) actuate(ctx context.Context, line, kind string, target State) error {
	if s.isStopped() {
		return ErrStopped
	}
	ctx = context.WithoutCancel(ctx)

	res, err := s.runner.Run(ctx, process.Command{
		Line:        line,
		Timeout:     s.timeout,
		LogExitCode: true,
		Kind:        kind,
	})
	if err != nil {
		return fmt.Errorf("switch %s: %w", s.id, err)
	}

	switch {
	case !res.Success():
		s.logger.Error("switch command failed",
			"switch", s.id,
			"command", line,
			"exit_code", res.ExitCode,
			"timed_out", res.TimedOut,
		)
	case s.AssumedState():
		s.setState(ctx, target, "", SourceCommand)
	}

	if err := s.Update(ctx); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	return nil
}

// refresh queries the state command and writes the derived state.
func (s *Switch) refresh(ctx context.Context) error {
	payload, err := s.queryState(ctx)
	if err != nil {
		return fmt.Errorf("switch %s: %w", s.id, err)
	}

	var value string
	if s.tmpl != nil && payload != "" {
		value, err = s.tmpl.Render(payload)
		if err != nil {
			s.logger.Warn("value template could not be rendered",
				"switch", s.id,
				"payload", payload,
				"error", err,
			)
			value = ""
		}
	}

	s.setState(ctx, Interpret(payload, value), payload, SourcePoll)
	return nil
}

// queryState runs the state command and returns the payload to interpret.
// An empty payload means the query produced nothing usable.
func (s *Switch) queryState(ctx context.Context) (string, error) {
	if s.tmpl != nil {
		res, err := s.runner.Run(ctx, process.Command{
			Line:          s.commandState,
			Timeout:       s.timeout,
			CaptureOutput: true,
			LogExitCode:   true,
			Kind:          KindState,
		})
		if err != nil {
			return "", err
		}
		if !res.Success() {
			return "", nil
		}
		return res.Stdout, nil
	}

	res, err := s.runner.Run(ctx, process.Command{
		Line:    s.commandState,
		Timeout: s.timeout,
		Kind:    KindState,
	})
	if err != nil {
		return "", err
	}

	switch {
	case res.TimedOut:
		return "", nil
	case res.ExitCode == 0:
		return "true", nil
	default:
		return "false", nil
	}
}

// setState writes the cached state and notifies the host, unless stopped.
func (s *Switch) setState(ctx context.Context, state State, payload string, source Source) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.stopped.Load() {
		s.logger.Debug("discarding state update for stopped switch", "switch", s.id)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.state = state
	s.payload = payload
	s.updatedAt = now
	s.mu.Unlock()

	if s.host == nil {
		return
	}
	s.host.StateChanged(ctx, Update{
		SwitchID:  s.id,
		Name:      s.name,
		State:     state,
		Assumed:   s.AssumedState(),
		Payload:   payload,
		Source:    source,
		Timestamp: now,
	})
}

func (s *Switch) isStopped() bool {
	return s.stopped.Load()
}
