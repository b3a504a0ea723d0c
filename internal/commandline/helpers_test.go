package commandline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
)

// mockRunner is a testify mock of CommandRunner.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, c process.Command) (process.Result, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(process.Result), args.Error(1)
}

// line matches a process.Command by its command line.
func line(l string) any {
	return mock.MatchedBy(func(c process.Command) bool { return c.Line == l })
}

// funcRunner adapts a function to CommandRunner.
type funcRunner func(ctx context.Context, c process.Command) (process.Result, error)

func (f funcRunner) Run(ctx context.Context, c process.Command) (process.Result, error) {
	return f(ctx, c)
}

// recordingHost records every update it receives.
type recordingHost struct {
	mu      sync.Mutex
	updates []Update
}

func (h *recordingHost) StateChanged(_ context.Context, u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *recordingHost) all() []Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Update(nil), h.updates...)
}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

// fakeScheduler records registrations instead of ticking.
type fakeScheduler struct {
	mu        sync.Mutex
	intervals []time.Duration
	fns       []func()
	cancelled int
}

func (f *fakeScheduler) Every(interval time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervals = append(f.intervals, interval)
	f.fns = append(f.fns, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
	}
}

// stubTemplate is a ValueTemplate with a fixed result.
type stubTemplate struct {
	mu       sync.Mutex
	value    string
	err      error
	rendered []string
}

func (s *stubTemplate) Render(payload string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = append(s.rendered, payload)
	return s.value, s.err
}

func (s *stubTemplate) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rendered)
}

// exited is a completed process result with the given exit code.
func exited(code int) process.Result {
	return process.Result{ExitCode: code}
}

// output is a successful capture-mode result.
func output(stdout string) process.Result {
	return process.Result{ExitCode: 0, Stdout: stdout}
}

// timedOut is a killed-at-deadline result.
func timedOut() process.Result {
	return process.Result{ExitCode: -1, TimedOut: true}
}
