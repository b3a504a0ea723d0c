package commandline

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// PollGuard allows at most one state refresh per switch at a time.
//
// A refresh that arrives while another is running is dropped rather than
// queued, and a warning is logged. The guard is created together with its
// switch and never reset.
type PollGuard struct {
	sem      *semaphore.Weighted
	name     string
	interval time.Duration
	logger   Logger
	skipped  atomic.Int64
}

// NewPollGuard creates a guard for the named switch.
//
// Parameters:
//   - name: Switch name used in the skip warning
//   - interval: Scan interval used in the skip warning
//   - logger: Destination for the skip warning (nil for none)
func NewPollGuard(name string, interval time.Duration, logger Logger) *PollGuard {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PollGuard{
		sem:      semaphore.NewWeighted(1),
		name:     name,
		interval: interval,
		logger:   logger,
	}
}

// Attempt runs work unless a previous attempt is still in progress.
//
// A dropped attempt returns nil. Otherwise the error from work is returned.
// The guard is released on every exit path, including a panic in work.
func (g *PollGuard) Attempt(ctx context.Context, work func(context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		g.skipped.Add(1)
		g.logger.Warn("state refresh took longer than the scan interval, skipping",
			"switch", g.name,
			"scan_interval", g.interval,
		)
		return nil
	}
	defer g.sem.Release(1)

	return work(ctx)
}

// Skipped returns how many attempts have been dropped so far.
func (g *PollGuard) Skipped() int64 {
	return g.skipped.Load()
}
