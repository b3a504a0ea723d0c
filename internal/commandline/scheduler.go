package commandline

import (
	"sync"
	"time"
)

// Scheduler invokes a function periodically.
type Scheduler interface {
	// Every calls fn once per interval until the returned cancel func is called.
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler is a Scheduler backed by time.Ticker.
//
// Each tick runs fn in its own goroutine, so a slow call never delays the
// next tick. Overlap is left to the caller (see PollGuard).
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				go fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
