package commandline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerScheduler_Every(t *testing.T) {
	var calls atomic.Int32

	cancel := TickerScheduler{}.Every(10*time.Millisecond, func() {
		calls.Add(1)
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	cancel() // idempotent

	// Let any tick that raced with cancel finish, then confirm it stays quiet.
	time.Sleep(30 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}

func TestTickerScheduler_SlowCallDoesNotDelayTicks(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	defer close(block)

	cancel := TickerScheduler{}.Every(10*time.Millisecond, func() {
		calls.Add(1)
		<-block
	})
	defer cancel()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
