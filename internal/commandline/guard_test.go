package commandline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollGuard_RunsWork(t *testing.T) {
	g := NewPollGuard("pump", time.Second, nil)

	ran := false
	err := g.Attempt(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Zero(t, g.Skipped())
}

func TestPollGuard_PropagatesError(t *testing.T) {
	g := NewPollGuard("pump", time.Second, nil)
	boom := errors.New("boom")

	err := g.Attempt(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// Released after an error.
	err = g.Attempt(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPollGuard_DropsOverlappingAttempt(t *testing.T) {
	log := &recordingLogger{}
	g := NewPollGuard("Garden Pump", 30*time.Second, log)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.Attempt(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	secondRan := false
	err := g.Attempt(context.Background(), func(context.Context) error {
		secondRan = true
		return errors.New("must not run")
	})

	require.NoError(t, err)
	assert.False(t, secondRan)
	assert.Equal(t, int64(1), g.Skipped())

	warnings := log.byLevel("warn")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].args, "Garden Pump")
	assert.Contains(t, warnings[0].args, 30*time.Second)

	close(release)
	wg.Wait()

	// Free again once the first attempt finished.
	ran := false
	require.NoError(t, g.Attempt(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestPollGuard_ReleasedAfterPanic(t *testing.T) {
	g := NewPollGuard("pump", time.Second, nil)

	assert.Panics(t, func() {
		_ = g.Attempt(context.Background(), func(context.Context) error {
			panic("bad")
		})
	})

	ran := false
	require.NoError(t, g.Attempt(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Zero(t, g.Skipped())
}
