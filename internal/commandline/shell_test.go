package commandline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/template"
)

// These tests drive a Switch through the real shell runner.

func TestShellSwitch_AssumedTurnOn(t *testing.T) {
	sw, host := newTestSwitch(t, Options{
		CommandOn: "echo on-ok; exit 0",
		Runner:    process.NewRunner(process.Config{}),
	})

	require.NoError(t, sw.TurnOn(context.Background()))

	assert.Equal(t, StateOn, sw.State())
	updates := host.all()
	require.Len(t, updates, 1)
	assert.Equal(t, StateOn, updates[0].State)
	assert.True(t, updates[0].Assumed)
}

func TestShellSwitch_ExitCodeQuery(t *testing.T) {
	sw, _ := newTestSwitch(t, Options{
		CommandState: "echo true",
		Runner:       process.NewRunner(process.Config{}),
	})

	require.NoError(t, sw.Update(context.Background()))
	assert.Equal(t, StateOn, sw.State())
}

func TestShellSwitch_TemplateQuery(t *testing.T) {
	sw, host := newTestSwitch(t, Options{
		CommandState:  "echo maybe",
		ValueTemplate: template.MustCompile(`"false"`),
		Runner:        process.NewRunner(process.Config{}),
	})

	require.NoError(t, sw.Update(context.Background()))

	assert.Equal(t, StateOff, sw.State())
	require.Len(t, host.all(), 1)
	assert.Equal(t, "maybe", host.all()[0].Payload)
}

func TestShellSwitch_QueryTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a command timeout")
	}

	sw, _ := newTestSwitch(t, Options{
		CommandState: "sleep 10",
		Timeout:      time.Second,
		Runner:       process.NewRunner(process.Config{}),
	})

	start := time.Now()
	require.NoError(t, sw.Update(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, StateUnknown, sw.State())
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
}
