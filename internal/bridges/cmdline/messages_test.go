package cmdline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
)

func TestValidCommand(t *testing.T) {
	for _, c := range []string{CommandOn, CommandOff, CommandToggle, CommandRefresh} {
		assert.True(t, validCommand(c), c)
	}
	for _, c := range []string{"", "ON", "dim", "set_position"} {
		assert.False(t, validCommand(c), c)
	}
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "abc", DeviceID: "pump", Command: "dim"}

	ack := newAckError(Protocol, cmd, ErrCodeInvalidCommand, "unknown command")

	assert.Equal(t, "abc", ack.CommandID)
	assert.Equal(t, "pump", ack.DeviceID)
	assert.Equal(t, AckFailed, ack.Status)
	require.NotNil(t, ack.Error)
	assert.Equal(t, ErrCodeInvalidCommand, ack.Error.Code)
	assert.False(t, ack.Timestamp.IsZero())
}

func TestNewStateMessage_OnField(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		state commandline.State
		want  string
	}{
		{commandline.StateOn, `"on":true`},
		{commandline.StateOff, `"on":false`},
		{commandline.StateUnknown, `"on":null`},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			msg := newStateMessage(Protocol, commandline.Update{
				SwitchID:  "pump",
				Name:      "Pump",
				State:     tt.state,
				Source:    commandline.SourcePoll,
				Timestamp: ts,
			}, "")

			data, err := json.Marshal(msg)
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.want)
			assert.Contains(t, string(data), `"state":"`+string(tt.state)+`"`)
			assert.NotContains(t, string(data), `"icon"`)
		})
	}
}
