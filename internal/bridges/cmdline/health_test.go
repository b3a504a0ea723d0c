package cmdline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const healthTopic = "graylogic/health/cmdline"

func lastHealth(t *testing.T, m *mockMQTT) HealthMessage {
	t.Helper()
	msgs := m.onTopic(healthTopic)
	require.NotEmpty(t, msgs)
	var h HealthMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].payload, &h))
	return h
}

func TestNewHealthReporter_DefaultInterval(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "cmdline"})
	assert.Equal(t, defaultHealthInterval, h.cfg.Interval)
}

func TestHealthReporter_PublishNow(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus HealthStatus
		wantReason string
	}{
		{"connected is healthy", true, HealthHealthy, ""},
		{"disconnected is degraded", false, HealthDegraded, "MQTT disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockMQTT().allowAll()
			m.connected = tt.connected

			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:    "cmdline",
				Version:     "1.2.3",
				Publisher:   m,
				SwitchCount: 4,
				Stats: func() BridgeStatistics {
					return BridgeStatistics{CommandsReceived: 7, PollsSkipped: 2}
				},
			})

			require.NoError(t, h.PublishNow())

			msgs := m.onTopic(healthTopic)
			require.Len(t, msgs, 1)
			assert.True(t, msgs[0].retained)
			assert.Equal(t, byte(1), msgs[0].qos)

			got := lastHealth(t, m)
			assert.Equal(t, "cmdline", got.Bridge)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, "1.2.3", got.Version)
			assert.Equal(t, 4, got.SwitchesManaged)
			require.NotNil(t, got.Statistics)
			assert.Equal(t, uint64(7), got.Statistics.CommandsReceived)
			assert.Equal(t, int64(2), got.Statistics.PollsSkipped)
		})
	}
}

func TestHealthReporter_NoPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "cmdline"})
	assert.NoError(t, h.PublishNow())
	assert.NoError(t, h.PublishStarting())
}

func TestHealthReporter_Lifecycle(t *testing.T) {
	m := newMockMQTT().allowAll()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "cmdline",
		Interval:  10 * time.Millisecond,
		Publisher: m,
	})

	require.NoError(t, h.PublishStarting())
	assert.Equal(t, HealthStarting, lastHealth(t, m).Status)

	h.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(m.onTopic(healthTopic)) >= 3
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()

	assert.Equal(t, HealthStopping, lastHealth(t, m).Status)

	count := len(m.onTopic(healthTopic))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, m.onTopic(healthTopic), count, "no reports after Stop")
}
