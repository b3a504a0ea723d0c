package cmdline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/history"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
)

// published is one recorded MQTT publish.
type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT is a testify mock of MQTTClient that also records publishes
// and subscribed handlers.
type mockMQTT struct {
	mock.Mock

	mu        sync.Mutex
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	connected    bool
}

func newMockMQTT() *mockMQTT {
	m := &mockMQTT{handlers: make(map[string]mqtt.MessageHandler), connected: true}
	return m
}

// allowAll installs permissive expectations for every method.
func (m *mockMQTT) allowAll() *mockMQTT {
	m.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishRetained", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Unsubscribe", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	args := m.Called(topic, payload, qos, retained)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	m.mu.Unlock()
	return nil
}

// PublishRetained records the message at QoS 1, the QoS testConfig sets.
func (m *mockMQTT) PublishRetained(topic string, payload []byte) error {
	if err := m.Called(topic, payload).Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, qos: 1, retained: true})
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	args := m.Called(topic, qos, handler)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.handlers[topic] = handler
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	if err := m.Called(topic).Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver invokes the handler subscribed to pattern as if topic arrived.
func (m *mockMQTT) deliver(t *testing.T, pattern, topic string, payload any) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[pattern]
	m.mu.Unlock()
	require.True(t, ok, "no handler for %s", pattern)

	data, ok := payload.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return h(topic, data)
}

// onTopic returns every message published to topic.
func (m *mockMQTT) onTopic(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// withPrefix returns every message whose topic starts with prefix.
func (m *mockMQTT) withPrefix(prefix string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if strings.HasPrefix(p.topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// acks decodes every ack published for a switch.
func (m *mockMQTT) acks(t *testing.T, switchID string) []AckMessage {
	t.Helper()
	var out []AckMessage
	for _, p := range m.onTopic(mqtt.Topics{}.BridgeAck("cmdline", switchID)) {
		var ack AckMessage
		require.NoError(t, json.Unmarshal(p.payload, &ack))
		out = append(out, ack)
	}
	return out
}

// states decodes every state message published for a switch.
func (m *mockMQTT) states(t *testing.T, switchID string) []StateMessage {
	t.Helper()
	var out []StateMessage
	for _, p := range m.onTopic(mqtt.Topics{}.BridgeState("cmdline", switchID)) {
		require.True(t, p.retained, "state must be retained")
		var msg StateMessage
		require.NoError(t, json.Unmarshal(p.payload, &msg))
		out = append(out, msg)
	}
	return out
}

// scriptedRunner answers each command line with a fixed result.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]process.Result
	errs    map[string]error
	lines   []string
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		results: make(map[string]process.Result),
		errs:    make(map[string]error),
	}
}

func (r *scriptedRunner) set(line string, res process.Result) *scriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[line] = res
	return r
}

func (r *scriptedRunner) fail(line string, err error) *scriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[line] = err
	return r
}

func (r *scriptedRunner) Run(_ context.Context, c process.Command) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, c.Line)
	if err, ok := r.errs[c.Line]; ok {
		return process.Result{ExitCode: -1}, err
	}
	res := r.results[c.Line]
	if res.Duration == 0 {
		res.Duration = 5 * time.Millisecond
	}
	return res, nil
}

func (r *scriptedRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// manualScheduler records registrations and never ticks on its own.
type manualScheduler struct {
	mu        sync.Mutex
	intervals []time.Duration
}

func (s *manualScheduler) Every(interval time.Duration, _ func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals = append(s.intervals, interval)
	return func() {}
}

// fakeHistory records every update.
type fakeHistory struct {
	mu      sync.Mutex
	updates []commandline.Update
	err     error
}

func (h *fakeHistory) Record(_ context.Context, u commandline.Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.updates = append(h.updates, u)
	return nil
}

func (h *fakeHistory) Recent(context.Context, string, int) ([]history.Entry, error) {
	return nil, nil
}

func (h *fakeHistory) Prune(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (h *fakeHistory) all() []commandline.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]commandline.Update(nil), h.updates...)
}

// fakeMetrics records every point.
type fakeMetrics struct {
	mu     sync.Mutex
	states []influxdb.SwitchStatePoint
	runs   []influxdb.CommandRunPoint
}

func (m *fakeMetrics) WriteSwitchState(p influxdb.SwitchStatePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, p)
}

func (m *fakeMetrics) WriteCommandRun(p influxdb.CommandRunPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, p)
}

func (m *fakeMetrics) commandRuns() []influxdb.CommandRunPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]influxdb.CommandRunPoint(nil), m.runs...)
}

func (m *fakeMetrics) stateWrites() []influxdb.SwitchStatePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]influxdb.SwitchStatePoint(nil), m.states...)
}

// testConfig returns a config holding the given switches, normalised the
// way config.Load would leave them.
func testConfig(switches map[string]config.SwitchConfig) *config.Config {
	for key, sw := range switches {
		switches[key] = sw.Normalise(key)
	}
	return &config.Config{
		MQTT:     config.MQTTConfig{QoS: 1},
		Bridge:   config.BridgeConfig{ID: "cmdline", HealthInterval: 3600},
		Switches: switches,
	}
}

func exited(code int) process.Result {
	return process.Result{ExitCode: code}
}
