package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/config"
)

// fakeToken is a paho token that has already completed.
type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                     { return !t.timedOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls made through the paho client interface.
// Methods the wrapper never calls are left to the embedded nil interface.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	published    []published
	subscribed   map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	token        *fakeToken
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		connected:  true,
		subscribed: make(map[string]pahomqtt.MessageHandler),
		token:      &fakeToken{},
	}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := payload.([]byte)
	f.published = append(f.published, published{topic, qos, retained, data})
	return f.token
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = cb
	return f.token
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return f.token
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

// deliver invokes the handler registered for topic as paho would.
func (f *fakePaho) deliver(t *testing.T, subTopic, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	cb := f.subscribed[subTopic]
	f.mu.Unlock()
	require.NotNil(t, cb, "no handler for %s", subTopic)
	cb(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-cmdswitch-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectedClient returns a Client over a fake paho connection.
func connectedClient() (*Client, *fakePaho) {
	fp := newFakePaho()
	c := newClient(testConfig(), fp)
	c.connected.Store(true)
	return c, fp
}

func TestPublish(t *testing.T) {
	c, fp := connectedClient()

	err := c.Publish("graylogic/state/cmdline/pump", []byte(`{"on":true}`), 1, true)
	require.NoError(t, err)

	require.Len(t, fp.published, 1)
	assert.Equal(t, "graylogic/state/cmdline/pump", fp.published[0].topic)
	assert.Equal(t, byte(1), fp.published[0].qos)
	assert.True(t, fp.published[0].retained)
	assert.JSONEq(t, `{"on":true}`, string(fp.published[0].payload))
}

func TestPublishRetained_UsesConfiguredQoS(t *testing.T) {
	c, fp := connectedClient()

	require.NoError(t, c.PublishRetained("graylogic/health/cmdline", []byte("{}")))
	assert.Equal(t, byte(1), fp.published[0].qos)
	assert.True(t, fp.published[0].retained)
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized payload", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fp := connectedClient()
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, fp.published)
		})
	}
}

func TestPublish_TokenFailures(t *testing.T) {
	c, fp := connectedClient()

	fp.token = &fakeToken{timedOut: true}
	assert.ErrorIs(t, c.Publish("t", nil, 0, false), ErrPublishFailed)

	fp.token = &fakeToken{err: errors.New("broker said no")}
	err := c.Publish("t", nil, 0, false)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Contains(t, err.Error(), "broker said no")
}

func TestOperations_Disconnected(t *testing.T) {
	c, fp := connectedClient()
	fp.connected = false

	assert.ErrorIs(t, c.Publish("t", nil, 0, false), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe("t", 0, func(string, []byte) error { return nil }), ErrNotConnected)
	assert.ErrorIs(t, c.Unsubscribe("t"), ErrNotConnected)
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
}

// tracked reports whether topic is restored on reconnect.
func tracked(c *Client, topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func TestSubscribe_TracksAndDelivers(t *testing.T) {
	c, fp := connectedClient()
	pattern := Topics{}.BridgeCommands("cmdline")

	var gotTopic string
	var gotPayload []byte
	err := c.Subscribe(pattern, 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return nil
	})
	require.NoError(t, err)

	assert.True(t, tracked(c, pattern))
	assert.Len(t, c.subscriptions, 1)

	fp.deliver(t, pattern, "graylogic/command/cmdline/pump", []byte(`{"command":"on"}`))
	assert.Equal(t, "graylogic/command/cmdline/pump", gotTopic)
	assert.JSONEq(t, `{"command":"on"}`, string(gotPayload))
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectedClient()
	noop := func(string, []byte) error { return nil }

	assert.ErrorIs(t, c.Subscribe("", 1, noop), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("t", 3, noop), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("t", 1, nil), ErrSubscribeFailed)
	assert.Empty(t, c.subscriptions)
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	c, fp := connectedClient()
	fp.token = &fakeToken{err: errors.New("not authorised")}

	err := c.Subscribe("t", 1, func(string, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrSubscribeFailed)
	assert.False(t, tracked(c, "t"))
}

func TestUnsubscribe(t *testing.T) {
	c, fp := connectedClient()
	require.NoError(t, c.Subscribe("t", 1, func(string, []byte) error { return nil }))

	require.NoError(t, c.Unsubscribe("t"))
	assert.False(t, tracked(c, "t"))
	assert.Equal(t, []string{"t"}, fp.unsubscribed)
	assert.ErrorIs(t, c.Unsubscribe(""), ErrInvalidTopic)
}

func TestWrapHandler_LogsErrorsAndPanics(t *testing.T) {
	c, fp := connectedClient()
	log := &recordingLogger{}
	c.SetLogger(log)

	require.NoError(t, c.Subscribe("err", 1, func(string, []byte) error { return errors.New("bad payload") }))
	require.NoError(t, c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") }))

	fp.deliver(t, "err", "err", nil)
	assert.NotPanics(t, func() { fp.deliver(t, "panic", "panic", nil) })

	assert.Equal(t, []string{"MQTT handler returned error"}, log.warns)
	assert.Equal(t, []string{"MQTT handler panic recovered"}, log.errs)
}

func TestHandleConnect_RestoresAndAnnounces(t *testing.T) {
	c, fp := connectedClient()
	require.NoError(t, c.Subscribe("a", 1, func(string, []byte) error { return nil }))

	called := false
	c.SetOnConnect(func() { called = true })

	fp.subscribed = make(map[string]pahomqtt.MessageHandler)
	c.handleConnect()

	assert.Contains(t, fp.subscribed, "a")
	assert.True(t, called)

	last := fp.published[len(fp.published)-1]
	assert.Equal(t, Topics{}.SystemStatus(), last.topic)
	assert.True(t, last.retained)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(last.payload, &msg))
	assert.Equal(t, StatusOnline, msg.Status)
	assert.Equal(t, "graylogic-cmdswitch-test", msg.ClientID)
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := connectedClient()

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	cause := errors.New("EOF")
	c.handleDisconnect(cause)

	assert.Equal(t, cause, got)
	assert.False(t, c.IsConnected())
}

func TestClose(t *testing.T) {
	c, fp := connectedClient()

	require.NoError(t, c.Close())
	assert.True(t, fp.disconnected)
	assert.False(t, c.IsConnected())

	require.Len(t, fp.published, 1)
	var msg StatusMessage
	require.NoError(t, json.Unmarshal(fp.published[0].payload, &msg))
	assert.Equal(t, StatusOffline, msg.Status)
	assert.Equal(t, "graceful_shutdown", msg.Reason)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, (&Client{}).Close())
}

func TestHealthCheck(t *testing.T) {
	c, _ := connectedClient()
	assert.NoError(t, c.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.HealthCheck(ctx), context.Canceled)
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://127.0.0.1:1883", opts.Servers[0].String())
	assert.Equal(t, "graylogic-cmdswitch-test", opts.ClientID)
	assert.Equal(t, "bridge", opts.Username)
	assert.NotNil(t, opts.TLSConfig)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, Topics{}.SystemStatus(), opts.WillTopic)
	assert.True(t, opts.WillRetained)

	var will StatusMessage
	require.NoError(t, json.Unmarshal(opts.WillPayload, &will))
	assert.Equal(t, "unexpected_disconnect", will.Reason)
}

// TestConnect_Broker needs a real broker; set CMDSWITCH_TEST_MQTT_PORT to run it.
func TestConnect_Broker(t *testing.T) {
	portEnv := os.Getenv("CMDSWITCH_TEST_MQTT_PORT")
	if portEnv == "" {
		t.Skip("CMDSWITCH_TEST_MQTT_PORT not set")
	}
	port, err := strconv.Atoi(portEnv)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Broker.Port = port

	client, err := Connect(cfg)
	require.NoError(t, err)
	defer client.Close()

	received := make(chan []byte, 1)
	topic := Topics{}.BridgeState("cmdline", "roundtrip")
	require.NoError(t, client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}))
	require.NoError(t, client.Publish(topic, []byte("ping"), 1, false))

	select {
	case got := <-received:
		assert.Equal(t, "ping", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
