package cmdline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shimmeringbee/retry"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/history"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/template"
)

// Bridge operation constants.
const (
	// Protocol is reported in every ack and state message.
	Protocol = "cmdline"

	// publishTimeout bounds a single state publish attempt.
	publishTimeout = 3 * time.Second

	// publishRetries is how many times a state publish is retried.
	publishRetries = 3

	// historyTimeout bounds a history insert.
	historyTimeout = 5 * time.Second

	// startupRefreshLimit caps concurrent initial refreshes.
	startupRefreshLimit = 8
)

// MQTTClient is the subset of the MQTT client the bridge needs.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishRetained sends a retained message at the configured QoS.
	PublishRetained(topic string, payload []byte) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger defines the logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateListener is notified of every state change after it is published.
type StateListener func(u commandline.Update)

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// MQTTClient carries commands, acks, state, and health. Required.
	MQTTClient MQTTClient

	// Runner executes switch commands. Required.
	Runner commandline.CommandRunner

	// History records state changes. Optional.
	History history.Repository

	// Metrics receives state and command telemetry. Optional.
	Metrics MetricsWriter

	// Scheduler drives polling. Default: commandline.TickerScheduler.
	Scheduler commandline.Scheduler

	// Logger is optional.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// switchEntry pairs a switch with its icon settings.
type switchEntry struct {
	sw           *commandline.Switch
	icon         string
	iconTemplate *template.Template
}

// bridgeStats holds the live counters behind BridgeStatistics.
type bridgeStats struct {
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64
	publishErrors    atomic.Uint64
}

// Bridge exposes configured command-line switches over MQTT.
// It handles:
//   - Receiving commands via MQTT and running them against switches
//   - Publishing retained state for every state change
//   - Recording history and telemetry, and notifying listeners
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *config.Config
	bridgeID  string
	qos       byte
	mqtt      MQTTClient
	history   history.Repository
	metrics   MetricsWriter
	scheduler commandline.Scheduler
	health    *HealthReporter
	logger    Logger

	switches map[string]*switchEntry
	order    []string

	listeners   []StateListener
	listenersMu sync.RWMutex

	stats bridgeStats

	// Shutdown coordination
	runMu      sync.Mutex
	stopped    bool
	subscribed bool
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge creates a bridge and one switch per configured entry.
// Call Start to begin operation.
//
// Parameters:
//   - opts: Bridge options (Config, MQTTClient, and Runner are required)
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required option is missing or a template does not compile
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = commandline.TickerScheduler{}
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		bridgeID:  opts.Config.Bridge.ID,
		qos:       byte(opts.Config.MQTT.QoS), //nolint:gosec // validated to 0-2 by config
		mqtt:      opts.MQTTClient,
		history:   opts.History,
		metrics:   opts.Metrics,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		switches:  make(map[string]*switchEntry, len(opts.Config.Switches)),
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}

	for _, key := range opts.Config.SwitchKeys() {
		entry, err := b.buildSwitch(key, opts.Config.Switches[key].Normalise(key), opts.Runner)
		if err != nil {
			ctxCancel()
			return nil, err
		}
		b.switches[entry.sw.ID()] = entry
		b.order = append(b.order, entry.sw.ID())
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:    b.bridgeID,
		Version:     opts.Version,
		Interval:    opts.Config.GetHealthInterval(),
		Publisher:   opts.MQTTClient,
		Stats:       b.Statistics,
		SwitchCount: len(b.switches),
	})
	b.health.SetLogger(opts.Logger)

	return b, nil
}

// buildSwitch compiles a switch's templates and constructs it.
func (b *Bridge) buildSwitch(key string, sc config.SwitchConfig, runner commandline.CommandRunner) (*switchEntry, error) {
	id := sc.ID(key)
	entry := &switchEntry{icon: sc.Icon}

	var valueTmpl commandline.ValueTemplate
	if sc.ValueTemplate != "" {
		t, err := template.Compile(sc.ValueTemplate)
		if err != nil {
			return nil, fmt.Errorf("%w: switches.%s.value_template: %w", ErrInvalidTemplate, key, err)
		}
		valueTmpl = t
	}
	if sc.IconTemplate != "" {
		t, err := template.Compile(sc.IconTemplate)
		if err != nil {
			return nil, fmt.Errorf("%w: switches.%s.icon_template: %w", ErrInvalidTemplate, key, err)
		}
		entry.iconTemplate = t
	}

	sw, err := commandline.NewSwitch(commandline.Options{
		ID:            id,
		Name:          sc.Name,
		CommandOn:     sc.CommandOn,
		CommandOff:    sc.CommandOff,
		CommandState:  sc.CommandState,
		ValueTemplate: valueTmpl,
		Timeout:       sc.Timeout(),
		ScanInterval:  sc.ScanInterval,
		Runner:        instrument(runner, b.metrics, id),
		Host:          b,
		Logger:        b.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("switches.%s: %w", key, err)
	}
	entry.sw = sw
	return entry, nil
}

// Start subscribes to commands, starts polling, and begins health reporting.
//
// Every polled switch is refreshed once before Start returns, so retained
// state is published for all of them at start-up.
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("starting command-line bridge",
		"bridge", b.bridgeID,
		"switches", len(b.switches),
	)

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting health", "error", err)
	}

	topic := mqtt.Topics{}.BridgeCommands(b.bridgeID)
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.runMu.Lock()
	b.subscribed = true
	b.runMu.Unlock()

	for _, id := range b.order {
		b.switches[id].sw.Start(b.scheduler)
	}

	b.refreshAll(ctx)

	b.health.Start(b.ctx)

	b.logger.Info("command-line bridge started", "bridge", b.bridgeID)
	return nil
}

// refreshAll runs one Update per polled switch concurrently.
func (b *Bridge) refreshAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(startupRefreshLimit)

	for _, id := range b.order {
		sw := b.switches[id].sw
		if sw.AssumedState() {
			continue
		}
		g.Go(func() error {
			if err := sw.Update(gctx); err != nil && !errors.Is(err, commandline.ErrStopped) {
				b.logger.Error("initial state refresh failed", "switch", sw.ID(), "error", err)
			}
			return nil
		})
	}

	//nolint:errcheck // workers never return errors
	g.Wait()
}

// Stop stops all switches, waits for running commands, and publishes a
// final "stopping" health message. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.logger.Info("stopping command-line bridge", "bridge", b.bridgeID)

		b.runMu.Lock()
		b.stopped = true
		subscribed := b.subscribed
		b.runMu.Unlock()

		if subscribed {
			topic := mqtt.Topics{}.BridgeCommands(b.bridgeID)
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logger.Warn("failed to unsubscribe from commands", "topic", topic, "error", err)
			}
		}

		for _, id := range b.order {
			b.switches[id].sw.Stop()
		}

		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()

		b.logger.Info("command-line bridge stopped", "bridge", b.bridgeID)
	})
}

// Dispatch validates a command and runs it in the background.
//
// The accepted ack is published before the command runs. If the command
// then fails to execute, a failed ack follows with ErrCodeBridgeError.
//
// Parameters:
//   - cmd: The command; ID and Timestamp are filled in when empty
//
// Returns:
//   - CommandMessage: The command as dispatched, with its ID
//   - error: ErrBridgeStopped, ErrUnknownSwitch, or ErrUnknownCommand
func (b *Bridge) Dispatch(cmd CommandMessage) (CommandMessage, error) {
	b.stats.commandsReceived.Add(1)

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	b.runMu.Lock()
	if b.stopped {
		b.runMu.Unlock()
		b.stats.commandsFailed.Add(1)
		return cmd, ErrBridgeStopped
	}
	entry, ok := b.switches[cmd.DeviceID]
	if !ok {
		b.runMu.Unlock()
		b.stats.commandsFailed.Add(1)
		return cmd, fmt.Errorf("%w: %q", ErrUnknownSwitch, cmd.DeviceID)
	}
	if !validCommand(cmd.Command) {
		b.runMu.Unlock()
		b.stats.commandsFailed.Add(1)
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	b.wg.Add(1)
	b.runMu.Unlock()

	b.publishAck(newAck(Protocol, cmd))

	go func() {
		defer b.wg.Done()
		if err := b.execute(entry.sw, cmd.Command); err != nil {
			b.stats.commandsFailed.Add(1)
			b.logger.Error("switch command failed to execute",
				"switch", cmd.DeviceID,
				"command", cmd.Command,
				"command_id", cmd.ID,
				"error", err,
			)
			b.publishAck(newAckError(Protocol, cmd, ErrCodeBridgeError, err.Error()))
		}
	}()

	return cmd, nil
}

// execute runs a validated command against a switch.
func (b *Bridge) execute(sw *commandline.Switch, command string) error {
	switch command {
	case CommandOn:
		return sw.TurnOn(b.ctx)
	case CommandOff:
		return sw.TurnOff(b.ctx)
	case CommandToggle:
		return sw.Toggle(b.ctx)
	case CommandRefresh:
		return sw.Update(b.ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// handleCommand processes a command received on graylogic/command/{bridge}/{switch}.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parsing command on %s: %w", topic, err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topic[strings.LastIndex(topic, "/")+1:]
	}

	cmd, err := b.Dispatch(cmd)
	if err == nil {
		return nil
	}

	code := ErrCodeBridgeError
	switch {
	case errors.Is(err, ErrUnknownSwitch):
		code = ErrCodeNotConfigured
	case errors.Is(err, ErrUnknownCommand):
		code = ErrCodeInvalidCommand
	}
	b.publishAck(newAckError(Protocol, cmd, code, err.Error()))
	return err
}

// publishAck publishes an acknowledgment, logging any failure.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}

	topic := mqtt.Topics{}.BridgeAck(b.bridgeID, ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.stats.publishErrors.Add(1)
		b.logger.Warn("failed to publish ack",
			"topic", topic,
			"command_id", ack.CommandID,
			"error", err,
		)
	}
}

// StateChanged implements commandline.Host.
//
// The state is published retained, then recorded in history and telemetry,
// then handed to listeners. A failure in one step does not skip the others.
func (b *Bridge) StateChanged(ctx context.Context, u commandline.Update) {
	entry, ok := b.switches[u.SwitchID]
	if !ok {
		return
	}

	if err := b.publishState(ctx, newStateMessage(Protocol, u, b.renderIcon(entry, u))); err != nil {
		b.stats.publishErrors.Add(1)
		b.logger.Error("failed to publish switch state",
			"switch", u.SwitchID,
			"state", u.State,
			"error", err,
		)
	} else {
		b.stats.statesPublished.Add(1)
	}

	if b.history != nil {
		hctx, cancel := context.WithTimeout(ctx, historyTimeout)
		if err := b.history.Record(hctx, u); err != nil {
			b.logger.Warn("failed to record switch history", "switch", u.SwitchID, "error", err)
		}
		cancel()
	}

	if b.metrics != nil {
		b.metrics.WriteSwitchState(influxdb.SwitchStatePoint{
			SwitchID: u.SwitchID,
			State:    string(u.State),
			Source:   string(u.Source),
			Assumed:  u.Assumed,
			Time:     u.Timestamp,
		})
	}

	b.listenersMu.RLock()
	listeners := b.listeners
	b.listenersMu.RUnlock()
	for _, l := range listeners {
		l(u)
	}
}

// publishState publishes a retained state message, retrying on failure.
func (b *Bridge) publishState(ctx context.Context, msg StateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	topic := mqtt.Topics{}.BridgeState(b.bridgeID, msg.DeviceID)
	return retry.Retry(ctx, publishTimeout, publishRetries, func(context.Context) error {
		return b.mqtt.PublishRetained(topic, payload)
	})
}

// renderIcon returns the icon for an update. The icon template wins when it
// renders a non-empty value; otherwise the static icon is used.
func (b *Bridge) renderIcon(entry *switchEntry, u commandline.Update) string {
	if entry.iconTemplate == nil {
		return entry.icon
	}
	icon, err := entry.iconTemplate.Render(u.Payload)
	if err != nil {
		b.logger.Warn("icon template could not be rendered", "switch", u.SwitchID, "error", err)
		return entry.icon
	}
	if icon == "" {
		return entry.icon
	}
	return icon
}

// AddListener registers fn to receive every state change.
func (b *Bridge) AddListener(fn StateListener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Switches returns snapshots of all switches, ordered by ID.
func (b *Bridge) Switches() []commandline.Snapshot {
	ids := make([]string, len(b.order))
	copy(ids, b.order)
	sort.Strings(ids)

	out := make([]commandline.Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.switches[id].sw.Snapshot())
	}
	return out
}

// Snapshot returns the snapshot of one switch.
func (b *Bridge) Snapshot(id string) (commandline.Snapshot, bool) {
	entry, ok := b.switches[id]
	if !ok {
		return commandline.Snapshot{}, false
	}
	return entry.sw.Snapshot(), true
}

// Statistics returns the current counters.
func (b *Bridge) Statistics() BridgeStatistics {
	var skipped int64
	for _, entry := range b.switches {
		skipped += entry.sw.Snapshot().SkippedPolls
	}
	return BridgeStatistics{
		CommandsReceived: b.stats.commandsReceived.Load(),
		CommandsFailed:   b.stats.commandsFailed.Load(),
		StatesPublished:  b.stats.statesPublished.Load(),
		PublishErrors:    b.stats.publishErrors.Load(),
		PollsSkipped:     skipped,
	}
}
