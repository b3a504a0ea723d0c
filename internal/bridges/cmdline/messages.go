package cmdline

import (
	"time"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
)

// Commands accepted on graylogic/command/{bridge}/{switch}.
const (
	CommandOn      = "on"
	CommandOff     = "off"
	CommandToggle  = "toggle"
	CommandRefresh = "refresh"
)

// validCommand reports whether name is one of the accepted commands.
func validCommand(name string) bool {
	switch name {
	case CommandOn, CommandOff, CommandToggle, CommandRefresh:
		return true
	default:
		return false
	}
}

// CommandMessage asks the bridge to act on a switch.
// Topic: graylogic/command/cmdline/{switch}
type CommandMessage struct {
	// ID correlates the command with its acks. Generated when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the switch ID. Taken from the topic when empty.
	DeviceID string `json:"device_id"`

	// Command is on, off, toggle, or refresh.
	Command string `json:"command"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was validated and is running.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes carried in failed acks.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeNotConfigured  = "NOT_CONFIGURED"
	ErrCodeBridgeError    = "BRIDGE_ERROR"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/cmdline/{switch}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage reports a switch's state.
// Topic: graylogic/state/cmdline/{switch}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string      `json:"device_id"`
	Timestamp time.Time   `json:"timestamp"`
	State     SwitchState `json:"state"`
	Protocol  string      `json:"protocol"`
}

// SwitchState is the state body of a StateMessage.
type SwitchState struct {
	// On is nil when the state is unknown.
	On *bool `json:"on"`

	State   commandline.State  `json:"state"`
	Assumed bool               `json:"assumed_state"`
	Source  commandline.Source `json:"source"`
	Name    string             `json:"name"`
	Icon    string             `json:"icon,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/cmdline
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge          string            `json:"bridge"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          HealthStatus      `json:"status"`
	Version         string            `json:"version"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	SwitchesManaged int               `json:"switches_managed"`
	Statistics      *BridgeStatistics `json:"statistics,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	PublishErrors    uint64 `json:"publish_errors"`
	PollsSkipped     int64  `json:"polls_skipped"`
}

// newAck creates an accepted acknowledgment for a command.
func newAck(protocol string, cmd CommandMessage) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  protocol,
	}
}

// newAckError creates a failed acknowledgment.
func newAckError(protocol string, cmd CommandMessage, code, message string) AckMessage {
	ack := newAck(protocol, cmd)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// newStateMessage builds the state message for an update.
func newStateMessage(protocol string, u commandline.Update, icon string) StateMessage {
	var on *bool
	if u.State != commandline.StateUnknown {
		v := u.State.IsOn()
		on = &v
	}
	return StateMessage{
		DeviceID:  u.SwitchID,
		Timestamp: u.Timestamp.UTC(),
		Protocol:  protocol,
		State: SwitchState{
			On:      on,
			State:   u.State,
			Assumed: u.Assumed,
			Source:  u.Source,
			Name:    u.Name,
			Icon:    icon,
		},
	}
}
