package mqtt

import "fmt"

// TopicPrefix is the root of every topic this process uses.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const TopicPrefix = "graylogic"

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("cmdline", "garden_pump")
//	// Returns: "graylogic/state/cmdline/garden_pump"
type Topics struct{}

// BridgeState returns the retained state topic for one switch.
//
// Example: graylogic/state/cmdline/garden_pump
func (Topics) BridgeState(protocol, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// BridgeAck returns the acknowledgement topic for one switch.
//
// Example: graylogic/ack/cmdline/garden_pump
func (Topics) BridgeAck(protocol, id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, id)
}

// BridgeHealth returns the health topic for a bridge.
//
// Example: graylogic/health/cmdline
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeCommands returns a pattern matching every command for one bridge.
//
// Pattern: graylogic/command/cmdline/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// SystemStatus returns the retained process status topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
