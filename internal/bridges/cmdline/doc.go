// Package cmdline bridges command-line switches onto the Gray Logic MQTT bus.
//
// Each configured switch becomes a commandline.Switch. The bridge:
//
//   - Subscribes to graylogic/command/{bridge}/+ and runs on, off, toggle,
//     and refresh commands, acknowledging each on graylogic/ack/...
//   - Publishes every state change as a retained StateMessage on
//     graylogic/state/{bridge}/{switch}
//   - Records state changes in the local history table and, when enabled,
//     writes switch_state and command_runs points to InfluxDB
//   - Publishes retained health on graylogic/health/{bridge}
//
// # Command Flow
//
//	MQTT command → validate → ack "accepted" → run in background
//	                                         → ack "failed" on execution fault
//
// Commands are never cancelled once accepted; each shell command is bounded
// only by its switch's command_timeout. Stop waits for running commands and
// discards their results.
package cmdline
