// Package influxdb writes switch telemetry to InfluxDB v2.
//
// Two measurements are produced:
//   - switch_state: every state change, tagged by switch, source, and assumed mode
//   - command_runs: every shell command, with exit code, timeout flag, and duration
//
// InfluxDB is optional. Connect returns ErrDisabled when influxdb.enabled is
// false and the bridge runs without telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteSwitchState(influxdb.SwitchStatePoint{SwitchID: "garden_pump", State: "on"})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures are delivered to the SetOnError callback.
package influxdb
