package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSwitchState = "switch_state"
	MeasurementCommandRuns = "command_runs"
)

// SwitchStatePoint is one observed switch state.
type SwitchStatePoint struct {
	SwitchID string
	State    string // on, off, unknown
	Source   string // command, poll
	Assumed  bool
	Time     time.Time
}

// CommandRunPoint is one shell command execution.
type CommandRunPoint struct {
	SwitchID string
	Kind     string // on, off, state
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Time     time.Time
}

// WriteSwitchState records a switch state change.
//
// The "on" field is 1 for on and 0 otherwise so that state can be graphed;
// unknown states are written with on omitted.
func (c *Client) WriteSwitchState(p SwitchStatePoint) {
	fields := map[string]interface{}{
		"state": p.State,
	}
	switch p.State {
	case "on":
		fields["on"] = 1
	case "off":
		fields["on"] = 0
	}

	c.writePoint(MeasurementSwitchState,
		map[string]string{
			"switch_id": p.SwitchID,
			"source":    p.Source,
			"assumed":   boolTag(p.Assumed),
		},
		fields,
		p.Time,
	)
}

// WriteCommandRun records the outcome of a shell command.
//
// Example:
//
//	client.WriteCommandRun(influxdb.CommandRunPoint{
//	    SwitchID: "garden_pump", Kind: "state",
//	    ExitCode: 0, Duration: 40 * time.Millisecond,
//	})
func (c *Client) WriteCommandRun(p CommandRunPoint) {
	c.writePoint(MeasurementCommandRuns,
		map[string]string{
			"switch_id": p.SwitchID,
			"kind":      p.Kind,
		},
		map[string]interface{}{
			"exit_code":   p.ExitCode,
			"timed_out":   p.TimedOut,
			"duration_ms": float64(p.Duration) / float64(time.Millisecond),
		},
		p.Time,
	)
}

// writePoint queues a point; a zero ts means now. Dropped when disconnected.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
