package cmdline

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/process"
)

// MetricsWriter receives switch telemetry. Satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteSwitchState(p influxdb.SwitchStatePoint)
	WriteCommandRun(p influxdb.CommandRunPoint)
}

// instrumentedRunner reports every command a switch runs.
type instrumentedRunner struct {
	next     commandline.CommandRunner
	metrics  MetricsWriter
	switchID string
}

// instrument wraps runner so that each run is written to metrics.
// Returns runner unchanged when metrics is nil.
func instrument(runner commandline.CommandRunner, metrics MetricsWriter, switchID string) commandline.CommandRunner {
	if metrics == nil {
		return runner
	}
	return &instrumentedRunner{
		next:     runner,
		metrics:  metrics,
		switchID: switchID,
	}
}

// Run implements commandline.CommandRunner. The point's kind is the one the
// switch set on the command.
func (r *instrumentedRunner) Run(ctx context.Context, c process.Command) (process.Result, error) {
	started := time.Now()
	res, err := r.next.Run(ctx, c)
	if err != nil {
		// The command never ran; nothing to report.
		return res, err
	}

	r.metrics.WriteCommandRun(influxdb.CommandRunPoint{
		SwitchID: r.switchID,
		Kind:     c.Kind,
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
		Time:     started,
	})
	return res, nil
}
