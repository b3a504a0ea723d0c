// Package commandline implements on/off switches driven by shell commands.
//
// A Switch holds three commands: one to turn the device on, one to turn it
// off, and an optional one to query its state. The state command is run on a
// schedule and its result becomes the cached state:
//
//   - exit-code mode (no value template): exit 0 means on, any other exit
//     means off, a timeout means unknown
//   - capture mode (value template set): stdout is rendered through the
//     template and the result is interpreted; no output means unknown
//
// Without a state command the switch is in assumed-state mode: it never
// polls and flips its cached state after each successful on/off command.
//
// # Overlapping refreshes
//
// Each switch owns a PollGuard. If a refresh is still running when the next
// tick fires, the new refresh is dropped and a warning is logged. Refreshes
// are never queued.
//
// # Lifecycle
//
//	sw, err := commandline.NewSwitch(commandline.Options{
//	    ID:           "garden-pump",
//	    CommandOn:    "relayctl 3 on",
//	    CommandOff:   "relayctl 3 off",
//	    CommandState: "relayctl 3 status | grep -q ON",
//	    Runner:       process.NewRunner(process.Config{}),
//	    Host:         bridge,
//	})
//	sw.Start(commandline.TickerScheduler{})
//	defer sw.Stop()
package commandline
