// Package mqtt provides the MQTT client used by the command-line switch
// bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain control
//   - Tracked subscriptions, restored after reconnect
//   - Retained online/offline status with a Last Will
//
// Switches are driven through the flat topic scheme shared by all bridges:
//
//	graylogic/command/cmdline/{switch}   inbound commands
//	graylogic/ack/cmdline/{switch}       command acknowledgements
//	graylogic/state/cmdline/{switch}     retained switch state
//	graylogic/health/cmdline             retained bridge health
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("cmdline"), 1, handler)
//
// Enable cfg.Broker.TLS outside of local development; payloads are not
// encrypted beyond the transport.
package mqtt
