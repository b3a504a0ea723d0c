// Package api implements the HTTP REST API and WebSocket server for the
// command-line switch bridge.
//
// This package provides:
//   - REST endpoints to list switches, read their state, and send commands
//   - State history queries backed by the local SQLite history table
//   - A WebSocket hub that pushes every switch state change
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Commands
//
// POST /api/v1/switches/{id}/{on|off|toggle|refresh} returns 202 Accepted
// with a command ID as soon as the command is validated. The command runs in
// the background; its outcome arrives as a state change on the WebSocket and
// as acks on MQTT.
//
// # WebSocket
//
// Clients connect to /api/v1/ws and subscribe to the "switch.state_changed"
// channel:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["switch.state_changed"]}}
package api
