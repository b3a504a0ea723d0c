// Package history keeps a local record of switch state changes in SQLite.
//
// Rows are written by the bridge for every state change (optimistic or
// polled) and read back by the API. The table is created by the
// switch_state_history migration; old rows are removed with Prune.
package history
