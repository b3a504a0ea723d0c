// Package template renders value templates against command output.
//
// Templates are expressions compiled with github.com/antonmedv/expr. Two
// variables are available when a template is rendered:
//
//   - value:      the raw payload string
//   - value_json: the payload decoded as JSON, or nil if it is not valid JSON
//
// The expression result is formatted with fmt.Sprint, so boolean results
// render as "true" or "false".
//
// Examples:
//
//	value == "ON"
//	value_json.state
//	value_json.power > 0
//	value_json?.relay?.on ?? false
//
// A template is compiled once when configuration is loaded and may then be
// rendered concurrently.
package template
