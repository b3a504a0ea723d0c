package commandline

import "strings"

// State is the cached on/off state of a switch.
type State string

const (
	// StateUnknown means the last refresh produced no usable output.
	StateUnknown State = "unknown"

	// StateOff is reported for any non-empty output other than "true".
	StateOff State = "off"

	// StateOn is reported when the chosen output equals "true", ignoring case.
	StateOn State = "on"
)

// IsOn reports whether the state is StateOn.
func (s State) IsOn() bool {
	return s == StateOn
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Interpret derives a switch state from raw command output and an optional
// rendered template value.
//
// Both inputs are trimmed. The rendered value wins over the raw payload when
// it is non-empty. If both are empty the state is StateUnknown; otherwise
// the chosen text maps to StateOn only if it lowercases to "true".
//
// Examples:
//
//	Interpret("true", "")   // StateOn
//	Interpret("1", "")      // StateOff
//	Interpret("1", "TRUE")  // StateOn
//	Interpret("", "")       // StateUnknown
func Interpret(payload, value string) State {
	chosen := strings.TrimSpace(value)
	if chosen == "" {
		chosen = strings.TrimSpace(payload)
	}
	if chosen == "" {
		return StateUnknown
	}
	if strings.ToLower(chosen) == "true" {
		return StateOn
	}
	return StateOff
}
