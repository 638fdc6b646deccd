// Package logic contains pure business logic for the GPIO bridge: the command
// actions and how they transform a line's value.
// This package has NO external dependencies (no GPIO, network, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of an output line.
type State string

const (
	StateOn    State = "ON"
	StateOff   State = "OFF"
	StateBlink State = "BLINK"
)

// StateOf maps a raw line value to its logical state.
func StateOf(value int) State {
	if value != 0 {
		return StateOn
	}
	return StateOff
}

// Event represents a line change to be published.
type Event struct {
	Timestamp time.Time
	ID        string
	Chip      int
	Offset    int
	Action    Action
	Value     int   // value after the action was applied
	State     State // logical state; BLINK while an LED is blinking
}

// Reply is the optional result of an action. Only Status produces one.
type Reply struct {
	Value int
	OK    bool
}

// CommandCounts tracks how commands were answered since startup.
type CommandCounts struct {
	ACK int
	NAK int
}
