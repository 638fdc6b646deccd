package logic

import (
	"fmt"
	"strings"
)

// Action is what a command does to a line.
type Action int

const (
	ActionNull Action = iota
	ActionOn
	ActionOff
	ActionToggle
	ActionStatus
)

var actionNames = [...]string{
	ActionNull:   "null",
	ActionOn:     "on",
	ActionOff:    "off",
	ActionToggle: "toggle",
	ActionStatus: "status",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction parses an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for a, n := range actionNames {
		if n == name {
			return Action(a), nil
		}
	}
	return ActionNull, fmt.Errorf("unknown action %q", s)
}

// Apply computes the line's next value from its current one.
// Status reports the value it was given and leaves it unchanged.
func (a Action) Apply(value int) (int, Reply) {
	switch a {
	case ActionOn:
		return 1, Reply{}
	case ActionOff:
		return 0, Reply{}
	case ActionToggle:
		if value == 1 {
			return 0, Reply{}
		}
		return 1, Reply{}
	case ActionStatus:
		return value, Reply{Value: value, OK: true}
	default:
		return value, Reply{}
	}
}

// Changes reports whether the action can alter a line's value.
func (a Action) Changes() bool {
	return a == ActionOn || a == ActionOff || a == ActionToggle
}
