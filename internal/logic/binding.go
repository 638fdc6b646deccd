package logic

import (
	"fmt"
	"strconv"
	"strings"
)

// Binding maps a command byte to an action on one line.
type Binding struct {
	Signal byte
	ID     string
	Action Action
}

func (b Binding) String() string {
	return fmt.Sprintf("0x%02x:%s:%s", b.Signal, b.ID, b.Action)
}

// ParseSignal parses a command byte written in Go integer syntax, e.g. 0x31 or 49.
func ParseSignal(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid signal %q: %w", s, err)
	}
	return byte(v), nil
}

// ParseBinding parses SIGNAL:ID:ACTION, e.g. 0x31:GPIO1_C0:on.
func ParseBinding(s string) (Binding, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Binding{}, fmt.Errorf("invalid binding %q: want SIGNAL:ID:ACTION", s)
	}
	signal, err := ParseSignal(parts[0])
	if err != nil {
		return Binding{}, fmt.Errorf("binding %q: %w", s, err)
	}
	id := strings.TrimSpace(parts[1])
	if id == "" {
		return Binding{}, fmt.Errorf("binding %q: empty identifier", s)
	}
	action, err := ParseAction(parts[2])
	if err != nil {
		return Binding{}, fmt.Errorf("binding %q: %w", s, err)
	}
	return Binding{Signal: signal, ID: id, Action: action}, nil
}
