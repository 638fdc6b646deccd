package handler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-bridge/internal/gpio"
	"github.com/sweeney/gpio-bridge/internal/logic"
)

// Table dispatches command bytes to actions on many lines.
// Each signal applies its action to the line's current value.
type Table struct {
	cache *gpio.Cache
	sink  Sink

	mu      sync.RWMutex
	signals map[byte]logic.Binding
}

// NewTable creates an empty dispatch table.
func NewTable(cache *gpio.Cache, sink Sink) *Table {
	return &Table{
		cache:   cache,
		sink:    sink,
		signals: make(map[byte]logic.Binding),
	}
}

// Bind registers b. The line is acquired and the action applied once, so a
// bad identifier is reported at setup rather than on the first command.
// A later binding for the same signal replaces the earlier one.
func (t *Table) Bind(b logic.Binding) error {
	if _, err := t.apply(b); err != nil {
		return fmt.Errorf("bind %s: %w", b, err)
	}
	t.mu.Lock()
	t.signals[b.Signal] = b
	t.mu.Unlock()
	return nil
}

// Bindings returns the registered bindings ordered by signal.
func (t *Table) Bindings() []logic.Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bs := make([]logic.Binding, 0, len(t.signals))
	for _, b := range t.signals {
		bs = append(bs, b)
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].Signal < bs[j].Signal })
	return bs
}

// Send applies the action bound to signal. Status returns the line's value.
func (t *Table) Send(signal byte) (logic.Reply, error) {
	t.mu.RLock()
	b, ok := t.signals[signal]
	t.mu.RUnlock()
	if !ok {
		return logic.Reply{}, fmt.Errorf("%w: no GPIO for the signal 0x%02x", ErrUnknownCommand, signal)
	}
	return t.apply(b)
}

// Handle applies the action bound to b, discarding any status reply.
func (t *Table) Handle(b byte) error {
	_, err := t.Send(b)
	return err
}

// InitDefault deasserts every bound line.
func (t *Table) InitDefault() error {
	seen := make(map[string]bool)
	for _, b := range t.Bindings() {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		if _, err := t.apply(logic.Binding{Signal: b.Signal, ID: b.ID, Action: logic.ActionOff}); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) apply(b logic.Binding) (logic.Reply, error) {
	var (
		reply logic.Reply
		event logic.Event
	)
	err := t.cache.WithLine(b.ID, func(h *gpio.Handle) error {
		value, err := h.Value()
		if err != nil {
			return err
		}
		next, r := b.Action.Apply(value)
		if err := h.SetValue(next); err != nil {
			return fmt.Errorf("unable to set %d value for GPIO %s: %w", next, b.ID, err)
		}
		reply = r
		addr := h.Address()
		event = logic.Event{
			Timestamp: time.Now(),
			ID:        b.ID,
			Chip:      addr.Chip,
			Offset:    addr.Offset,
			Action:    b.Action,
			Value:     next,
			State:     logic.StateOf(next),
		}
		return nil
	})
	if err != nil {
		return logic.Reply{}, err
	}
	if b.Action.Changes() {
		emit(t.sink, event)
	}
	return reply, nil
}
