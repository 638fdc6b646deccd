// Package handler turns command bytes into line changes.
package handler

import (
	"errors"

	"github.com/sweeney/gpio-bridge/internal/logic"
)

// ErrUnknownCommand is returned for a byte the handler does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// Handler consumes one command byte at a time.
type Handler interface {
	// InitDefault drives the hardware to a known-safe state before serving.
	InitDefault() error

	// Handle performs the command for b.
	Handle(b byte) error
}

// Sink receives line changes. It is called without any lock held.
type Sink interface {
	LineChanged(event logic.Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(event logic.Event)

// LineChanged calls f(event).
func (f SinkFunc) LineChanged(event logic.Event) {
	f(event)
}

func emit(sink Sink, event logic.Event) {
	if sink != nil {
		sink.LineChanged(event)
	}
}
