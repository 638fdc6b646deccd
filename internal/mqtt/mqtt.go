// Package mqtt publishes line changes and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-bridge/internal/logic"
)

// Topic is the MQTT topic for line change events.
const Topic = "gpio/bridge/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "gpio/bridge/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a line change event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the JSON body of a line change event.
type Payload struct {
	Line LinePayload `json:"line"`
}

// LinePayload contains the line change details.
type LinePayload struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Chip      int    `json:"chip"`
	Offset    int    `json:"offset"`
	Action    string `json:"action"`
	Value     int    `json:"value"`
	State     string `json:"state"`
}

// FormatPayload creates the JSON payload for a line change event.
func FormatPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Line: LinePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			ID:        event.ID,
			Chip:      event.Chip,
			Offset:    event.Offset,
			Action:    event.Action.String(),
			Value:     event.Value,
			State:     string(event.State),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events
// that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
