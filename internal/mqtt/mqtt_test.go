package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/gpio-bridge/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		ID:        "GPIO1_C0",
		Chip:      1,
		Offset:    16,
		Action:    logic.ActionOn,
		Value:     1,
		State:     logic.StateOn,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"line":{"timestamp":"2026-02-02T22:18:12Z","id":"GPIO1_C0","chip":1,"offset":16,"action":"on","value":1,"state":"ON"}}`
	if string(payload) != want {
		t.Errorf("payload:\n got %s\nwant %s", payload, want)
	}
}

func TestFormatPayloadActions(t *testing.T) {
	tests := []struct {
		action    logic.Action
		value     int
		state     logic.State
		wantName  string
		wantState string
	}{
		{logic.ActionOn, 1, logic.StateOn, "on", "ON"},
		{logic.ActionOff, 0, logic.StateOff, "off", "OFF"},
		{logic.ActionToggle, 1, logic.StateBlink, "toggle", "BLINK"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			payload, err := FormatPayload(logic.Event{Timestamp: time.Now(), ID: "GPIO0_A0", Action: tt.action, Value: tt.value, State: tt.state})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Line.Action != tt.wantName {
				t.Errorf("action: got %s, want %s", parsed.Line.Action, tt.wantName)
			}
			if parsed.Line.State != tt.wantState {
				t.Errorf("state: got %s, want %s", parsed.Line.State, tt.wantState)
			}
			if parsed.Line.Value != tt.value {
				t.Errorf("value: got %d, want %d", parsed.Line.Value, tt.value)
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-02-03T10:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("payload:\n got %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Event:     "STARTUP",
	})
	want := `{"system":{"timestamp":"2026-02-03T10:00:00Z","event":"STARTUP"}}`
	if string(payload) != want {
		t.Errorf("payload:\n got %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "gpio/bridge/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "gpio/bridge/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(logic.Event{Timestamp: time.Now(), ID: "GPIO1_C0", Action: logic.ActionOn}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.EventCount() != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 event and payload, got %d/%d", len(f.Events), len(f.Payloads))
	}
	if f.Events[0].ID != "GPIO1_C0" {
		t.Errorf("unexpected event: %+v", f.Events[0])
	}
	if len(f.SystemEvents) != 1 || f.SystemEvents[0].Event != "STARTUP" {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(logic.Event{Timestamp: time.Now()}); err == nil {
		t.Error("expected error")
	}
	if f.EventCount() != 0 {
		t.Errorf("expected no events recorded on error, got %d", f.EventCount())
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
