package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Lines         []LineJSON   `json:"lines"`
	Sessions      SessionsJSON `json:"sessions"`
	Commands      CommandsJSON `json:"commands"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Config        ConfigJSON   `json:"config"`
}

// LineJSON is the JSON representation of one line.
type LineJSON struct {
	ID      string `json:"id"`
	Chip    int    `json:"chip"`
	Offset  int    `json:"offset"`
	Value   int    `json:"value"`
	State   string `json:"state"`
	Action  string `json:"last_action"`
	Changes int    `json:"changes"`
	Changed string `json:"changed"`
}

// SessionsJSON reports session counts.
type SessionsJSON struct {
	Active int `json:"active"`
	Total  int `json:"total"`
}

// CommandsJSON reports how commands were answered.
type CommandsJSON struct {
	ACK int `json:"ack"`
	NAK int `json:"nak"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Listen        string `json:"listen"`
	Serial        string `json:"serial,omitempty"`
	Mode          string `json:"mode"`
	Chips         int    `json:"chips"`
	ChipPath      string `json:"chip_path"`
	IdleTimeoutMs int64  `json:"idle_timeout_ms"`
	Broker        string `json:"broker,omitempty"`
	HTTPAddr      string `json:"http_addr"`
}

func lineJSON(l Line) LineJSON {
	state := string(l.State)
	if state == "" {
		state = "UNKNOWN"
	}
	return LineJSON{
		ID:      l.ID,
		Chip:    l.Chip,
		Offset:  l.Offset,
		Value:   l.Value,
		State:   state,
		Action:  l.Action.String(),
		Changes: l.Changes,
		Changed: l.Changed.UTC().Format(time.RFC3339),
	}
}

func buildInner(snap Snapshot) StatusInner {
	lines := make([]LineJSON, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, lineJSON(l))
	}

	return StatusInner{
		Lines:         lines,
		Sessions:      SessionsJSON{Active: snap.ActiveSessions, Total: snap.TotalSessions},
		Commands:      CommandsJSON{ACK: snap.Counts.ACK, NAK: snap.Counts.NAK},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Listen:        snap.Config.Listen,
			Serial:        snap.Config.Serial,
			Mode:          snap.Config.Mode,
			Chips:         snap.Config.Chips,
			ChipPath:      snap.Config.ChipPath,
			IdleTimeoutMs: snap.Config.IdleTimeoutMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatLine returns the JSON for a single line.
func FormatLine(l Line) []byte {
	data, _ := json.MarshalIndent(lineJSON(l), "", "  ")
	return data
}
