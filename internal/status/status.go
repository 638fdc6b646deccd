// Package status provides a thread-safe status tracker for the gpio-bridge daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-bridge/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Listen        string
	Serial        string
	Mode          string
	Chips         int
	ChipPath      string
	IdleTimeoutMs int64
	Broker        string
	HTTPAddr      string
}

// Line is the last known state of one output line.
type Line struct {
	ID      string
	Chip    int
	Offset  int
	Value   int
	State   logic.State
	Action  logic.Action
	Changes int
	Changed time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Lines          []Line // sorted by ID
	ActiveSessions int
	TotalSessions  int
	Counts         logic.CommandCounts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	lines map[string]Line
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		lines: make(map[string]Line),
	}
}

// LineChanged records a line event.
func (t *Tracker) LineChanged(e logic.Event) {
	t.mu.Lock()
	l := t.lines[e.ID]
	t.lines[e.ID] = Line{
		ID:      e.ID,
		Chip:    e.Chip,
		Offset:  e.Offset,
		Value:   e.Value,
		State:   e.State,
		Action:  e.Action,
		Changes: l.Changes + 1,
		Changed: e.Timestamp,
	}
	t.mu.Unlock()
}

// Line returns the last known state of the line id.
func (t *Tracker) Line(id string) (Line, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.lines[id]
	return l, ok
}

// SessionOpened counts a new session.
func (t *Tracker) SessionOpened() {
	t.mu.Lock()
	t.snap.ActiveSessions++
	t.snap.TotalSessions++
	t.mu.Unlock()
}

// SessionClosed counts a finished session.
func (t *Tracker) SessionClosed() {
	t.mu.Lock()
	if t.snap.ActiveSessions > 0 {
		t.snap.ActiveSessions--
	}
	t.mu.Unlock()
}

// RecordCommand counts one answered command.
func (t *Tracker) RecordCommand(ok bool) {
	t.mu.Lock()
	if ok {
		t.snap.Counts.ACK++
	} else {
		t.snap.Counts.NAK++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Lines = make([]Line, 0, len(t.lines))
	for _, l := range t.lines {
		s.Lines = append(s.Lines, l)
	}
	t.mu.RUnlock()

	sort.Slice(s.Lines, func(i, j int) bool { return s.Lines[i].ID < s.Lines[j].ID })
	s.Now = time.Now()
	return s
}
