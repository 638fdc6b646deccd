// Package protocol serves the single-byte command protocol: each byte read
// is handed to a Handler and answered with one ACK or NAK byte.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sweeney/gpio-bridge/internal/handler"
)

// Wire values.
const (
	ACK byte = 0x06
	NAK byte = 0x15
	EOT byte = 0x04
)

// Config holds the wire values and the optional idle timeout.
type Config struct {
	ACK byte
	NAK byte
	EOT byte

	// IdleTimeout, when positive, ends a session that sends nothing for that long.
	// Only transports with read deadlines honour it.
	IdleTimeout time.Duration
}

// DefaultConfig returns the standard ACK/NAK/EOT values and no idle timeout.
func DefaultConfig() Config {
	return Config{ACK: ACK, NAK: NAK, EOT: EOT}
}

// State is a session's position in the read/dispatch loop.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is one peer's command stream.
type Session struct {
	ID     string
	Remote string
	Start  time.Time

	mu       sync.Mutex
	state    State
	commands int
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Commands returns how many commands were answered.
func (s *Session) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Observer is told about session lifecycle and every answered command.
type Observer interface {
	SessionOpened(s *Session)
	CommandHandled(s *Session, b byte, err error)
	SessionClosed(s *Session)
}

type nopObserver struct{}

func (nopObserver) SessionOpened(*Session)                {}
func (nopObserver) CommandHandled(*Session, byte, error) {}
func (nopObserver) SessionClosed(*Session)                {}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Dispatcher runs sessions against one Handler. It is safe to serve many
// sessions at once; the Handler is responsible for serializing line access.
type Dispatcher struct {
	handler handler.Handler
	cfg     Config
	obs     Observer
	log     *logrus.Entry
}

// NewDispatcher creates a Dispatcher. obs may be nil.
func NewDispatcher(h handler.Handler, cfg Config, obs Observer, log *logrus.Entry) *Dispatcher {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Dispatcher{handler: h, cfg: cfg, obs: obs, log: log}
}

// Serve runs one session on rw. It returns nil when the peer sends EOT,
// io.EOF when the stream ends, and any other read or write error as is.
// The reply to each command is written before the next byte is read.
func (d *Dispatcher) Serve(rw io.ReadWriter, remote string) error {
	s := &Session{
		ID:     uuid.New().String(),
		Remote: remote,
		Start:  time.Now(),
	}
	log := d.log.WithFields(logrus.Fields{"session": s.ID, "remote": remote})
	log.Info("session opened")
	d.obs.SessionOpened(s)

	err := d.loop(s, rw, log)

	s.setState(StateClosed)
	d.obs.SessionClosed(s)
	fields := logrus.Fields{"commands": s.Commands(), "duration": time.Since(s.Start).Round(time.Millisecond)}
	switch {
	case err == nil:
		log.WithFields(fields).Info("session closed by peer")
	case errors.Is(err, io.EOF):
		log.WithFields(fields).Info("client disconnected")
	default:
		log.WithFields(fields).WithError(err).Warn("session ended")
	}
	return err
}

func (d *Dispatcher) loop(s *Session, rw io.ReadWriter, log *logrus.Entry) error {
	var buf [1]byte
	for {
		if dl, ok := rw.(readDeadliner); ok && d.cfg.IdleTimeout > 0 {
			if err := dl.SetReadDeadline(time.Now().Add(d.cfg.IdleTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}
		if _, err := io.ReadFull(rw, buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return fmt.Errorf("read command: %w", err)
		}

		b := buf[0]
		if b == d.cfg.EOT {
			return nil
		}

		s.setState(StateDispatching)
		err := d.handler.Handle(b)
		reply := d.cfg.ACK
		if err != nil {
			reply = d.cfg.NAK
			log.WithError(err).WithField("command", fmt.Sprintf("0x%02x", b)).Warn("command failed")
		} else {
			log.WithField("command", fmt.Sprintf("0x%02x", b)).Debug("command ok")
		}

		// The handler has already acted, so the command is counted even if
		// the reply cannot be delivered.
		_, werr := rw.Write([]byte{reply})
		s.mu.Lock()
		s.commands++
		s.state = StateIdle
		s.mu.Unlock()
		d.obs.CommandHandled(s, b, err)
		if werr != nil {
			return fmt.Errorf("write reply: %w", werr)
		}
	}
}
