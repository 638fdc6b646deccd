package handler

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sweeney/gpio-bridge/internal/gpio"
	"github.com/sweeney/gpio-bridge/internal/logic"
)

// LED command bytes.
const (
	CmdHandshake byte = 0x05
	CmdOff       byte = 0x30
	CmdOn        byte = 0x31
	CmdBlink     byte = 0x32
)

// DefaultBlinkInterval is the half period used when LEDConfig leaves it unset.
const DefaultBlinkInterval = 500 * time.Millisecond

// LEDConfig configures an LED.
type LEDConfig struct {
	// ActiveLow swaps the on and off values.
	ActiveLow bool
	// BlinkInterval is how long the LED stays on, then off, while blinking.
	BlinkInterval time.Duration
}

// LED drives one line as an On/Off/Blink indicator.
//
// The recorded state is only touched inside Cache.WithLine, so it shares the
// cache lock with the line writes. mu orders blinker start and stop.
type LED struct {
	cache    *gpio.Cache
	id       string
	addr     gpio.Address
	valueOn  int
	valueOff int
	interval time.Duration
	sink     Sink
	log      *logrus.Entry

	state logic.State

	mu    sync.Mutex
	blink *blinker
}

type blinker struct {
	stop chan struct{}
	done chan struct{}
}

// NewLED acquires the line for id and returns an LED in the Off state.
// It does not drive the line; call InitDefault for that.
func NewLED(cache *gpio.Cache, id string, cfg LEDConfig, sink Sink, log *logrus.Entry) (*LED, error) {
	h, err := cache.GetOrCreate(id)
	if err != nil {
		return nil, fmt.Errorf("get output handle for %s: %w", id, err)
	}

	l := &LED{
		cache:    cache,
		id:       id,
		addr:     h.Address(),
		valueOn:  1,
		valueOff: 0,
		interval: cfg.BlinkInterval,
		sink:     sink,
		log:      log.WithField("id", id),
		state:    logic.StateOff,
	}
	if cfg.ActiveLow {
		l.valueOn, l.valueOff = 0, 1
	}
	if l.interval <= 0 {
		l.interval = DefaultBlinkInterval
	}
	return l, nil
}

// ID returns the LED's line identifier.
func (l *LED) ID() string {
	return l.id
}

// State returns the recorded state.
func (l *LED) State() logic.State {
	var s logic.State
	l.cache.WithLine(l.id, func(*gpio.Handle) error {
		s = l.state
		return nil
	})
	return s
}

// InitDefault switches the LED off.
func (l *LED) InitDefault() error {
	return l.set(logic.StateOff)
}

// Handle applies one command byte.
func (l *LED) Handle(b byte) error {
	switch b {
	case CmdOn:
		return l.set(logic.StateOn)
	case CmdOff:
		return l.set(logic.StateOff)
	case CmdBlink:
		return l.startBlink()
	case CmdHandshake:
		return nil
	default:
		return fmt.Errorf("%w: unable to parse the value 0x%02x", ErrUnknownCommand, b)
	}
}

// Close stops a running blink loop.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopBlink()
	return nil
}

func (l *LED) set(state logic.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	value := l.valueOff
	action := logic.ActionOff
	if state == logic.StateOn {
		value = l.valueOn
		action = logic.ActionOn
	}

	err := l.cache.WithLine(l.id, func(h *gpio.Handle) error {
		if err := h.SetValue(value); err != nil {
			return fmt.Errorf("unable to set %s state to value %d: %w", l.id, value, err)
		}
		l.state = state
		return nil
	})
	if err != nil {
		return err
	}

	// The blink loop checks the state under the cache lock, so it cannot
	// override the write above even if it ticks before it is stopped.
	l.stopBlink()
	l.log.WithField("value", value).Debugf("led %s", state)
	emit(l.sink, l.event(action, value, state))
	return nil
}

func (l *LED) startBlink() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.cache.WithLine(l.id, func(h *gpio.Handle) error {
		if err := h.SetValue(l.valueOn); err != nil {
			return fmt.Errorf("unable to start blinking %s: %w", l.id, err)
		}
		l.state = logic.StateBlink
		return nil
	})
	if err != nil {
		return err
	}

	if l.blink == nil {
		b := &blinker{stop: make(chan struct{}), done: make(chan struct{})}
		l.blink = b
		go l.blinkLoop(b)
		l.log.WithField("interval", l.interval).Debug("led blinking")
	}
	emit(l.sink, l.event(logic.ActionToggle, l.valueOn, logic.StateBlink))
	return nil
}

// stopBlink must be called with mu held.
func (l *LED) stopBlink() {
	if l.blink == nil {
		return
	}
	close(l.blink.stop)
	<-l.blink.done
	l.blink = nil
}

func (l *LED) blinkLoop(b *blinker) {
	defer close(b.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			err := l.cache.WithLine(l.id, func(h *gpio.Handle) error {
				if l.state != logic.StateBlink {
					return nil
				}
				v, err := h.Value()
				if err != nil {
					return err
				}
				next := l.valueOn
				if v == l.valueOn {
					next = l.valueOff
				}
				return h.SetValue(next)
			})
			if err != nil {
				l.log.WithError(err).Warn("blink toggle failed")
			}
		}
	}
}

func (l *LED) event(action logic.Action, value int, state logic.State) logic.Event {
	return logic.Event{
		Timestamp: time.Now(),
		ID:        l.id,
		Chip:      l.addr.Chip,
		Offset:    l.addr.Offset,
		Action:    action,
		Value:     value,
		State:     state,
	}
}
