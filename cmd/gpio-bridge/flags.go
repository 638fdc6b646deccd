package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/gpio-bridge/internal/gpio"
	"github.com/sweeney/gpio-bridge/internal/handler"
	"github.com/sweeney/gpio-bridge/internal/logging"
	"github.com/sweeney/gpio-bridge/internal/logic"
	"github.com/sweeney/gpio-bridge/internal/protocol"
)

const (
	modeLED   = "led"
	modeTable = "table"
)

type options struct {
	listen        string
	mode          string
	led           string
	activeLow     bool
	blinkInterval time.Duration
	bindings      bindingList
	chips         int
	chipPath      string
	consumer      string
	idleTimeout   time.Duration
	serial        string
	baud          int
	broker        string
	httpAddr      string
	resolve       string
}

// bindingList collects repeated -bind flags.
type bindingList []logic.Binding

func (l *bindingList) String() string {
	parts := make([]string, len(*l))
	for i, b := range *l {
		parts[i] = b.String()
	}
	return strings.Join(parts, ",")
}

func (l *bindingList) Set(s string) error {
	b, err := logic.ParseBinding(s)
	if err != nil {
		return err
	}
	*l = append(*l, b)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.listen, "listen", ":5000", "TCP address to serve the command protocol on")
	fs.StringVar(&o.mode, "mode", modeLED, `Handler to serve: "led" or "table"`)
	fs.StringVar(&o.led, "led", "GPIO1_C0", "Line driven by the LED handler")
	fs.BoolVar(&o.activeLow, "active-low", false, "LED is lit when the line is low")
	fs.DurationVar(&o.blinkInterval, "blink-interval", handler.DefaultBlinkInterval, "LED blink half-period")
	fs.Var(&o.bindings, "bind", "Table binding SIGNAL:ID:ACTION, e.g. 0x31:GPIO1_C0:on (repeatable)")
	fs.IntVar(&o.chips, "chips", gpio.DefaultChips, "Number of gpiochips on the board")
	fs.StringVar(&o.chipPath, "chip-path", gpio.DefaultBasePath, "Chip device path prefix; the chip index is appended")
	fs.StringVar(&o.consumer, "consumer", gpio.DefaultConsumer, "Consumer label for requested lines")
	fs.DurationVar(&o.idleTimeout, "idle-timeout", 0, "Close sessions idle for this long (0 to disable)")
	fs.StringVar(&o.serial, "serial", "", "Serial device to also serve the protocol on (empty to disable)")
	fs.IntVar(&o.baud, "baud", protocol.DefaultBaud, "Serial baud rate")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	fs.StringVar(&o.httpAddr, "http", ":8080", "HTTP status address (empty to disable)")
	fs.StringVar(&o.resolve, "resolve", "", "Print the chip and offset of a line identifier and exit")
	logging.InitParam(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *options) validate() error {
	switch o.mode {
	case modeLED:
		if o.led == "" {
			return errors.New("-led must be set in led mode")
		}
	case modeTable:
		if len(o.bindings) == 0 {
			return errors.New("table mode needs at least one -bind")
		}
	default:
		return fmt.Errorf("unknown mode %q", o.mode)
	}
	if o.chips <= 0 {
		return fmt.Errorf("-chips must be positive, got %d", o.chips)
	}
	if o.blinkInterval <= 0 {
		return fmt.Errorf("-blink-interval must be positive, got %v", o.blinkInterval)
	}
	if o.idleTimeout < 0 {
		return fmt.Errorf("-idle-timeout must not be negative, got %v", o.idleTimeout)
	}
	return nil
}
