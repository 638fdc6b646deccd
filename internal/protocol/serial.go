package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is used when SerialConfig leaves Baud unset.
const DefaultBaud = 115200

// DefaultSerialReadTimeout bounds each read so a silent UART can still be
// released on shutdown.
const DefaultSerialReadTimeout = 100 * time.Millisecond

// SerialConfig describes a UART to serve the protocol on.
type SerialConfig struct {
	Device      string // e.g. /dev/ttyS1
	Baud        int
	ReadTimeout time.Duration
}

// SerialPort is an open UART. A read that times out returns no data and io.EOF.
type SerialPort struct {
	*serial.Port
}

func (*SerialPort) timesOut() {}

// timeoutReader marks ports whose zero-byte io.EOF means a read timeout
// rather than the end of the stream.
type timeoutReader interface {
	timesOut()
}

// OpenSerial opens the UART with a bounded read timeout.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device not set")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultSerialReadTimeout
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &SerialPort{Port: port}, nil
}

// idleReader retries timed-out reads until ctx is done, so a quiet line
// neither ends the session nor blocks shutdown.
type idleReader struct {
	ctx context.Context
	io.ReadWriter
}

func (r idleReader) Read(p []byte) (int, error) {
	for {
		n, err := r.ReadWriter.Read(p)
		if n == 0 && (err == nil || errors.Is(err, io.EOF)) && r.ctx.Err() == nil {
			continue
		}
		return n, err
	}
}

// ServeSerial runs sessions on port back to back: after an EOT the next byte
// starts a new session. It returns nil once ctx is cancelled, or the error
// that ended the port. port is closed on return.
func ServeSerial(ctx context.Context, port io.ReadWriteCloser, name string, d *Dispatcher) error {
	var once sync.Once
	closePort := func() { once.Do(func() { port.Close() }) }
	defer closePort()

	stop := context.AfterFunc(ctx, closePort)
	defer stop()

	var rw io.ReadWriter = port
	if _, ok := port.(timeoutReader); ok {
		rw = idleReader{ctx: ctx, ReadWriter: port}
	}

	for {
		err := d.Serve(rw, name)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serial %s: %w", name, err)
		}
	}
}
