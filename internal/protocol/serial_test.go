package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gpio-bridge/internal/logging"
)

func TestServeSerialSessionsBackToBack(t *testing.T) {
	h := &fakeHandler{}
	d := NewDispatcher(h, DefaultConfig(), nil, logging.Discard())
	port, peer := net.Pipe()
	defer peer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ServeSerial(ctx, port, "/dev/ttyTEST", d) }()

	reply := make([]byte, 1)
	send := func(b byte) {
		t.Helper()
		if _, err := peer.Write([]byte{b}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	expect := func(want byte) {
		t.Helper()
		peer.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadFull(peer, reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		if reply[0] != want {
			t.Errorf("got 0x%02x, want 0x%02x", reply[0], want)
		}
	}

	send(0x31)
	expect(ACK)
	send(EOT)
	// A new session starts on the same port.
	send(0x30)
	expect(ACK)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSerial did not return after cancel")
	}
}

func TestServeSerialPortGone(t *testing.T) {
	d := NewDispatcher(&fakeHandler{}, DefaultConfig(), nil, logging.Discard())
	port, peer := net.Pipe()
	peer.Close()

	err := ServeSerial(context.Background(), port, "/dev/ttyTEST", d)
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestOpenSerialNoDevice(t *testing.T) {
	if _, err := OpenSerial(SerialConfig{}); err == nil {
		t.Error("expected error for empty device")
	}
	if _, err := OpenSerial(SerialConfig{Device: "/dev/does-not-exist-gpio-bridge"}); err == nil {
		t.Error("expected error for missing device")
	}
}

// quietPort behaves like a UART opened with a read timeout: a read with
// nothing to deliver waits briefly, then returns no data and io.EOF.
type quietPort struct {
	in chan byte

	mu     sync.Mutex
	out    []byte
	closed bool
}

func newQuietPort() *quietPort {
	return &quietPort{in: make(chan byte, 16)}
}

func (*quietPort) timesOut() {}

func (p *quietPort) Read(b []byte) (int, error) {
	if p.isClosed() {
		return 0, errors.New("port closed")
	}
	select {
	case c := <-p.in:
		b[0] = c
		return 1, nil
	case <-time.After(5 * time.Millisecond):
		return 0, io.EOF
	}
}

func (p *quietPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, b...)
	return len(b), nil
}

func (p *quietPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *quietPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *quietPort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out...)
}

func TestServeSerialQuietLineKeepsSession(t *testing.T) {
	h := &fakeHandler{}
	obs := &fakeObserver{}
	d := NewDispatcher(h, DefaultConfig(), obs, logging.Discard())
	port := newQuietPort()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ServeSerial(ctx, port, "/dev/ttyTEST", d) }()

	// Several read timeouts pass between commands.
	port.in <- 0x31
	time.Sleep(30 * time.Millisecond)
	port.in <- 0x30

	deadline := time.Now().Add(2 * time.Second)
	for len(port.written()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := port.written(); !bytes.Equal(got, []byte{ACK, ACK}) {
		t.Errorf("replies: got %v, want [ACK ACK]", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSerial did not return after cancel on a quiet line")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	opened := 0
	for _, e := range obs.events {
		if e.event == "open" {
			opened++
		}
	}
	if opened != 1 {
		t.Errorf("read timeouts should not start new sessions, got %d", opened)
	}
	if !port.isClosed() {
		t.Error("expected the port to be closed")
	}
}
