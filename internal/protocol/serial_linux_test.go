//go:build linux

package protocol

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sweeney/gpio-bridge/internal/logging"
)

// openPTY returns the master side of a new pseudo terminal and the path of its slave.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	m, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		t.Skipf("pseudo terminals unavailable: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	fd := int(m.Fd())
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		t.Skipf("unlock pty: %v", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		t.Skipf("pty number: %v", err)
	}
	return m, fmt.Sprintf("/dev/pts/%d", n)
}

func TestServeSerialPTYShutdownWhileIdle(t *testing.T) {
	master, slave := openPTY(t)

	port, err := OpenSerial(SerialConfig{Device: slave, ReadTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Skipf("open %s: %v", slave, err)
	}

	d := NewDispatcher(&fakeHandler{}, DefaultConfig(), nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ServeSerial(ctx, port, slave, d) }()

	if _, err := master.Write([]byte{0x31}); err != nil {
		t.Fatalf("write: %v", err)
	}
	replied := make(chan byte, 1)
	go func() {
		b := make([]byte, 1)
		if n, _ := master.Read(b); n == 1 {
			replied <- b[0]
		}
	}()
	select {
	case b := <-replied:
		if b != ACK {
			t.Errorf("reply: got 0x%02x, want ACK", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply over the pty")
	}

	// Leave the line idle, then shut down.
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSerial still blocked after cancel on an idle line")
	}
}
