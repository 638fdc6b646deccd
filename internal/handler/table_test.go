package handler

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/gpio-bridge/internal/gpio"
	"github.com/sweeney/gpio-bridge/internal/logging"
	"github.com/sweeney/gpio-bridge/internal/logic"
)

func newTestTable(t *testing.T) (*Table, *gpio.FakeDevice, *recorder) {
	t.Helper()
	dev := gpio.NewFakeDevice()
	cache := gpio.NewCache(dev, gpio.CacheConfig{}, logging.Discard())
	t.Cleanup(func() { cache.Close() })
	rec := &recorder{}
	return NewTable(cache, rec), dev, rec
}

func mustBind(t *testing.T, tbl *Table, s string) {
	t.Helper()
	b, err := logic.ParseBinding(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if err := tbl.Bind(b); err != nil {
		t.Fatalf("bind %q: %v", s, err)
	}
}

func TestTableOnOffToggle(t *testing.T) {
	tbl, dev, _ := newTestTable(t)
	mustBind(t, tbl, "0x30:GPIO0_A1:off")
	mustBind(t, tbl, "0x31:GPIO0_A1:on")
	mustBind(t, tbl, "0x74:GPIO0_A1:toggle")

	// Each binding applied its action once: off, on, toggle.
	if v, _ := dev.Level("/dev/gpiochip0", 1); v != 0 {
		t.Fatalf("level after binding: got %d, want 0", v)
	}

	steps := []struct {
		signal byte
		want   int
	}{
		{0x31, 1},
		{0x30, 0},
		{0x74, 1},
		{0x74, 0},
		{0x74, 1},
		{0x31, 1},
	}
	for i, s := range steps {
		if _, err := tbl.Send(s.signal); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if v, _ := dev.Level("/dev/gpiochip0", 1); v != s.want {
			t.Errorf("step %d (0x%02x): level %d, want %d", i, s.signal, v, s.want)
		}
	}
}

func TestTableStatus(t *testing.T) {
	tbl, dev, rec := newTestTable(t)
	mustBind(t, tbl, "0x31:GPIO2_B0:on")
	mustBind(t, tbl, "0x3f:GPIO2_B0:status")
	events := len(rec.Events())

	reply, err := tbl.Send(0x3f)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if reply != (logic.Reply{Value: 1, OK: true}) {
		t.Errorf("reply: got %+v, want value 1", reply)
	}
	if v, _ := dev.Level("/dev/gpiochip2", 8); v != 1 {
		t.Errorf("status changed the line: level %d", v)
	}
	if len(rec.Events()) != events {
		t.Error("status should not emit an event")
	}

	reply, err = tbl.Send(0x31)
	if err != nil {
		t.Fatalf("on: %v", err)
	}
	if reply.OK {
		t.Errorf("on should not reply, got %+v", reply)
	}
}

func TestTableNull(t *testing.T) {
	tbl, dev, _ := newTestTable(t)
	mustBind(t, tbl, "0x31:GPIO0_A2:on")
	mustBind(t, tbl, "0x05:GPIO0_A2:null")

	if err := tbl.Handle(0x05); err != nil {
		t.Fatalf("null: %v", err)
	}
	if v, _ := dev.Level("/dev/gpiochip0", 2); v != 1 {
		t.Errorf("null changed the line: level %d", v)
	}
}

func TestTableUnknownSignal(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	mustBind(t, tbl, "0x31:GPIO0_A2:on")

	err := tbl.Handle(0x99)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestTableIndependentLines(t *testing.T) {
	tbl, dev, _ := newTestTable(t)
	mustBind(t, tbl, "0x41:GPIO0_A0:toggle")
	mustBind(t, tbl, "0x42:GPIO1_A0:toggle")

	for _, s := range []byte{0x41, 0x41, 0x41, 0x42} {
		if err := tbl.Handle(s); err != nil {
			t.Fatalf("0x%02x: %v", s, err)
		}
	}
	// Each binding toggled once at registration, then A three times and B once.
	if v, _ := dev.Level("/dev/gpiochip0", 0); v != 0 {
		t.Errorf("GPIO0_A0: level %d, want 0", v)
	}
	if v, _ := dev.Level("/dev/gpiochip1", 0); v != 0 {
		t.Errorf("GPIO1_A0: level %d, want 0", v)
	}
}

func TestTableInitDefault(t *testing.T) {
	tbl, dev, _ := newTestTable(t)
	mustBind(t, tbl, "0x41:GPIO0_A0:on")
	mustBind(t, tbl, "0x42:GPIO0_A1:on")
	mustBind(t, tbl, "0x43:GPIO0_A1:status")

	if err := tbl.InitDefault(); err != nil {
		t.Fatalf("InitDefault: %v", err)
	}
	for _, off := range []int{0, 1} {
		if v, _ := dev.Level("/dev/gpiochip0", off); v != 0 {
			t.Errorf("offset %d: level %d, want 0", off, v)
		}
	}
}

func TestTableBindInvalid(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	err := tbl.Bind(logic.Binding{Signal: 0x31, ID: "GPIO9_A0", Action: logic.ActionOn})
	if !errors.Is(err, gpio.ErrUnsupportedChip) {
		t.Errorf("expected ErrUnsupportedChip, got %v", err)
	}
	if len(tbl.Bindings()) != 0 {
		t.Error("failed bind must not register the signal")
	}
}

func TestTableBindings(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	mustBind(t, tbl, "0x42:GPIO0_A1:off")
	mustBind(t, tbl, "0x41:GPIO0_A0:on")

	want := []logic.Binding{
		{Signal: 0x41, ID: "GPIO0_A0", Action: logic.ActionOn},
		{Signal: 0x42, ID: "GPIO0_A1", Action: logic.ActionOff},
	}
	if diff := cmp.Diff(want, tbl.Bindings()); diff != "" {
		t.Errorf("bindings (-want +got):\n%s", diff)
	}
}

func TestTableEvents(t *testing.T) {
	tbl, _, rec := newTestTable(t)
	mustBind(t, tbl, "0x74:GPIO1_C0:toggle")

	tbl.Handle(0x74)

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	last := events[1]
	if last.ID != "GPIO1_C0" || last.Chip != 1 || last.Offset != 16 {
		t.Errorf("event line: got %+v", last)
	}
	if last.Action != logic.ActionToggle || last.Value != 0 || last.State != logic.StateOff {
		t.Errorf("event: got %+v", last)
	}
}

func TestTableConcurrentToggles(t *testing.T) {
	tbl, dev, _ := newTestTable(t)
	mustBind(t, tbl, "0x30:GPIO0_A1:off")
	mustBind(t, tbl, "0x74:GPIO0_A1:toggle")
	if _, err := tbl.Send(0x30); err != nil {
		t.Fatalf("off: %v", err)
	}

	// An odd number of toggles only ends high if no read-modify-write is lost.
	const toggles = 1001
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := tbl.Send(0x74); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if v, _ := dev.Level("/dev/gpiochip0", 1); v != 1 {
		t.Errorf("level after %d toggles: got %d, want 1", toggles, v)
	}
	if n := dev.RequestCount("/dev/gpiochip0", 1); n != 1 {
		t.Errorf("line requests: got %d, want 1", n)
	}
}
