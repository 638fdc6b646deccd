package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeDevice is a test double that simulates chips and output lines in memory.
type FakeDevice struct {
	mu sync.Mutex

	// OpenError, if set, is returned by OpenChip.
	OpenError error
	// RequestError, if set, is returned by RequestOutput.
	RequestError error
	// SetError, if set, is returned by Line.SetValue.
	SetError error

	// Opened records every chip path passed to OpenChip, in order.
	Opened []string
	// Requests counts output requests per "path:offset".
	Requests map[string]int

	levels map[string]int
	held   map[string]bool
}

// NewFakeDevice creates an empty FakeDevice.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		Requests: make(map[string]int),
		levels:   make(map[string]int),
		held:     make(map[string]bool),
	}
}

// OpenChip records the open and returns a fake chip.
func (f *FakeDevice) OpenChip(path string) (Chip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenError != nil {
		return nil, f.OpenError
	}
	f.Opened = append(f.Opened, path)
	return &fakeChip{dev: f, path: path}, nil
}

// Level returns the level a line on path is driven to, and whether it is requested.
func (f *FakeDevice) Level(path string, offset int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := lineKey(path, offset)
	return f.levels[key], f.held[key]
}

// OpenCount returns how many times OpenChip succeeded.
func (f *FakeDevice) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Opened)
}

// RequestCount returns how many times the line on path was requested.
func (f *FakeDevice) RequestCount(path string, offset int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Requests[lineKey(path, offset)]
}

func lineKey(path string, offset int) string {
	return fmt.Sprintf("%s:%d", path, offset)
}

type fakeChip struct {
	dev  *FakeDevice
	path string
}

func (c *fakeChip) RequestOutput(offset, initial int, consumer string) (Line, error) {
	f := c.dev
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestError != nil {
		return nil, f.RequestError
	}
	if offset < 0 || offset >= LinesPerChip {
		return nil, fmt.Errorf("offset %d out of range", offset)
	}
	key := lineKey(c.path, offset)
	if f.held[key] {
		return nil, errors.New("device or resource busy")
	}
	f.held[key] = true
	f.levels[key] = initial
	f.Requests[key]++
	return &fakeLine{dev: f, key: key}, nil
}

func (c *fakeChip) Close() error {
	return nil
}

type fakeLine struct {
	dev *FakeDevice
	key string
}

func (l *fakeLine) Value() (int, error) {
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	return l.dev.levels[l.key], nil
}

func (l *fakeLine) SetValue(value int) error {
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	if l.dev.SetError != nil {
		return l.dev.SetError
	}
	l.dev.levels[l.key] = value
	return nil
}

func (l *fakeLine) Close() error {
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	delete(l.dev.held, l.key)
	return nil
}
