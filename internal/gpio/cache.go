package gpio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedChip is matched by *UnsupportedChipError.
	ErrUnsupportedChip = errors.New("gpio chip not supported on this board")
	// ErrChipOpen wraps a failure to open a chip device.
	ErrChipOpen = errors.New("open gpio chip")
	// ErrLineRequest wraps a failure to request a line as an output.
	ErrLineRequest = errors.New("request gpio line")
)

// UnsupportedChipError reports an identifier that resolves beyond the configured chips.
type UnsupportedChipError struct {
	ID    string
	Path  string // device path the line would live on
	Last  string // device path of the last configured chip
	Chips int
}

func (e *UnsupportedChipError) Error() string {
	return fmt.Sprintf("%s is not supported on this board: it should be on %s but only %d chips are configured (last is %s)",
		e.ID, e.Path, e.Chips, e.Last)
}

func (e *UnsupportedChipError) Is(target error) bool {
	return target == ErrUnsupportedChip
}

// CacheConfig describes the board's chips.
type CacheConfig struct {
	Chips    int    // number of chips, default DefaultChips
	BasePath string // chip N lives at BasePath+N, default DefaultBasePath
	Consumer string // consumer label for requested lines, default DefaultConsumer
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.Chips <= 0 {
		c.Chips = DefaultChips
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.Consumer == "" {
		c.Consumer = DefaultConsumer
	}
	return c
}

// ChipPath returns the device path of chip index.
func (c CacheConfig) ChipPath(index int) string {
	return fmt.Sprintf("%s%d", c.BasePath, index)
}

// Handle is a line held open by the Cache. Handles live until the Cache is closed.
type Handle struct {
	id    string
	addr  Address
	line  Line
	value int
}

// ID returns the identifier the handle was created for.
func (h *Handle) ID() string { return h.id }

// Address returns the resolved chip and offset.
func (h *Handle) Address() Address { return h.addr }

// Value reads the line's current logic value.
func (h *Handle) Value() (int, error) {
	v, err := h.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", h.id, err)
	}
	return v, nil
}

// SetValue drives the line to value.
func (h *Handle) SetValue(value int) error {
	if err := h.line.SetValue(value); err != nil {
		return fmt.Errorf("set %s to %d: %w", h.id, value, err)
	}
	h.value = value
	return nil
}

// LineInfo is a point-in-time view of one cached line.
type LineInfo struct {
	ID      string
	Address Address
	Value   int // last value written through the cache
}

// Cache lazily opens chips and lines and keeps them for the life of the process.
// Each identifier is requested from the device at most once; every later access
// reuses the same Handle. A single mutex guards the chip slots, the line map and
// any state mutated inside WithLine.
type Cache struct {
	mu    sync.Mutex
	dev   Device
	cfg   CacheConfig
	log   *logrus.Entry
	chips []Chip
	lines map[string]*Handle
}

// NewCache creates an empty cache over dev.
func NewCache(dev Device, cfg CacheConfig, log *logrus.Entry) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		dev:   dev,
		cfg:   cfg,
		log:   log,
		chips: make([]Chip, cfg.Chips),
		lines: make(map[string]*Handle),
	}
}

// Config returns the effective configuration.
func (c *Cache) Config() CacheConfig {
	return c.cfg
}

// GetOrCreate returns the handle for id, opening its chip and requesting the
// line on first use.
func (c *Cache) GetOrCreate(id string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrCreate(id)
}

// WithLine runs fn on the handle for id while holding the cache lock, making
// a read-modify-write atomic with respect to every other caller. fn must not
// call back into the cache.
func (c *Cache) WithLine(id string, fn func(h *Handle) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.getOrCreate(id)
	if err != nil {
		return err
	}
	return fn(h)
}

func (c *Cache) getOrCreate(id string) (*Handle, error) {
	if h, ok := c.lines[id]; ok {
		return h, nil
	}

	addr, err := Resolve(id)
	if err != nil {
		return nil, err
	}

	if addr.Chip >= len(c.chips) {
		return nil, &UnsupportedChipError{
			ID:    id,
			Path:  c.cfg.ChipPath(addr.Chip),
			Last:  c.cfg.ChipPath(len(c.chips) - 1),
			Chips: len(c.chips),
		}
	}

	chip := c.chips[addr.Chip]
	if chip == nil {
		path := c.cfg.ChipPath(addr.Chip)
		chip, err = c.dev.OpenChip(path)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrChipOpen, path, err)
		}
		c.chips[addr.Chip] = chip
		c.log.WithField("chip", path).Debug("opened gpio chip")
	}

	line, err := chip.RequestOutput(addr.Offset, 0, c.cfg.Consumer)
	if err != nil {
		return nil, fmt.Errorf("%w %s (%s): %w", ErrLineRequest, id, addr, err)
	}

	h := &Handle{id: id, addr: addr, line: line}
	c.lines[id] = h
	c.log.WithFields(logrus.Fields{
		"id":     id,
		"chip":   addr.Chip,
		"offset": addr.Offset,
	}).Info("requested output line")
	return h, nil
}

// Lines returns the cached lines sorted by identifier.
func (c *Cache) Lines() []LineInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]LineInfo, 0, len(c.lines))
	for _, h := range c.lines {
		infos = append(infos, LineInfo{ID: h.id, Address: h.addr, Value: h.value})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close releases every line and chip. It is only meant for process shutdown.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for id, h := range c.lines {
		if err := h.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %s: %w", id, err))
		}
		delete(c.lines, id)
	}
	for i, chip := range c.chips {
		if chip == nil {
			continue
		}
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip %s: %w", c.cfg.ChipPath(i), err))
		}
		c.chips[i] = nil
	}
	return errors.Join(errs...)
}
