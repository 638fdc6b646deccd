// Package gpio provides GPIO output lines with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Device opens GPIO controller chips.
type Device interface {
	// OpenChip opens the chip at the given device path, e.g. /dev/gpiochip1.
	OpenChip(path string) (Chip, error)
}

// Chip is one open GPIO controller.
type Chip interface {
	// RequestOutput requests the line at offset as an output driven to initial.
	RequestOutput(offset, initial int, consumer string) (Line, error)

	// Close releases the chip.
	Close() error
}

// Line is one GPIO line requested as an output.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
	Close() error
}

// Board layout.
const (
	LinesPerChip = 32
	LinesPerPort = 8
)

// Defaults for CacheConfig.
const (
	DefaultChips    = 4
	DefaultBasePath = "/dev/gpiochip"
	DefaultConsumer = "gpio-bridge"
)
