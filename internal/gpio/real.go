//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevDevice opens chips through the Linux GPIO character device.
type CdevDevice struct{}

// NewCdevDevice returns the character device backed Device.
func NewCdevDevice() *CdevDevice {
	return &CdevDevice{}
}

// OpenChip opens the chip at path.
func (CdevDevice) OpenChip(path string) (Chip, error) {
	chip, err := gpiocdev.NewChip(path)
	if err != nil {
		return nil, err
	}
	return &cdevChip{chip: chip}, nil
}

type cdevChip struct {
	chip *gpiocdev.Chip
}

func (c *cdevChip) RequestOutput(offset, initial int, consumer string) (Line, error) {
	if n := c.chip.Lines(); offset < 0 || offset >= n {
		return nil, fmt.Errorf("offset %d out of range: %s has %d lines", offset, c.chip.Name, n)
	}
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (c *cdevChip) Close() error {
	return c.chip.Close()
}
