//go:build !linux

package gpio

import "errors"

// CdevDevice is not available on non-Linux platforms.
type CdevDevice struct{}

// NewCdevDevice returns a Device whose chips cannot be opened.
func NewCdevDevice() *CdevDevice {
	return &CdevDevice{}
}

// OpenChip returns an error on non-Linux platforms.
func (CdevDevice) OpenChip(path string) (Chip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
