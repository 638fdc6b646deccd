package gpio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIdentifier is matched by every identifier parse failure.
var ErrInvalidIdentifier = errors.New("invalid gpio identifier")

// ParseReason says which part of an identifier failed to parse.
type ParseReason string

const (
	BadPrefix ParseReason = "bad prefix"
	BadBank   ParseReason = "bad bank"
	BadPort   ParseReason = "bad port"
	BadPin    ParseReason = "bad pin"
)

// ParseError describes an identifier that does not match GPIO<bank>_<port><pin>.
type ParseError struct {
	ID     string
	Reason ParseReason
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gpio identifier %q: %s", e.ID, e.Reason)
}

// Is reports ErrInvalidIdentifier so callers need not know the concrete reason.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidIdentifier
}

// Address is a resolved physical line: a chip index and the line offset on it.
type Address struct {
	Chip   int
	Offset int
}

func (a Address) String() string {
	return fmt.Sprintf("chip %d offset %d", a.Chip, a.Offset)
}

// Resolve translates an identifier such as GPIO1_C0 into its chip and line offset.
// Ports are lettered from 'a' (case-insensitive) with LinesPerPort lines each,
// and every bank spans LinesPerChip lines.
func Resolve(id string) (Address, error) {
	rest, ok := strings.CutPrefix(id, "GPIO")
	if !ok {
		return Address{}, &ParseError{ID: id, Reason: BadPrefix}
	}

	bankStr, portPin, ok := strings.Cut(rest, "_")
	if !ok {
		return Address{}, &ParseError{ID: id, Reason: BadBank}
	}
	bank, err := strconv.ParseUint(bankStr, 10, 32)
	if err != nil {
		return Address{}, &ParseError{ID: id, Reason: BadBank}
	}

	if portPin == "" {
		return Address{}, &ParseError{ID: id, Reason: BadPort}
	}
	port := portPin[0] | 0x20 // ASCII lowercase
	if port < 'a' || port > 'z' {
		return Address{}, &ParseError{ID: id, Reason: BadPort}
	}

	pin, err := strconv.ParseUint(portPin[1:], 10, 8)
	if err != nil || pin >= LinesPerPort {
		return Address{}, &ParseError{ID: id, Reason: BadPin}
	}

	abs := int(bank)*LinesPerChip + int(port-'a')*LinesPerPort + int(pin)
	return Address{
		Chip:   abs / LinesPerChip,
		Offset: abs % LinesPerChip,
	}, nil
}
