package bootloader

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/protocol"
)

var (
	// ErrNotQueried is returned by every operation except Query until the
	// device capabilities have been read.
	ErrNotQueried = errors.New("device not queried")

	// ErrNoConfigRegion indicates config programming was requested but the
	// device exposes no config region.
	ErrNoConfigRegion = errors.New("cannot program config words for this device: no config memory regions")

	// ErrNoProgrammableRegion indicates the device reported no program or
	// EEDATA region.
	ErrNoProgrammableRegion = errors.New("cannot program memory: no program/eedata memory regions")

	// ErrNotImplemented is returned for operations the bootloader cannot serve.
	ErrNotImplemented = errors.New("not implemented")
)

// TransportError indicates that a packet could not be written to or read
// from the device.
type TransportError struct {
	// Op is "write" or "read"
	Op string

	// Command is the command code of the packet being exchanged
	Command byte

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s (command 0x%02X): %v", e.Op, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RegionError attaches the memory region being processed to an error.
type RegionError struct {
	Region protocol.MemoryRegion
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %s: %v", e.Region, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// VerificationMismatchError indicates that device memory differs from the
// firmware image. Address is the device word address of the first
// differing byte and Offset its position within that word.
type VerificationMismatchError struct {
	Region   protocol.MemoryRegion
	Address  uint32
	Offset   int
	Expected byte
	Actual   byte
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("verification mismatch in %s region at 0x%X (byte %d): expected 0x%02X, got 0x%02X",
		e.Region.Type, e.Address, e.Offset, e.Expected, e.Actual)
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
