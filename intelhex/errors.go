package intelhex

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingColon is returned for a line that does not start with ':'.
	ErrMissingColon = errors.New("no leading ':' in record")

	// ErrMalformedRecord is returned for records that are not valid hex or
	// whose length does not match the record length field.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrBlockRevisited is returned when an Extended Linear Address record
	// moves back to a base address whose block was already closed.
	ErrBlockRevisited = errors.New("extended linear address revisits an existing block")

	// ErrNotLoaded is returned when querying an image that was never loaded.
	ErrNotLoaded = errors.New("hex file not loaded")
)

// FormatError describes a record that could not be loaded.
type FormatError struct {
	// Line is the 1-based line number in the input
	Line int

	// Text is the offending line
	Text string

	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %v (%q)", e.Line, e.Err, e.Text)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// ChecksumError indicates a record whose checksum byte does not match its contents.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("invalid checksum: record has 0x%02X, calculated 0x%02X", e.Actual, e.Expected)
}

// UnsupportedRecordError indicates a record type this loader does not handle.
type UnsupportedRecordError struct {
	Type RecordType
}

func (e *UnsupportedRecordError) Error() string {
	return fmt.Sprintf("unsupported hex record type %s", e.Type)
}
