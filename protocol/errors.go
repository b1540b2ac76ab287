package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// ProtocolError represents a response the host could not accept.
type ProtocolError struct {
	// Operation is the command whose response was rejected
	Operation string

	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: invalid response: %v", e.Operation, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
