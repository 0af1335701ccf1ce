// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for startup and mirror failure classes
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMirrorUnavailable = errors.New("state mirror unavailable")
)

// ProtocolError represents a failed command send to a switch, with enough
// context to attribute it in logs and metrics. The operation is abandoned;
// a later packet-in or rebuild re-attempts naturally.
type ProtocolError struct {
	Operation string
	SwitchID  uint64
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed on dpid %d: %v", e.Operation, e.SwitchID, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new protocol error
func NewProtocolError(operation string, switchID uint64, err error) *ProtocolError {
	return &ProtocolError{Operation: operation, SwitchID: switchID, Err: err}
}
