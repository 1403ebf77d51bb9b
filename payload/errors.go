package payload

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRecord is returned when a payload converts to no data.
	ErrEmptyRecord = errors.New("payload has no data")
)

// RejectedError reports that the server permanently refused a payload.
// A rejected payload is deleted from the queue and never retried.
type RejectedError struct {
	Record *Record
	Cause  error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("payload %s rejected: %v", e.Record, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RejectedError) Unwrap() error {
	return e.Cause
}

// SendError is delivered to the sender callback for every failed payload.
// Use errors.As to look for a RejectedError or a delivery error in the chain.
type SendError struct {
	Record *Record
	Cause  error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send payload %s: %v", e.Record, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SendError) Unwrap() error {
	return e.Cause
}

// IsRejected reports whether err marks a permanent rejection.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
