package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Synthetic status codes handed to a RetryPolicy for failures that happen
// before any HTTP status is received.
const (
	// StatusNoNetwork reports that no network path was available.
	StatusNoNetwork = -1

	// StatusTransportFailure reports that the transport faulted while sending
	// or receiving.
	StatusTransportFailure = -2
)

var (
	// ErrNetworkUnavailable is returned by a Transport when there is no
	// connectivity. It is always retryable up to the policy's limit.
	ErrNetworkUnavailable = errors.New("no network")

	// ErrBodyNotAllowed is returned when a GET request is built with a body.
	ErrBodyNotAllowed = errors.New("GET request must not have a body")

	// ErrAlreadyResolved is the panic value raised when a Future is resolved twice.
	ErrAlreadyResolved = errors.New("future already resolved")

	// ErrMissingError replaces the nil error passed to Future.Reject.
	ErrMissingError = errors.New("future rejected without an error")
)

// HTTPError is an error carrying an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// UnexpectedResponseError reports a status code outside 200-299.
type UnexpectedResponseError struct {
	Code    int
	Message string
	Body    []byte
}

// Error implements the error interface.
func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response: %d (%s)", e.Code, e.Message)
}

// StatusCode returns the HTTP status code.
func (e *UnexpectedResponseError) StatusCode() int {
	return e.Code
}

// StatusMessage returns the HTTP status phrase.
func (e *UnexpectedResponseError) StatusMessage() string {
	return e.Message
}

// NewUnexpectedResponseError builds an UnexpectedResponseError, falling back to
// the standard status phrase when message is empty.
func NewUnexpectedResponseError(code int, message string, body []byte) *UnexpectedResponseError {
	if message == "" {
		message = http.StatusText(code)
	}
	return &UnexpectedResponseError{Code: code, Message: message, Body: body}
}

// TransportError reports that the send or receive operation itself failed.
type TransportError struct {
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return "send failed: " + e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// SerializationError reports that a request body could not be produced.
// It is never retried.
type SerializationError struct {
	Cause error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return "serialize request: " + e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// DeserializationError reports that a successful response body could not be
// decoded. It is never retried.
type DeserializationError struct {
	Cause error
}

// Error implements the error interface.
func (e *DeserializationError) Error() string {
	return "deserialize response: " + e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *DeserializationError) Unwrap() error {
	return e.Cause
}

// RetryStatus maps a failed attempt to the status code consulted by the retry
// policy. ok is false for local data errors, which must never be retried.
func RetryStatus(err error) (status int, ok bool) {
	if err == nil {
		return 0, false
	}

	var serErr *SerializationError
	var deserErr *DeserializationError
	if errors.As(err, &serErr) || errors.As(err, &deserErr) {
		return 0, false
	}

	if errors.Is(err, ErrNetworkUnavailable) {
		return StatusNoNetwork, true
	}

	if errors.Is(err, jperrors.ErrRateLimited) {
		return http.StatusTooManyRequests, true
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode(), true
	}

	return StatusTransportFailure, true
}

// IsTransient reports whether err may succeed on a later attempt.
// Connectivity loss, transport faults, timeouts, rate limits and 5xx responses
// are transient; local data errors and other 4xx responses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || jperrors.IsTimeout(err) {
		return true
	}

	status, ok := RetryStatus(err)
	if !ok {
		return false
	}
	switch {
	case status == StatusNoNetwork, status == StatusTransportFailure:
		return true
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
