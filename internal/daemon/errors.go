package daemon

import (
	"errors"
	"fmt"
)

// Client-side sentinels, matched with errors.Is.
var (
	// ErrNotConnected: a request was attempted before Connect.
	ErrNotConnected = errors.New("daemon: not connected")

	// ErrConnectionFailed: dialing the daemon socket failed. Wraps the
	// underlying dial error so callers can distinguish a missing socket
	// from a refused one.
	ErrConnectionFailed = errors.New("daemon: connection failed")

	// ErrRequestTimeout: the daemon did not answer within the request
	// deadline.
	ErrRequestTimeout = errors.New("daemon: request timeout")
)

// ServerError carries a failure reported by the daemon itself, tagged
// with the operation that failed.
type ServerError struct {
	Operation string
	Message   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// NewServerError creates a ServerError for the given operation.
func NewServerError(operation, message string) *ServerError {
	return &ServerError{
		Operation: operation,
		Message:   message,
	}
}
