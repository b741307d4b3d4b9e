package transport

import (
	"fmt"
)

// Operation names used in TransportError.Op.
const (
	OpChat    = "chat"
	OpApprove = "approve"
)

// TransportError is the single failure kind returned by Client. Network
// errors, non-2xx statuses, timeouts and undecodable bodies all surface as
// this type; StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newError(op string, status int, err error, format string, args ...any) *TransportError {
	return &TransportError{
		Op:         op,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: status,
		Err:        err,
	}
}
