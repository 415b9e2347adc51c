package rtc

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDescriptor means a remote offer/answer could not be
	// applied. The session moves to StateFailed and is not retried.
	ErrMalformedDescriptor = errors.New("malformed remote descriptor")

	// ErrConnectionFailed means the transport itself gave up.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSessionClosed is returned when starting an already-torn-down
	// session.
	ErrSessionClosed = errors.New("session closed")
)

// SessionError wraps an error with the negotiation operation that
// produced it.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
