package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelNotReady is returned by Send before the data channel is
	// open. The caller decides whether to retry or surface it; nothing
	// is queued, so nothing is silently dropped.
	ErrChannelNotReady = errors.New("channel not ready")

	// ErrSendFailed wraps transport-level send errors.
	ErrSendFailed = errors.New("send failed")
)

// ChannelError wraps an error with the facade operation that produced it.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *ChannelError {
	return &ChannelError{Op: op, Err: err}
}
