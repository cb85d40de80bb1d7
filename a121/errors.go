package a121

import (
	"errors"
	"fmt"
)

// ErrLinkTimeout marks a link receive or send that hit its deadline. Check
// with errors.Is.
var ErrLinkTimeout = errors.New("link operation timed out")

// LinkError is an I/O failure on the transport link: connection refused,
// timeout, unexpected disconnect. It is never retried internally; the caller
// decides whether to reconnect.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string { return fmt.Sprintf("link %s: %v", e.Op, e.Err) }
func (e *LinkError) Unwrap() error { return e.Err }

// NewLinkError wraps err as a LinkError for the given link operation.
func NewLinkError(op string, err error) *LinkError {
	return &LinkError{Op: op, Err: err}
}

// ProtocolError is a malformed or unexpected response shape. It is fatal to
// the in-flight operation: retrying a malformed exchange risks
// desynchronising the framing.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Msg, e.Err)
	}
	return "protocol: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError builds a ProtocolError with a formatted message.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ServerError is an explicit status:"error" response from the device. The
// device-provided message is carried unmodified.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server: " + e.Message }

// ClientStateError reports an operation invoked while the client was in a
// state that does not permit it. This is a programming-contract violation,
// not a transient fault; no partial state mutation occurs.
type ClientStateError struct {
	Op    string
	State string
	Want  string
}

func (e *ClientStateError) Error() string {
	return fmt.Sprintf("%s requires client state %s, but client is %s", e.Op, e.Want, e.State)
}

// ReplayExhaustedError reports that a record's session iterator has no more
// sessions to hand out.
type ReplayExhaustedError struct {
	Sessions int
}

func (e *ReplayExhaustedError) Error() string {
	return fmt.Sprintf("record has no more sessions to replay (all %d consumed)", e.Sessions)
}
