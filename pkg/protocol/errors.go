package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTooShort indicates the buffer is shorter than the fixed packet size.
	ErrTooShort = errors.New("too short")
	// ErrEmpty indicates a zero-length command buffer.
	ErrEmpty = errors.New("empty")
)

// DecodeError describes a rejected packet.
type DecodeError struct {
	Packet string
	Len    int
	Want   int
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v (got %d bytes, want %d)", e.Packet, e.Err, e.Len, e.Want)
}

// Unwrap returns ErrTooShort or ErrEmpty.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnknownCommandError reports a command type this decoder does not know.
// The command is still decoded; this error exists for callers that want
// to surface it.
type UnknownCommandError struct {
	Code uint8
}

// Error implements error.
func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %d", e.Code)
}
