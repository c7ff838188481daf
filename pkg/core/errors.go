package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error type for connection and protocol failures.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind categorizes errors.
type ErrorKind string

const (
	// ErrCredential means no usable ephemeral key could be obtained.
	ErrCredential ErrorKind = "credential_error"
	// ErrSignaling means transport negotiation with the remote endpoint failed.
	ErrSignaling ErrorKind = "signaling_error"
	// ErrChannelNotOpen means an outbound event was attempted before the
	// data channel reported open. The event is dropped, not fatal.
	ErrChannelNotOpen ErrorKind = "channel_not_open_error"
	// ErrTool means a tool handler failed or panicked.
	ErrTool ErrorKind = "tool_error"
)

// NewCredentialError creates a credential error.
func NewCredentialError(message string) *Error {
	return &Error{Kind: ErrCredential, Message: message}
}

// NewSignalingError creates a signaling error wrapping the negotiation failure.
func NewSignalingError(message string, err error) *Error {
	return &Error{Kind: ErrSignaling, Message: message, Err: err}
}

// NewChannelNotOpenError creates a channel-not-open error for a dropped event.
func NewChannelNotOpenError(eventType string) *Error {
	return &Error{Kind: ErrChannelNotOpen, Message: fmt.Sprintf("dropped %q: data channel is not open", eventType)}
}

// NewToolError creates a tool error.
func NewToolError(name string, err error) *Error {
	return &Error{Kind: ErrTool, Message: fmt.Sprintf("tool %q failed", name), Err: err}
}

// KindOf returns the error kind, or "" if err is not a canonical Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}
