// Package errors provides domain-specific error types for retsh.
//
// These types carry structured context (operation, destination, limits)
// that lets callers branch on failure class with errors.Is/As and gives
// better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected       = errors.New("not connected")
	ErrChannelClosed      = errors.New("transport channel closed")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrUnknownDestination = errors.New("destination not registered")
	ErrTimeout            = errors.New("operation timed out")
)

// ── Structured error types ───────────────────────────────────────────

// IdentityError reports a failure constructing or using an identity
// (bad key length, cryptographic rejection).
type IdentityError struct {
	Op  string // "from-bytes", "verify", "load", …
	Err error
}

func (e *IdentityError) Error() string { return fmt.Sprintf("identity %s: %v", e.Op, e.Err) }
func (e *IdentityError) Unwrap() error { return e.Err }

// PacketError reports a malformed or truncated packet envelope.
type PacketError struct {
	Reason string
}

func (e *PacketError) Error() string { return "packet: " + e.Reason }

// ProtocolError reports a wire-protocol failure: version mismatch,
// oversized message, or a malformed frame/payload.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// MessageTooLarge reports a message or declared frame length exceeding
// the protocol ceiling.
type MessageTooLarge struct {
	Size int
	Max  int
}

func (e *MessageTooLarge) Error() string {
	return fmt.Sprintf("protocol: message too large: %d bytes (max %d)", e.Size, e.Max)
}

// VersionMismatch reports an incompatible protocol version.
type VersionMismatch struct {
	Expected uint32
	Actual   uint32
}

func (e *VersionMismatch) Error() string {
	return fmt.Sprintf("protocol version mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// NetworkError reports a failure against the overlay network or its
// control endpoint.
type NetworkError struct {
	Op   string // "dial", "handshake", "session-create", "send", "receive", …
	Addr string // control endpoint or destination involved, if known
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("network %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SessionError reports a per-session failure on the server side.
type SessionError struct {
	Reason string
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Reason, e.Err)
	}
	return "session: " + e.Reason
}

func (e *SessionError) Unwrap() error { return e.Err }

// ExecError reports a command-validation or spawn failure.
type ExecError struct {
	Reason string
}

func (e *ExecError) Error() string { return "exec: " + e.Reason }

// RejectedError surfaces a server Reject to the client caller.
type RejectedError struct {
	Reason string
	Code   uint32
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("connection rejected (code %d): %s", e.Code, e.Reason)
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapNetwork creates a NetworkError.
func WrapNetwork(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use retsh/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
