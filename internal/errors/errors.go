// Package errors provides domain-specific error types for chatd.
//
// These types carry structured context (operation, address, session
// ids) so the accept loop and session code can decide whether a failure
// is fatal, retryable, or just a reason to end one session.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrServerClosed     = errors.New("server closed")
	ErrAlreadyStarted   = errors.New("server already started")
	ErrSessionClosed    = errors.New("session closed")
	ErrDuplicateSession = errors.New("session id already registered")
	ErrCapacityExceeded = errors.New("connection limit reached")
	ErrDrainTimeout     = errors.New("timed out waiting for sessions to drain")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.  Op tells
// the failures apart: "listen" is a bind error, "accept" an accept
// error, "read"/"write" a peer I/O error.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "read", "write"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CapacityError is returned for a connection that arrived while the
// server was already serving Limit sessions.
type CapacityError struct {
	Addr  string
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("reject %s: %v (%d sessions)", e.Addr, ErrCapacityExceeded, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// BroadcastError records a failed delivery from one session to another.
type BroadcastError struct {
	From uint64
	To   uint64
	Err  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast %d -> %d: %v", e.From, e.To, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Bind wraps a failure to create the listening socket.  Never retryable.
func Bind(addr string, err error) *NetworkError {
	return &NetworkError{Op: "listen", Addr: addr, Err: err}
}

// Accept wraps a transient failure of the accept call.
func Accept(addr string, err error) *NetworkError {
	return &NetworkError{Op: "accept", Addr: addr, Err: err, Retryable: true}
}

// PeerIO wraps a read or write failure on a client connection.
func PeerIO(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsBind reports whether err is a bind failure.
func IsBind(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Op == "listen"
}

// IsPeerIO reports whether err is a read/write failure on a client.
func IsPeerIO(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && (ne.Op == "read" || ne.Op == "write")
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout() || opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful for accept
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
