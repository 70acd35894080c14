// Package conn owns the client's connection to the voice server: dialing,
// link supervision, exponential backoff, forced reconnects, and the
// deadline-bounded transport the session state machine reads and writes.
package conn

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenTimeout is returned when an expected control token or
	// acknowledgment did not arrive within the wait window. It is not a
	// transport failure; the connection stays usable.
	ErrTokenTimeout = errors.New("conn: timed out waiting for token")

	// ErrNotConnected is returned by [Manager.Stream] before the first
	// successful [Manager.Connect].
	ErrNotConnected = errors.New("conn: not connected")

	// ErrTokenTooLong is returned when a control line exceeds the maximum
	// token length without a newline. The partial line is discarded.
	ErrTokenTooLong = errors.New("conn: control line too long")
)

// TransportError reports a failed read or write on the server connection,
// including a remote close. The transport is unusable afterwards and the
// session must reconnect.
type TransportError struct {
	// Op is the failed operation, e.g. "read", "write", "dial".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("conn: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a [TransportError].
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
