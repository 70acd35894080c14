// Package link abstracts the network link (Wi-Fi association, interface
// state) underneath the server connection.
//
// The connection manager only needs three things from the link: whether it is
// currently usable, a request to bring it up, and a request to tear it down
// so that a stuck association can be reset.
package link

import (
	"context"
	"fmt"
	"sync"
)

// Layer is the network link beneath the transport. Implementations must be
// safe for concurrent use.
type Layer interface {
	// Associated reports whether the link is currently usable.
	Associated() bool

	// Associate asks the link to come up. It may return before the link is
	// usable; callers poll [Layer.Associated].
	Associate(ctx context.Context) error

	// Disassociate drops the link.
	Disassociate(ctx context.Context) error
}

// Error is returned by [Layer] operations.
type Error struct {
	// Op is the failed operation, e.g. "associate".
	Op string
	// Iface names the interface, if any.
	Iface string
	Err   error
}

func (e *Error) Error() string {
	if e.Iface == "" {
		return fmt.Sprintf("link: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("link: %s %s: %v", e.Op, e.Iface, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Static is a [Layer] for hosts whose network is managed elsewhere. It is
// associated from construction; Disassociate marks it down until the next
// Associate.
type Static struct {
	mu   sync.Mutex
	down bool
}

// NewStatic returns an associated [Static] link.
func NewStatic() *Static { return &Static{} }

// Associated implements [Layer].
func (s *Static) Associated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

// Associate implements [Layer].
func (s *Static) Associate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "associate", Err: err}
	}
	s.mu.Lock()
	s.down = false
	s.mu.Unlock()
	return nil
}

// Disassociate implements [Layer].
func (s *Static) Disassociate(context.Context) error {
	s.mu.Lock()
	s.down = true
	s.mu.Unlock()
	return nil
}
