// Package mock provides a scriptable [link.Layer] for unit tests.
package mock

import (
	"context"
	"sync"
)

// Layer is a mock implementation of [link.Layer].
//
// By default Associate brings the link up immediately. Set UpAfter to require
// that many Associated polls after an Associate before the link reports up.
type Layer struct {
	mu sync.Mutex

	// Up is the current association state.
	Up bool

	// UpAfter is the number of Associated calls after Associate that still
	// report down.
	UpAfter int

	// AssociateErr is returned by Associate.
	AssociateErr error

	// DisassociateErr is returned by Disassociate.
	DisassociateErr error

	// Calls records the operations in order: "associate", "disassociate".
	Calls []string

	pending int
	rising  bool
}

// Associated implements [link.Layer].
func (l *Layer) Associated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rising {
		if l.pending > 0 {
			l.pending--
			return false
		}
		l.rising = false
		l.Up = true
	}
	return l.Up
}

// Associate implements [link.Layer].
func (l *Layer) Associate(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, "associate")
	if l.AssociateErr != nil {
		return l.AssociateErr
	}
	if l.Up {
		return nil
	}
	if l.UpAfter <= 0 {
		l.Up = true
		return nil
	}
	if !l.rising {
		l.rising = true
		l.pending = l.UpAfter
	}
	return nil
}

// Disassociate implements [link.Layer].
func (l *Layer) Disassociate(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, "disassociate")
	l.Up = false
	l.rising = false
	return l.DisassociateErr
}

// CallCount returns how many times op was called.
func (l *Layer) CallCount(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// SetUp sets the association state directly.
func (l *Layer) SetUp(up bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Up = up
	l.rising = false
}
