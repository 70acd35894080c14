// Package mock provides scriptable implementations of the session-facing
// connection interfaces for unit tests.
//
// [Stream] replays queued control tokens, acknowledgments and inbound bytes,
// and advances a [clock.Fake] whenever a read would have waited, so that
// timeout paths run instantly. [Conn] stands in for the connection manager.
package mock

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/conn"
	"github.com/MrWong99/voxclient/internal/protocol"
)

// timeoutError satisfies [protocol.IsTimeout].
type timeoutError struct{}

func (timeoutError) Error() string { return "mock: i/o timeout" }
func (timeoutError) Timeout() bool { return true }

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [conn.Stream].
type Stream struct {
	mu sync.Mutex

	// Clock, when set, is advanced by the full wait of every ReadToken or
	// ReadAck16 call that times out, and by ReadTimeout for every Read that
	// finds no data.
	Clock *clock.Fake

	// ReadTimeout is the simulated I/O timeout of Read. Default: 0.
	ReadTimeout time.Duration

	// Tokens are returned by ReadToken in order. An exhausted queue times out.
	Tokens []string

	// Acks are returned by ReadAck16 in order. An exhausted queue times out.
	Acks []uint16

	// Inbound is served by Read. When empty, Read returns a timeout error
	// (or ReadErr when set).
	Inbound bytes.Buffer

	// ReadErr is returned by Read, ReadToken and ReadAck16 when set.
	ReadErr error

	// WriteErr is returned by Write when set.
	WriteErr error

	// Written accumulates everything passed to Write.
	Written bytes.Buffer

	// WriteCalls counts Write invocations.
	WriteCalls int

	// TokenWaits records the wait argument of every ReadToken call.
	TokenWaits []time.Duration
}

// Write implements [conn.Stream].
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCalls++
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	return s.Written.Write(p)
}

// Read implements [conn.Stream].
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	if s.Inbound.Len() == 0 {
		s.advance(s.ReadTimeout)
		return 0, timeoutError{}
	}
	return s.Inbound.Read(p)
}

// ReadToken implements [conn.Stream].
func (s *Stream) ReadToken(wait time.Duration) (protocol.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenWaits = append(s.TokenWaits, wait)
	if s.ReadErr != nil {
		return protocol.TokenUnknown, s.ReadErr
	}
	if len(s.Tokens) == 0 {
		s.advance(wait)
		return protocol.TokenUnknown, conn.ErrTokenTimeout
	}
	line := s.Tokens[0]
	s.Tokens = s.Tokens[1:]
	return protocol.ParseToken(line), nil
}

// ReadAck16 implements [conn.Stream].
func (s *Stream) ReadAck16(wait time.Duration) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	if len(s.Acks) == 0 {
		s.advance(wait)
		return 0, conn.ErrTokenTimeout
	}
	v := s.Acks[0]
	s.Acks = s.Acks[1:]
	return v, nil
}

// PushTokens appends control lines to the token queue.
func (s *Stream) PushTokens(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tokens = append(s.Tokens, lines...)
}

// PushInbound appends bytes for Read.
func (s *Stream) PushInbound(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inbound.Write(b)
}

// WrittenBytes returns a copy of everything written so far.
func (s *Stream) WrittenBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.Written.Bytes())
}

func (s *Stream) advance(d time.Duration) {
	if s.Clock != nil && d > 0 {
		s.Clock.Advance(d)
	}
}

// ─── Conn ─────────────────────────────────────────────────────────────────────

// Conn is a mock of the connection manager as seen by the session machine.
// The zero value is healthy and has no stream.
type Conn struct {
	mu sync.Mutex

	// StreamResult is returned by Stream.
	StreamResult conn.Stream

	// StreamErr is returned by Stream when set.
	StreamErr error

	// Down makes Healthy report false. Reconnect clears it.
	Down bool

	// ReconnectErr is returned by Reconnect.
	ReconnectErr error

	// OnReconnect is called by Reconnect, after Down is cleared.
	OnReconnect func(reason string)

	// ReconnectReasons records the reason of every Reconnect call.
	ReconnectReasons []string
}

// Healthy reports !Down.
func (c *Conn) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Down
}

// Reconnect records the call and clears Down.
func (c *Conn) Reconnect(_ context.Context, reason string) error {
	c.mu.Lock()
	c.ReconnectReasons = append(c.ReconnectReasons, reason)
	c.Down = false
	hook := c.OnReconnect
	err := c.ReconnectErr
	c.mu.Unlock()
	if hook != nil {
		hook(reason)
	}
	return err
}

// Stream returns StreamResult or StreamErr.
func (c *Conn) Stream() (conn.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StreamErr != nil {
		return nil, c.StreamErr
	}
	return c.StreamResult, nil
}

// SetDown sets Down under the lock.
func (c *Conn) SetDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Down = down
}

// Reasons returns a copy of ReconnectReasons.
func (c *Conn) Reasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ReconnectReasons...)
}
