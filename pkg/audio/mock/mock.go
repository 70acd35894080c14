// Package mock provides in-memory mock implementations of [audio.Capture] and
// [audio.Playback] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	capture := &mock.Capture{Data: pcm}
//	capture.OnRead = func(b []byte) { clk.Advance(audio.DefaultFormat.Duration(len(b))) }
//	playback := &mock.Playback{}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/voxclient/pkg/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture] that serves blocks
// from Data. Once Data is consumed, ReadBlock returns io.EOF.
type Capture struct {
	mu sync.Mutex

	// Data is the PCM stream served by ReadBlock.
	Data []byte

	// ReadErr, when non-nil, is returned by ReadBlock instead of data.
	ReadErr error

	// OnRead is called with every block returned, outside the lock.
	OnRead func(block []byte)

	// ReadCalls records the samples argument of every ReadBlock call.
	ReadCalls []int
}

// ReadBlock implements [audio.Capture].
func (c *Capture) ReadBlock(_ context.Context, samples int) ([]byte, error) {
	c.mu.Lock()
	c.ReadCalls = append(c.ReadCalls, samples)
	if c.ReadErr != nil {
		err := c.ReadErr
		c.mu.Unlock()
		return nil, err
	}
	if len(c.Data) == 0 {
		c.mu.Unlock()
		return nil, io.EOF
	}
	n := min(audio.DefaultFormat.BlockBytes(samples), len(c.Data))
	block := append([]byte(nil), c.Data[:n]...)
	c.Data = c.Data[n:]
	hook := c.OnRead
	c.mu.Unlock()

	if hook != nil {
		hook(block)
	}
	return block, nil
}

// Remaining returns the number of unread bytes.
func (c *Capture) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Data)
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu sync.Mutex

	// WriteErr is returned by WriteBlock.
	WriteErr error

	// ResetErr is returned by Reset.
	ResetErr error

	// Written records every block passed to WriteBlock, in order.
	Written [][]byte

	// ResetCount records how many times Reset was called.
	ResetCount int
}

// WriteBlock implements [audio.Playback].
func (p *Playback) WriteBlock(_ context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return p.WriteErr
	}
	p.Written = append(p.Written, append([]byte(nil), pcm...))
	return nil
}

// Reset implements [audio.Playback].
func (p *Playback) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResetCount++
	return p.ResetErr
}

// Bytes returns all written PCM concatenated.
func (p *Playback) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, b := range p.Written {
		out = append(out, b...)
	}
	return out
}

// Resets returns ResetCount under the lock.
func (p *Playback) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ResetCount
}
