package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ─── ReaderCapture ────────────────────────────────────────────────────────────

// ReaderCapture is a [Capture] that reads raw s16le mono PCM from an
// [io.Reader], such as an arecord pipe or a recorded file.
type ReaderCapture struct {
	r io.Reader

	// Pace, when non-nil, is called after every block with the block's
	// playing time. File-backed sources use it to run at real-time speed.
	Pace func(ctx context.Context, d time.Duration) error

	eof bool
}

// NewReaderCapture returns a [ReaderCapture] reading from r.
func NewReaderCapture(r io.Reader) *ReaderCapture {
	return &ReaderCapture{r: r}
}

// ReadBlock implements [Capture].
func (c *ReaderCapture) ReadBlock(ctx context.Context, samples int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.eof {
		return nil, io.EOF
	}
	if samples <= 0 {
		return nil, fmt.Errorf("audio: read block: invalid sample count %d", samples)
	}

	buf := make([]byte, DefaultFormat.BlockBytes(samples))
	n, err := io.ReadFull(c.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		c.eof = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.eof = true
		// Drop a dangling half sample.
		n &^= 1
		if n == 0 {
			return nil, io.EOF
		}
	case err != nil:
		return nil, fmt.Errorf("audio: read block: %w", err)
	}
	buf = buf[:n]

	if c.Pace != nil {
		if err := c.Pace(ctx, DefaultFormat.Duration(n)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ─── WriterPlayback ───────────────────────────────────────────────────────────

// WriterPlayback is a [Playback] that writes PCM to an [io.Writer], such as
// an aplay pipe or a file. Each block is written through as it arrives, so an
// aborted reply leaves nothing queued behind it.
//
// WriterPlayback is safe for concurrent use.
type WriterPlayback struct {
	mu   sync.Mutex
	w    io.Writer
	conv *Converter

	resets int
}

// NewWriterPlayback returns a [WriterPlayback] writing to w in the device
// format out. A zero out keeps [DefaultFormat].
func NewWriterPlayback(w io.Writer, out Format) *WriterPlayback {
	p := &WriterPlayback{w: w}
	if out != (Format{}) && out != DefaultFormat {
		p.conv = &Converter{Target: out}
	}
	return p
}

// WriteBlock implements [Playback].
func (p *WriterPlayback) WriteBlock(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conv != nil {
		pcm = p.conv.Convert(pcm, DefaultFormat)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(pcm); err != nil {
		return fmt.Errorf("audio: write block: %w", err)
	}
	return nil
}

// Reset implements [Playback]. Nothing is buffered, so it only counts the
// utterance boundary.
func (p *WriterPlayback) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

// Resets returns how many times Reset has been called.
func (p *WriterPlayback) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}
