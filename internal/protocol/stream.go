package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// StreamWriter frames an outgoing logical audio stream.
//
// Every Write is split into frames of at most the configured chunk size; each
// frame goes out in a single call to the underlying writer so that a header
// is never separated from its payload. [StreamWriter.Close] emits exactly one
// sentinel, after which the stream rejects further writes.
//
// A StreamWriter is owned by one session and is not safe for concurrent use.
type StreamWriter struct {
	w        io.Writer
	maxChunk int
	buf      []byte
	closed   bool

	frames int
	bytes  int
}

// NewStreamWriter returns a [StreamWriter] that writes to w. maxChunk follows
// the rules of [EncodeSize].
func NewStreamWriter(w io.Writer, maxChunk int) *StreamWriter {
	maxChunk = clampChunk(maxChunk)
	return &StreamWriter{
		w:        w,
		maxChunk: maxChunk,
		buf:      make([]byte, 0, HeaderSize+maxChunk),
	}
}

// Write frames p and sends it. The returned count is the number of payload
// bytes whose frames were written completely.
func (s *StreamWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	written := 0
	for _, f := range EncodeSize(p, s.maxChunk) {
		if err := s.writeFrame(f); err != nil {
			return written, err
		}
		written += len(f.Payload)
	}
	return written, nil
}

// Close sends the end-of-stream sentinel. Calling Close again returns
// [ErrStreamClosed].
func (s *StreamWriter) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	// The stream counts as terminated even when the sentinel write fails:
	// the transport is broken at that point and the stream is abandoned.
	s.closed = true
	return s.writeFrame(EncodeEndOfStream())
}

// Frames returns the number of payload frames written so far.
func (s *StreamWriter) Frames() int { return s.frames }

// Bytes returns the number of payload bytes written so far.
func (s *StreamWriter) Bytes() int { return s.bytes }

func (s *StreamWriter) writeFrame(f Frame) error {
	var err error
	s.buf, err = f.AppendBinary(s.buf[:0])
	if err != nil {
		return err
	}
	if _, err := s.w.Write(s.buf); err != nil {
		return err
	}
	if !f.IsSentinel() {
		s.frames++
		s.bytes += len(f.Payload)
	}
	return nil
}

// Decoder reassembles frames from a byte stream.
//
// Next is resumable: if the reader times out or yields nothing part-way
// through a header or payload, Next returns [ErrWouldBlock] and keeps what it
// has read, so a later call continues where the previous one stopped. A
// frame is only returned once its payload is complete.
//
// A Decoder is owned by one playback session and is not safe for concurrent
// use.
type Decoder struct {
	r          io.Reader
	maxPayload int

	hdr       [HeaderSize]byte
	hdrN      int
	payload   []byte
	payloadN  int
	inPayload bool
	ended     bool
}

// NewDecoder returns a [Decoder] reading from r that accepts any
// non-sentinel length.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, maxPayload: MaxPayloadSize}
}

// SetMaxPayload limits accepted payload lengths. Values <= 0 remove the limit.
func (d *Decoder) SetMaxPayload(n int) {
	if n <= 0 || n > MaxPayloadSize {
		n = MaxPayloadSize
	}
	d.maxPayload = n
}

// Next returns the next complete frame. After the sentinel frame has been
// returned, Next returns [ErrEndOfStream].
func (d *Decoder) Next() (Frame, error) {
	if d.ended {
		return Frame{}, ErrEndOfStream
	}

	if !d.inPayload {
		for d.hdrN < HeaderSize {
			n, err := d.r.Read(d.hdr[d.hdrN:])
			d.hdrN += n
			if d.hdrN == HeaderSize {
				break
			}
			if err != nil {
				return Frame{}, d.readErr(err)
			}
			if n == 0 {
				return Frame{}, ErrWouldBlock
			}
		}
		d.hdrN = 0

		size := binary.LittleEndian.Uint16(d.hdr[:])
		if size == Sentinel {
			d.ended = true
			return EncodeEndOfStream(), nil
		}
		if int(size) > d.maxPayload {
			return Frame{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, size, d.maxPayload)
		}
		d.payload = make([]byte, size)
		d.payloadN = 0
		d.inPayload = true
	}

	for d.payloadN < len(d.payload) {
		n, err := d.r.Read(d.payload[d.payloadN:])
		d.payloadN += n
		if d.payloadN == len(d.payload) {
			break
		}
		if err != nil {
			return Frame{}, d.readErr(err)
		}
		if n == 0 {
			return Frame{}, ErrWouldBlock
		}
	}

	f := Frame{Header: uint16(len(d.payload)), Payload: d.payload}
	d.payload = nil
	d.payloadN = 0
	d.inPayload = false
	return f, nil
}

// readErr maps reader errors: timeouts become [ErrWouldBlock], EOF inside a
// frame becomes [io.ErrUnexpectedEOF].
func (d *Decoder) readErr(err error) error {
	if IsTimeout(err) {
		return ErrWouldBlock
	}
	if errors.Is(err, io.EOF) && (d.hdrN > 0 || d.inPayload) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// IsTimeout reports whether err is a deadline or timeout error.
func IsTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
