// Package protocol implements the voxclient wire format: length-prefixed
// binary audio frames plus the newline-terminated control tokens the server
// uses to acknowledge a wake probe and a completed upload.
//
// Wire layout of one frame:
//
//	[length:2 little-endian][payload:length]
//
// A length of 0xFFFF is the end-of-stream sentinel and carries no payload.
// Payloads are raw 16-bit mono PCM at 16 kHz and are never interpreted here.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire constants.
const (
	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 2

	// MaxChunkSize is the largest payload carried by one frame in the capture
	// direction. Larger buffers are split across several frames.
	MaxChunkSize = 4096

	// Sentinel is the header value marking end-of-stream.
	Sentinel uint16 = 0xFFFF

	// MaxPayloadSize is the largest length a non-sentinel header can encode.
	MaxPayloadSize = int(Sentinel) - 1
)

var (
	// ErrStreamClosed is returned when writing to a stream that already
	// emitted its sentinel.
	ErrStreamClosed = errors.New("protocol: stream already terminated")

	// ErrEndOfStream is returned by [Decoder.Next] once the sentinel has been
	// consumed.
	ErrEndOfStream = errors.New("protocol: end of stream")

	// ErrWouldBlock is returned by [Decoder.Next] when the underlying reader
	// timed out or returned no data. Partial frame state is retained; the
	// caller retries after a short backoff.
	ErrWouldBlock = errors.New("protocol: no data available")

	// ErrFrameTooLarge is returned when a received header announces a
	// payload above the decoder's limit.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Frame is one length-prefixed unit on the wire.
type Frame struct {
	// Header is the payload length, or [Sentinel].
	Header uint16

	// Payload holds Header bytes of PCM. Nil for the sentinel.
	Payload []byte
}

// IsSentinel reports whether f marks end-of-stream.
func (f Frame) IsSentinel() bool { return f.Header == Sentinel }

// AppendBinary appends the wire encoding of f to b.
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	if !f.IsSentinel() && int(f.Header) != len(f.Payload) {
		return b, fmt.Errorf("protocol: header %d does not match payload length %d", f.Header, len(f.Payload))
	}
	b = binary.LittleEndian.AppendUint16(b, f.Header)
	if f.IsSentinel() {
		return b, nil
	}
	return append(b, f.Payload...), nil
}

// MarshalBinary returns the wire encoding of f.
func (f Frame) MarshalBinary() ([]byte, error) {
	return f.AppendBinary(make([]byte, 0, HeaderSize+len(f.Payload)))
}

// Encode splits payload into frames of at most [MaxChunkSize] bytes.
func Encode(payload []byte) []Frame {
	return EncodeSize(payload, MaxChunkSize)
}

// EncodeSize splits payload into frames whose payloads are at most maxChunk
// bytes. maxChunk values outside (0, MaxPayloadSize] fall back to
// [MaxChunkSize]. The returned frames alias payload. An empty payload yields
// no frames.
func EncodeSize(payload []byte, maxChunk int) []Frame {
	maxChunk = clampChunk(maxChunk)
	frames := make([]Frame, 0, FrameCount(len(payload), maxChunk))
	for off := 0; off < len(payload); off += maxChunk {
		end := min(off+maxChunk, len(payload))
		frames = append(frames, Frame{Header: uint16(end - off), Payload: payload[off:end]})
	}
	return frames
}

// EncodeEndOfStream returns the sentinel frame.
func EncodeEndOfStream() Frame {
	return Frame{Header: Sentinel}
}

// FrameCount returns the number of frames [EncodeSize] produces for n bytes,
// i.e. ceil(n / maxChunk).
func FrameCount(n, maxChunk int) int {
	if n <= 0 {
		return 0
	}
	maxChunk = clampChunk(maxChunk)
	return (n + maxChunk - 1) / maxChunk
}

func clampChunk(maxChunk int) int {
	if maxChunk <= 0 || maxChunk > MaxPayloadSize {
		return MaxChunkSize
	}
	return maxChunk
}
