// Package audio defines the capture and playback devices driven by the voice
// session, together with stream-backed implementations and PCM helpers.
//
// The two primary abstractions are:
//
//   - [Capture] yields fixed-size blocks of 16-bit little-endian PCM from a
//     microphone or any other source.
//   - [Playback] consumes PCM blocks and can be re-initialised between
//     utterances with [Playback.Reset].
//
// Audio on the wire is always [DefaultFormat]: 16 kHz mono s16le. Devices that
// need a different output format wrap a [Converter].
//
// This package lives under pkg/ because hardware adapters outside this module
// are expected to implement [Capture] and [Playback].
package audio

import (
	"context"
	"time"
)

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is the wire format: 16 kHz, mono.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BlockBytes returns the byte length of a block holding samples frames.
func (f Format) BlockBytes(samples int) int {
	return samples * f.channels() * BytesPerSample
}

// Duration returns the playing time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	frames := n / (f.channels() * BytesPerSample)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.channels())
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// Capture is a source of PCM blocks in [DefaultFormat].
//
// Implementations are used from the single session loop and need not be safe
// for concurrent use.
type Capture interface {
	// ReadBlock blocks until samples frames are available and returns them as
	// little-endian PCM. A shorter block may be returned just before the
	// source is exhausted; afterwards ReadBlock returns io.EOF.
	ReadBlock(ctx context.Context, samples int) ([]byte, error)
}

// Playback is a sink for PCM blocks in [DefaultFormat].
type Playback interface {
	// WriteBlock queues pcm for output.
	WriteBlock(ctx context.Context, pcm []byte) error

	// Reset finishes the current utterance and prepares the device for the
	// next one. Reset is idempotent.
	Reset() error
}
