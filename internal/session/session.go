// Package session implements the client's interaction loop: a three-state
// machine (Idle, Recording, Playing) that probes for a wake word, streams a
// recording to the server, and plays the server's reply.
//
// The [Machine] runs one unit of work per [Machine.Step]: one probe, one
// captured block, or one received frame. Every wait goes through an injected
// [clock.Clock]. Transport failures and stale sessions force a reconnect and
// return the machine to Idle; nothing is fatal except capture exhaustion and
// context cancellation.
package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxclient/internal/protocol"
	"github.com/MrWong99/voxclient/pkg/vad"
)

// Default session parameters.
const (
	DefaultProbeSamples = 512
	DefaultBlockSamples = 1024
	DefaultMaxRecording = 3 * time.Second
	DefaultAckWindow    = 30 * time.Second
	DefaultAckPoll      = 500 * time.Millisecond
	DefaultWakePoll     = 10 * time.Millisecond
	DefaultStaleTimeout = 30 * time.Second
	DefaultReadRetry    = 10 * time.Millisecond
)

// Config holds the tunables of a [Machine]. Zero fields get their defaults.
type Config struct {
	// ProbeSamples is the wake probe size. Default: 512.
	ProbeSamples int

	// BlockSamples is the recording block size. Default: 1024.
	BlockSamples int

	// MaxChunk is the largest outgoing frame payload. Default: 4096.
	MaxChunk int

	// MaxReceivePayload rejects inbound frames above this size. Zero accepts
	// any non-sentinel length.
	MaxReceivePayload int

	// MaxRecording is the hard cap on one recording. Default: 3s.
	MaxRecording time.Duration

	// AckWindow bounds the wait for the upload acknowledgment. Default: 30s.
	AckWindow time.Duration

	// AckPoll is the longest single read while waiting for the
	// acknowledgment, so cancellation is noticed promptly. Default: 500ms.
	AckPoll time.Duration

	// WakePoll bounds the read for a wake confirmation after each probe.
	// Default: 10ms.
	WakePoll time.Duration

	// StaleTimeout forces a reconnect when no data moved for this long.
	// Default: 30s.
	StaleTimeout time.Duration

	// ReadRetry is the pause after a playback read found no data.
	// Default: 10ms.
	ReadRetry time.Duration

	// Dialect selects the upload acknowledgment format. Default: text.
	Dialect protocol.Dialect

	// VAD configures silence detection.
	VAD vad.Config
}

func (cfg *Config) applyDefaults() {
	if cfg.ProbeSamples <= 0 {
		cfg.ProbeSamples = DefaultProbeSamples
	}
	if cfg.BlockSamples <= 0 {
		cfg.BlockSamples = DefaultBlockSamples
	}
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = protocol.MaxChunkSize
	}
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = DefaultMaxRecording
	}
	if cfg.AckWindow <= 0 {
		cfg.AckWindow = DefaultAckWindow
	}
	if cfg.AckPoll <= 0 {
		cfg.AckPoll = DefaultAckPoll
	}
	if cfg.WakePoll <= 0 {
		cfg.WakePoll = DefaultWakePoll
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = DefaultStaleTimeout
	}
	if cfg.ReadRetry <= 0 {
		cfg.ReadRetry = DefaultReadRetry
	}
	if cfg.Dialect == "" {
		cfg.Dialect = protocol.DialectText
	}
}

// Session is the state of the current interaction. It is owned by the
// [Machine] and replaced wholesale when the machine returns to Idle.
type Session struct {
	State State

	// LastActivity is when data last moved: a probe or block sent, an
	// acknowledgment or frame received.
	LastActivity time.Time

	// ID identifies the current interaction (wake to end of reply). Empty
	// in Idle.
	ID string

	// Silence tracks the current silent run while recording.
	Silence *vad.Tracker

	recordStart time.Time
	playStart   time.Time
	writer      *protocol.StreamWriter
	decoder     *protocol.Decoder

	ctx  context.Context
	span trace.Span
}

// Snapshot is a read-only view of the machine for status reporting.
type Snapshot struct {
	State         State
	InteractionID string
	LastActivity  time.Time
	Interactions  int
}
