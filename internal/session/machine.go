package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/conn"
	"github.com/MrWong99/voxclient/internal/indicator"
	"github.com/MrWong99/voxclient/internal/observe"
	"github.com/MrWong99/voxclient/internal/protocol"
	"github.com/MrWong99/voxclient/pkg/audio"
	"github.com/MrWong99/voxclient/pkg/vad"
)

// ErrAckTimeout is recorded on the interaction span when the upload
// acknowledgment does not arrive within the ack window.
var ErrAckTimeout = errors.New("session: upload acknowledgment timed out")

// Conn is the connection manager as seen by the machine.
type Conn interface {
	// Healthy reports whether the transport and link are usable.
	Healthy() bool

	// Reconnect tears the connection down and blocks until a new one is up.
	Reconnect(ctx context.Context, reason string) error

	// Stream returns the current transport.
	Stream() (conn.Stream, error)
}

// Option configures a [Machine].
type Option func(*Machine)

// WithClock sets the clock used for every wait. Default: [clock.Real].
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithIndicator sets the status sink. Default: [indicator.Nop].
func WithIndicator(s indicator.Sink) Option {
	return func(m *Machine) { m.indicator = s }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithTransitionHook registers fn to be called after every transition.
func WithTransitionHook(fn func(from, to State, ev Event)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// Machine drives one device's interactions. It is not safe for concurrent
// use; [Machine.Snapshot] is the only method other goroutines may call.
type Machine struct {
	cfg      Config
	conn     Conn
	capture  audio.Capture
	playback audio.Playback

	clock        clock.Clock
	indicator    indicator.Sink
	metrics      *observe.Metrics
	onTransition func(from, to State, ev Event)

	sess         Session
	interactions int
	snap         snapshotBox
}

// New returns a [Machine] in Idle.
func New(cfg Config, c Conn, capture audio.Capture, playback audio.Playback, opts ...Option) *Machine {
	cfg.applyDefaults()
	m := &Machine{
		cfg:       cfg,
		conn:      c,
		capture:   capture,
		playback:  playback,
		clock:     clock.Real{},
		indicator: indicator.Nop{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.reset()
	m.indicator.Show(indicator.Idle)
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.sess.State }

// Session returns a copy of the current session context.
func (m *Machine) Session() Session { return m.sess }

// Config returns the effective configuration.
func (m *Machine) Config() Config { return m.cfg }

// Snapshot returns the last published status. Safe for concurrent use.
func (m *Machine) Snapshot() Snapshot { return m.snap.load() }

// Step performs one unit of work. It returns nil after recoverable failures
// (the machine is back in Idle over a fresh connection); errors are limited to
// context cancellation, capture exhaustion (wrapping [io.EOF]) and a failed
// reconnect.
func (m *Machine) Step(ctx context.Context) error {
	defer m.publish()
	if err := ctx.Err(); err != nil {
		return err
	}

	if !m.conn.Healthy() {
		return m.recover(ctx, EventLinkDown, "link_down")
	}
	if idle := m.clock.Now().Sub(m.sess.LastActivity); idle > m.cfg.StaleTimeout {
		slog.Warn("session stale, forcing reconnect",
			"state", m.sess.State.String(),
			"idle", idle,
		)
		return m.recover(ctx, EventStale, "stale")
	}

	var err error
	switch m.sess.State {
	case Idle:
		err = m.stepIdle(ctx)
	case Recording:
		err = m.stepRecording(ctx)
	case Playing:
		err = m.stepPlaying(ctx)
	}
	if conn.IsTransportError(err) {
		observe.Logger(m.sess.ctx).Warn("transport failure",
			"state", m.sess.State.String(),
			"err", err,
		)
		return m.recover(ctx, EventLinkDown, "transport")
	}
	return err
}

// ─── Idle ─────────────────────────────────────────────────────────────────────

func (m *Machine) stepIdle(ctx context.Context) error {
	probe, err := m.capture.ReadBlock(ctx, m.cfg.ProbeSamples)
	if err != nil {
		return m.captureErr(ctx, "probe", err)
	}
	stream, err := m.stream()
	if err != nil {
		return err
	}

	w := protocol.NewStreamWriter(stream, m.cfg.MaxChunk)
	if _, err := w.Write(probe); err != nil {
		return err
	}
	m.metrics.RecordFrames(ctx, observe.DirectionSent, "data", w.Frames(), w.Bytes())
	m.touch()

	tok, err := stream.ReadToken(m.cfg.WakePoll)
	switch {
	case errors.Is(err, conn.ErrTokenTimeout):
		return nil
	case errors.Is(err, conn.ErrTokenTooLong):
		slog.Debug("discarding oversized control line")
		return nil
	case err != nil:
		return err
	}
	m.touch()
	if tok != protocol.TokenWake {
		slog.Debug("unexpected token while idle", "token", tok.String())
		return nil
	}

	m.metrics.WakeConfirmations.Add(ctx, 1)
	m.beginInteraction(ctx, stream)
	m.fire(ctx, EventWakeConfirmed)
	return nil
}

func (m *Machine) beginInteraction(ctx context.Context, stream conn.Stream) {
	id := uuid.NewString()
	ictx, span := observe.StartSpan(ctx, "session.interaction",
		trace.WithAttributes(attribute.String("interaction_id", id)))

	m.interactions++
	m.sess.ID = id
	m.sess.ctx = ictx
	m.sess.span = span
	m.sess.Silence.Reset()
	m.sess.recordStart = m.clock.Now()
	m.sess.writer = protocol.NewStreamWriter(stream, m.cfg.MaxChunk)
}

// ─── Recording ────────────────────────────────────────────────────────────────

func (m *Machine) stepRecording(ctx context.Context) error {
	if m.clock.Now().Sub(m.sess.recordStart) >= m.cfg.MaxRecording {
		return m.finishRecording(ctx, "max_duration")
	}

	block, err := m.capture.ReadBlock(ctx, m.cfg.BlockSamples)
	if errors.Is(err, io.EOF) {
		return m.finishRecording(ctx, "capture_end")
	}
	if err != nil {
		return m.captureErr(ctx, "record", err)
	}

	if _, err := m.sess.writer.Write(block); err != nil {
		return err
	}
	m.touch()

	if m.sess.Silence.Observe(vad.Samples(block), m.clock.Now()) == vad.DecisionStop {
		return m.finishRecording(ctx, "silence")
	}
	return nil
}

// finishRecording terminates the upload and waits for its acknowledgment.
func (m *Machine) finishRecording(ctx context.Context, reason string) error {
	w := m.sess.writer
	if err := w.Close(); err != nil {
		return err
	}
	m.touch()

	dur := m.clock.Now().Sub(m.sess.recordStart)
	m.metrics.RecordFrames(ctx, observe.DirectionSent, "data", w.Frames(), w.Bytes())
	m.metrics.RecordFrames(ctx, observe.DirectionSent, "sentinel", 1, 0)
	m.metrics.RecordRecording(ctx, dur, reason)
	observe.Logger(m.sess.ctx).Info("recording finished",
		"interaction_id", m.sess.ID,
		"reason", reason,
		"duration", dur,
		"frames", w.Frames(),
		"bytes", w.Bytes(),
	)
	m.fire(ctx, EventRecordingDone)

	acked, err := m.awaitAck(ctx)
	if err != nil {
		return err
	}
	if !acked {
		m.metrics.AckTimeouts.Add(ctx, 1)
		observe.Logger(m.sess.ctx).Warn("no upload acknowledgment, returning to idle",
			"interaction_id", m.sess.ID,
			"window", m.cfg.AckWindow,
			"dialect", string(m.cfg.Dialect),
		)
		m.endInteraction(ErrAckTimeout)
		m.fire(ctx, EventAckTimeout)
		m.reset()
		return nil
	}

	stream, err := m.stream()
	if err != nil {
		return err
	}
	dec := protocol.NewDecoder(stream)
	if m.cfg.MaxReceivePayload > 0 {
		dec.SetMaxPayload(m.cfg.MaxReceivePayload)
	}
	m.sess.decoder = dec
	m.sess.writer = nil
	m.sess.playStart = m.clock.Now()
	m.fire(ctx, EventAckReceived)
	return nil
}

// awaitAck reads until the dialect's acknowledgment arrives or the ack window
// passes. Other tokens are ignored.
func (m *Machine) awaitAck(ctx context.Context) (bool, error) {
	stream, err := m.stream()
	if err != nil {
		return false, err
	}
	deadline := m.clock.Now().Add(m.cfg.AckWindow)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		wait := min(remaining, m.cfg.AckPoll)

		var ok bool
		if m.cfg.Dialect == protocol.DialectBinary {
			var v uint16
			v, err = stream.ReadAck16(wait)
			ok = err == nil && v == protocol.AckDataReceived
		} else {
			var tok protocol.Token
			tok, err = stream.ReadToken(wait)
			ok = err == nil && tok == protocol.TokenData
		}
		switch {
		case ok:
			m.touch()
			return true, nil
		case err == nil:
			slog.Debug("ignoring unexpected acknowledgment", "interaction_id", m.sess.ID)
		case errors.Is(err, conn.ErrTokenTimeout), errors.Is(err, conn.ErrTokenTooLong):
		default:
			return false, err
		}
	}
}

// ─── Playing ──────────────────────────────────────────────────────────────────

func (m *Machine) stepPlaying(ctx context.Context) error {
	f, err := m.sess.decoder.Next()
	switch {
	case errors.Is(err, protocol.ErrWouldBlock):
		return m.clock.Sleep(ctx, m.cfg.ReadRetry)
	case err != nil:
		if conn.IsTransportError(err) {
			return err
		}
		return &conn.TransportError{Op: "decode", Err: err}
	}
	m.touch()

	if f.IsSentinel() {
		m.metrics.RecordFrames(ctx, observe.DirectionReceived, "sentinel", 1, 0)
		if err := m.playback.Reset(); err != nil {
			slog.Warn("playback reset failed", "err", err)
		}
		dur := m.clock.Now().Sub(m.sess.playStart)
		m.metrics.PlaybackDuration.Record(ctx, dur.Seconds())
		observe.Logger(m.sess.ctx).Info("playback finished",
			"interaction_id", m.sess.ID,
			"duration", dur,
		)
		m.endInteraction(nil)
		m.fire(ctx, EventEndOfStream)
		m.reset()
		return nil
	}

	m.metrics.RecordFrames(ctx, observe.DirectionReceived, "data", 1, len(f.Payload))
	if err := m.playback.WriteBlock(ctx, f.Payload); err != nil {
		slog.Warn("playback write failed, dropping frame",
			"interaction_id", m.sess.ID,
			"bytes", len(f.Payload),
			"err", err,
		)
	}
	return nil
}

// ─── Recovery ─────────────────────────────────────────────────────────────────

// recover aborts the interaction, reconnects, and returns to Idle.
func (m *Machine) recover(ctx context.Context, ev Event, reason string) error {
	if m.sess.State == Playing {
		if err := m.playback.Reset(); err != nil {
			slog.Warn("playback reset failed", "err", err)
		}
	}
	m.endInteraction(fmt.Errorf("session: aborted: %s", reason))

	if err := m.conn.Reconnect(ctx, reason); err != nil {
		return fmt.Errorf("session: reconnect: %w", err)
	}
	m.fire(ctx, ev)
	m.reset()
	return nil
}

// captureErr passes capture exhaustion and cancellation up and pauses after
// any other capture failure.
func (m *Machine) captureErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("session: capture %s: %w", op, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	slog.Warn("capture failed", "op", op, "err", err)
	return m.clock.Sleep(ctx, m.cfg.ReadRetry)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (m *Machine) stream() (conn.Stream, error) {
	s, err := m.conn.Stream()
	if err != nil {
		return nil, &conn.TransportError{Op: "stream", Err: err}
	}
	return s, nil
}

func (m *Machine) fire(ctx context.Context, ev Event) {
	from := m.sess.State
	to, ok := Next(from, ev)
	if !ok {
		slog.Error("session: invalid event", "state", from.String(), "event", ev.String())
		return
	}
	m.sess.State = to
	m.metrics.RecordTransition(ctx, from.String(), to.String(), ev.String())

	if from != to {
		slog.Info("session state changed",
			"from", from.String(),
			"to", to.String(),
			"event", ev.String(),
			"interaction_id", m.sess.ID,
		)
		m.indicator.Show(statusFor(to))
	}
	if m.onTransition != nil {
		m.onTransition(from, to, ev)
	}
}

// reset replaces the session with a fresh Idle one. The state itself is set
// by fire before reset is called.
func (m *Machine) reset() {
	m.sess = Session{
		State:        Idle,
		LastActivity: m.clock.Now(),
		Silence:      vad.NewTracker(m.cfg.VAD),
		ctx:          context.Background(),
	}
}

func (m *Machine) endInteraction(err error) {
	if m.sess.span != nil {
		observe.EndSpan(m.sess.span, err)
		m.sess.span = nil
	}
}

func (m *Machine) touch() { m.sess.LastActivity = m.clock.Now() }

func (m *Machine) publish() {
	m.snap.store(Snapshot{
		State:         m.sess.State,
		InteractionID: m.sess.ID,
		LastActivity:  m.sess.LastActivity,
		Interactions:  m.interactions,
	})
}

func statusFor(s State) indicator.Status {
	switch s {
	case Recording:
		return indicator.Recording
	case Playing:
		return indicator.Playing
	default:
		return indicator.Idle
	}
}
