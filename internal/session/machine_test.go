package session_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/conn"
	connmock "github.com/MrWong99/voxclient/internal/conn/mock"
	indmock "github.com/MrWong99/voxclient/internal/indicator/mock"
	"github.com/MrWong99/voxclient/internal/observe"
	"github.com/MrWong99/voxclient/internal/protocol"
	"github.com/MrWong99/voxclient/internal/session"
	"github.com/MrWong99/voxclient/pkg/audio"
	audiomock "github.com/MrWong99/voxclient/pkg/audio/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// tone returns n samples alternating between +amp and -amp.
func tone(n int, amp int16) []byte {
	b := make([]byte, n*2)
	for i := range n {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func silence(n int) []byte { return make([]byte, n*2) }

func concat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

type harness struct {
	clk      *clock.Fake
	stream   *connmock.Stream
	conn     *connmock.Conn
	capture  *audiomock.Capture
	playback *audiomock.Playback
	ind      *indmock.Sink
	reader   *sdkmetric.ManualReader
	m        *session.Machine
	events   []session.Event
}

func newHarness(t *testing.T, cfg session.Config, pcm []byte) *harness {
	t.Helper()
	h := &harness{
		clk:      clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		playback: &audiomock.Playback{},
		ind:      &indmock.Sink{},
		reader:   sdkmetric.NewManualReader(),
	}
	h.stream = &connmock.Stream{Clock: h.clk}
	h.conn = &connmock.Conn{StreamResult: h.stream}
	h.capture = &audiomock.Capture{
		Data: pcm,
		// Capture blocks in real time.
		OnRead: func(b []byte) { h.clk.Advance(audio.DefaultFormat.Duration(len(b))) },
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader))
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h.m = session.New(cfg, h.conn, h.capture, h.playback,
		session.WithClock(h.clk),
		session.WithIndicator(h.ind),
		session.WithMetrics(met),
		session.WithTransitionHook(func(_, _ session.State, ev session.Event) {
			h.events = append(h.events, ev)
		}),
	)
	return h
}

// runUntil steps the machine until done reports true.
func (h *harness) runUntil(t *testing.T, done func() bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		if done() {
			return
		}
		if err := h.m.Step(ctx); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	t.Fatalf("condition not reached; state=%v events=%v", h.m.State(), h.events)
}

func (h *harness) sawEvent(ev session.Event) func() bool {
	return func() bool {
		for _, e := range h.events {
			if e == ev {
				return true
			}
		}
		return false
	}
}

func (h *harness) inState(s session.State) func() bool {
	return func() bool { return h.m.State() == s }
}

func (h *harness) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// uploadedFrames decodes everything the machine wrote and returns the payload
// length of each frame, with -1 for the sentinel.
func uploadedFrames(t *testing.T, wire []byte) []int {
	t.Helper()
	dec := protocol.NewDecoder(bytes.NewReader(wire))
	var sizes []int
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrEndOfStream) {
			return sizes
		}
		if err != nil {
			t.Fatalf("decode upload: %v", err)
		}
		if f.IsSentinel() {
			sizes = append(sizes, -1)
			continue
		}
		sizes = append(sizes, len(f.Payload))
	}
}

func replyWire(t *testing.T, pcm []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := protocol.NewStreamWriter(&b, protocol.MaxChunkSize)
	if _, err := w.Write(pcm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return b.Bytes()
}

// framed encodes each block as one frame and ends with the sentinel.
func framed(t *testing.T, blocks ...[]byte) []byte {
	t.Helper()
	var wire []byte
	for _, b := range blocks {
		var err error
		wire, err = protocol.Frame{Header: uint16(len(b)), Payload: b}.AppendBinary(wire)
		if err != nil {
			t.Fatalf("AppendBinary: %v", err)
		}
	}
	wire, _ = protocol.EncodeEndOfStream().AppendBinary(wire)
	return wire
}

// ─── interaction ─────────────────────────────────────────────────────────────

func TestMachine_FullInteraction(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	reply := tone(5000, 1200)
	h.stream.PushInbound(replyWire(t, reply))

	h.runUntil(t, h.sawEvent(session.EventEndOfStream))

	wantEvents := []session.Event{
		session.EventWakeConfirmed,
		session.EventRecordingDone,
		session.EventAckReceived,
		session.EventEndOfStream,
	}
	if diff := cmp.Diff(wantEvents, h.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	// Wake probe, 3 s of recording in 2048-byte blocks, sentinel.
	sizes := uploadedFrames(t, h.stream.WrittenBytes())
	want := []int{1024}
	for range 47 {
		want = append(want, 2048)
	}
	want = append(want, -1)
	if diff := cmp.Diff(want, sizes); diff != "" {
		t.Errorf("uploaded frames (-want +got):\n%s", diff)
	}

	if !bytes.Equal(h.playback.Bytes(), reply) {
		t.Errorf("played %d bytes, want %d", len(h.playback.Bytes()), len(reply))
	}
	if got := h.playback.Resets(); got != 1 {
		t.Errorf("playback resets = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"idle", "recording", "playing", "idle"}, h.ind.Names()); diff != "" {
		t.Errorf("indicator (-want +got):\n%s", diff)
	}
	if h.m.State() != session.Idle {
		t.Errorf("state = %v, want idle", h.m.State())
	}
	snap := h.m.Snapshot()
	if snap.Interactions != 1 || snap.InteractionID != "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := h.counter(t, "voxclient.session.wake_confirmations"); got != 1 {
		t.Errorf("wake confirmations = %d, want 1", got)
	}
	if len(h.conn.Reasons()) != 0 {
		t.Errorf("unexpected reconnects: %v", h.conn.Reasons())
	}
}

func TestMachine_ReplyFramesPlayInOrder(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	blocks := [][]byte{tone(500, 700), tone(1000, 800), tone(250, 900)}
	h.stream.PushInbound(framed(t, blocks...))

	h.runUntil(t, h.sawEvent(session.EventEndOfStream))

	if diff := cmp.Diff(blocks, h.playback.Written); diff != "" {
		t.Errorf("played blocks (-want +got):\n%s", diff)
	}
	var sizes []int
	for _, b := range h.playback.Written {
		sizes = append(sizes, len(b))
	}
	if diff := cmp.Diff([]int{1000, 2000, 500}, sizes); diff != "" {
		t.Errorf("block sizes (-want +got):\n%s", diff)
	}
	if got := h.playback.Resets(); got != 1 {
		t.Errorf("playback resets = %d, want 1", got)
	}
	if h.m.State() != session.Idle {
		t.Errorf("state = %v, want idle", h.m.State())
	}
}

func TestMachine_SilenceEndsRecording(t *testing.T) {
	pcm := concat(tone(512, 2000), tone(4*1024, 2000), silence(20*1024))
	h := newHarness(t, session.Config{}, pcm)
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")

	h.runUntil(t, h.inState(session.Playing))

	// 4 speech blocks, then silent blocks until the run exceeds 500ms.
	sizes := uploadedFrames(t, h.stream.WrittenBytes())
	if got := len(sizes) - 2; got != 13 {
		t.Errorf("recorded frames = %d, want 13", got)
	}
	if sizes[len(sizes)-1] != -1 {
		t.Error("upload must end with the sentinel")
	}
}

func TestMachine_CaptureEndFinishesRecording(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(3*1024, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	h.stream.PushInbound(replyWire(t, tone(100, 900)))

	h.runUntil(t, h.sawEvent(session.EventEndOfStream))

	err := h.m.Step(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Step after capture end = %v, want io.EOF", err)
	}
	if got := len(uploadedFrames(t, h.stream.WrittenBytes())); got != 1+3+1 {
		t.Errorf("uploaded %d frames, want 5", got)
	}
}

func TestMachine_IgnoresUnknownTokens(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(3*512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("HELLO", "WAKE_CONFIRMED", "WAKE_CONFIRMED", "DATA_RECEIVED")

	h.runUntil(t, h.inState(session.Playing))

	want := []session.Event{session.EventWakeConfirmed, session.EventRecordingDone, session.EventAckReceived}
	if diff := cmp.Diff(want, h.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestMachine_BinaryDialect(t *testing.T) {
	h := newHarness(t, session.Config{Dialect: protocol.DialectBinary}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	h.stream.Acks = []uint16{0x1234, protocol.AckDataReceived}

	h.runUntil(t, h.inState(session.Playing))

	if len(h.stream.Acks) != 0 {
		t.Errorf("acks left unread: %v", h.stream.Acks)
	}
	// The text acknowledgment is not consumed by the binary dialect.
	if diff := cmp.Diff([]string{"DATA_RECEIVED"}, h.stream.Tokens); diff != "" {
		t.Errorf("tokens (-want +got):\n%s", diff)
	}
}

// ─── failures ────────────────────────────────────────────────────────────────

func TestMachine_AckTimeout(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED")

	h.runUntil(t, h.sawEvent(session.EventAckTimeout))

	if h.m.State() != session.Idle {
		t.Errorf("state = %v, want idle", h.m.State())
	}
	if got := h.counter(t, "voxclient.session.ack_timeouts"); got != 1 {
		t.Errorf("ack timeouts = %d, want 1", got)
	}
	if len(h.conn.Reasons()) != 0 {
		t.Errorf("ack timeout must not reconnect, got %v", h.conn.Reasons())
	}

	// Every wait is bounded by the poll interval.
	var polls int
	for _, w := range h.stream.TokenWaits {
		if w > session.DefaultAckPoll {
			t.Errorf("ack wait %v exceeds poll interval", w)
		}
		if w == session.DefaultAckPoll {
			polls++
		}
	}
	if polls != 60 {
		t.Errorf("ack polls = %d, want 60", polls)
	}
	if h.ind.Last().Name != "idle" {
		t.Errorf("indicator = %q, want idle", h.ind.Last().Name)
	}
}

func TestMachine_LinkDropDuringPlayback(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	h.runUntil(t, h.inState(session.Playing))

	// Half a frame arrives, then the link drops.
	var partial []byte
	partial = binary.LittleEndian.AppendUint16(partial, 4000)
	partial = append(partial, tone(50, 900)...)
	h.stream.PushInbound(partial)
	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	h.conn.SetDown(true)
	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if len(h.playback.Written) != 0 {
		t.Errorf("partial frame was played: %d blocks", len(h.playback.Written))
	}
	if got := h.playback.Resets(); got != 1 {
		t.Errorf("playback resets = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"link_down"}, h.conn.Reasons()); diff != "" {
		t.Errorf("reconnect reasons (-want +got):\n%s", diff)
	}
	if h.m.State() != session.Idle {
		t.Errorf("state = %v, want idle", h.m.State())
	}
	if last := h.events[len(h.events)-1]; last != session.EventLinkDown {
		t.Errorf("last event = %v, want link_down", last)
	}
}

func TestMachine_ReadFailureDuringPlayback(t *testing.T) {
	oversized := binary.LittleEndian.AppendUint16(nil, 4097)
	oversized = append(oversized, make([]byte, 4097)...)
	halfFrame := binary.LittleEndian.AppendUint16(nil, 4000)
	halfFrame = append(halfFrame, tone(50, 900)...)

	tests := []struct {
		name string
		cfg  session.Config
		// fail is applied after the first reply frame has been played.
		fail func(t *testing.T, h *harness)
	}{
		{
			name: "transport read error",
			fail: func(t *testing.T, h *harness) {
				h.stream.PushInbound(framed(t, tone(100, 900)))
				h.stream.ReadErr = &conn.TransportError{Op: "read", Err: io.ErrClosedPipe}
			},
		},
		{
			name: "connection closed inside a frame",
			fail: func(t *testing.T, h *harness) {
				h.stream.PushInbound(halfFrame)
				if err := h.m.Step(context.Background()); err != nil {
					t.Fatalf("Step: %v", err)
				}
				h.stream.ReadErr = io.EOF
			},
		},
		{
			name: "frame above the receive limit",
			cfg:  session.Config{MaxReceivePayload: protocol.MaxChunkSize},
			fail: func(t *testing.T, h *harness) {
				h.stream.PushInbound(oversized)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, concat(tone(512, 2000), tone(5*16000, 2000)))
			h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
			h.runUntil(t, h.inState(session.Playing))

			first := tone(500, 700)
			h.stream.PushInbound(binary.LittleEndian.AppendUint16(nil, uint16(len(first))))
			h.stream.PushInbound(first)
			if err := h.m.Step(context.Background()); err != nil {
				t.Fatalf("Step: %v", err)
			}
			if len(h.playback.Written) != 1 {
				t.Fatalf("played %d blocks before the failure, want 1", len(h.playback.Written))
			}

			tt.fail(t, h)
			if err := h.m.Step(context.Background()); err != nil {
				t.Fatalf("Step: %v", err)
			}

			if len(h.playback.Written) != 1 {
				t.Errorf("played %d blocks, want 1", len(h.playback.Written))
			}
			if got := h.playback.Resets(); got != 1 {
				t.Errorf("playback resets = %d, want 1", got)
			}
			if diff := cmp.Diff([]string{"transport"}, h.conn.Reasons()); diff != "" {
				t.Errorf("reconnect reasons (-want +got):\n%s", diff)
			}
			if h.m.State() != session.Idle {
				t.Errorf("state = %v, want idle", h.m.State())
			}
			if last := h.events[len(h.events)-1]; last != session.EventLinkDown {
				t.Errorf("last event = %v, want link_down", last)
			}
		})
	}
}

func TestMachine_StaleSession(t *testing.T) {
	h := newHarness(t, session.Config{}, concat(tone(512, 2000), tone(5*16000, 2000)))
	h.stream.PushTokens("WAKE_CONFIRMED", "DATA_RECEIVED")
	h.runUntil(t, h.inState(session.Playing))

	h.clk.Advance(31 * time.Second)
	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if diff := cmp.Diff([]string{"stale"}, h.conn.Reasons()); diff != "" {
		t.Errorf("reconnect reasons (-want +got):\n%s", diff)
	}
	if h.m.State() != session.Idle {
		t.Errorf("state = %v, want idle", h.m.State())
	}
	if !h.m.Session().LastActivity.Equal(h.clk.Now()) {
		t.Error("LastActivity not refreshed after reconnect")
	}
}

func TestMachine_WriteFailureReconnects(t *testing.T) {
	h := newHarness(t, session.Config{}, tone(4*512, 2000))
	h.stream.WriteErr = &conn.TransportError{Op: "write", Err: io.ErrClosedPipe}

	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if diff := cmp.Diff([]string{"transport"}, h.conn.Reasons()); diff != "" {
		t.Errorf("reconnect reasons (-want +got):\n%s", diff)
	}
}

func TestMachine_StreamUnavailableReconnects(t *testing.T) {
	h := newHarness(t, session.Config{}, tone(4*512, 2000))
	h.conn.StreamErr = conn.ErrNotConnected

	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if diff := cmp.Diff([]string{"transport"}, h.conn.Reasons()); diff != "" {
		t.Errorf("reconnect reasons (-want +got):\n%s", diff)
	}
}

func TestMachine_ReconnectErrorIsReturned(t *testing.T) {
	h := newHarness(t, session.Config{}, tone(512, 2000))
	h.conn.Down = true
	h.conn.ReconnectErr = context.Canceled

	err := h.m.Step(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Step = %v, want context.Canceled", err)
	}
}

func TestMachine_CaptureErrorRetries(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	h.capture.ReadErr = errors.New("overrun")

	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if diff := cmp.Diff([]time.Duration{session.DefaultReadRetry}, h.clk.Sleeps()); diff != "" {
		t.Errorf("sleeps (-want +got):\n%s", diff)
	}
	if h.stream.WriteCalls != 0 {
		t.Errorf("wrote %d times without a probe", h.stream.WriteCalls)
	}
}

func TestMachine_CaptureExhaustedInIdle(t *testing.T) {
	h := newHarness(t, session.Config{}, tone(512, 2000))

	if err := h.m.Step(context.Background()); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	if err := h.m.Step(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("second Step = %v, want io.EOF", err)
	}
}

func TestMachine_CanceledContext(t *testing.T) {
	h := newHarness(t, session.Config{}, tone(512, 2000))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.m.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step = %v, want context.Canceled", err)
	}
	if len(h.capture.ReadCalls) != 0 {
		t.Error("capture read after cancellation")
	}
}
