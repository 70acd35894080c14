package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/indicator"
	"github.com/MrWong99/voxclient/internal/link"
	"github.com/MrWong99/voxclient/internal/observe"
)

// Default connection parameters.
const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultIOTimeout      = 5 * time.Second
	DefaultBackoffBase    = 1 * time.Second
	DefaultResetThreshold = 3
	DefaultLinkPoll       = 500 * time.Millisecond
	DefaultLinkSettle     = 1 * time.Second
)

// LinkState describes the server connection.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

// String returns the lowercase state name.
func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is a snapshot of the connection manager.
type State struct {
	Link LinkState
	// RetryCount is the number of consecutive failed dials since the last
	// success or link reset.
	RetryCount int
	// LastContact is when the last connection was established.
	LastContact time.Time
	// LastTraffic is when bytes last moved on the current transport. Zero
	// while disconnected.
	LastTraffic time.Time
}

// Config configures a [Manager].
type Config struct {
	// Addr is the server address passed to the dialer, "host:port".
	Addr string

	// Dialer opens connections. Defaults to [TCPDialer].
	Dialer Dialer

	// Link is the network link beneath the transport. Defaults to an
	// always-associated [link.Static].
	Link link.Layer

	// Indicator shows connection status. Defaults to [indicator.Nop].
	Indicator indicator.Sink

	// Clock drives every wait. Defaults to [clock.Real].
	Clock clock.Clock

	// Metrics records connection metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ConnectTimeout bounds a single dial. Default: 15s.
	ConnectTimeout time.Duration

	// IOTimeout bounds each read and write on an established transport.
	// Default: 5s.
	IOTimeout time.Duration

	// BackoffBase is the unit of the exponential backoff. Default: 1s.
	BackoffBase time.Duration

	// ResetThreshold is the number of consecutive dial failures tolerated
	// before the link is reset. Default: 3.
	ResetThreshold int

	// LinkPoll is the wait between link association checks. Default: 500ms.
	LinkPoll time.Duration

	// LinkSettle is the pause after dropping the link. Default: 1s.
	LinkSettle time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.Dialer == nil {
		cfg.Dialer = TCPDialer{}
	}
	if cfg.Link == nil {
		cfg.Link = link.NewStatic()
	}
	if cfg.Indicator == nil {
		cfg.Indicator = indicator.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.ResetThreshold <= 0 {
		cfg.ResetThreshold = DefaultResetThreshold
	}
	if cfg.LinkPoll <= 0 {
		cfg.LinkPoll = DefaultLinkPoll
	}
	if cfg.LinkSettle <= 0 {
		cfg.LinkSettle = DefaultLinkSettle
	}
}

// BackoffDelay returns base·2^n, the wait after the n-th consecutive
// failure. n is capped at 30.
func BackoffDelay(base time.Duration, n int) time.Duration {
	n = min(max(n, 0), 30)
	return base << n
}

// Manager establishes and re-establishes the server connection.
//
// Connect, Reconnect and EnsureLinkUp are called from the session loop only.
// State and Healthy may be called from any goroutine.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	transport *Transport
	state     State
}

// NewManager returns a [Manager]. Zero config fields get their defaults.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{cfg: cfg}
}

// EnsureLinkUp blocks until the link reports associated, asking it to
// associate and waiting LinkPoll between checks. It returns early only when
// ctx ends.
func (m *Manager) EnsureLinkUp(ctx context.Context) error {
	for !m.cfg.Link.Associated() {
		m.cfg.Indicator.Show(indicator.LinkDown)
		if err := m.cfg.Link.Associate(ctx); err != nil {
			slog.Warn("link association failed", "err", err)
		}
		if err := m.cfg.Clock.Sleep(ctx, m.cfg.LinkPoll); err != nil {
			return err
		}
	}
	return nil
}

// Connect dials until it succeeds or ctx ends. After each failure the retry
// count grows and the manager backs off by [BackoffDelay]; once the count
// exceeds ResetThreshold the link is dropped and re-associated and the count
// starts over.
func (m *Manager) Connect(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "conn.connect",
		trace.WithAttributes(attribute.String("server.address", m.cfg.Addr)))
	var err error
	defer func() { observe.EndSpan(span, err) }()

	m.setLink(Connecting)
	for {
		if err = ctx.Err(); err != nil {
			m.setLink(Disconnected)
			return err
		}

		var t *Transport
		t, err = m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.transport = t
			m.state = State{Link: Connected, RetryCount: 0, LastContact: m.cfg.Clock.Now()}
			m.mu.Unlock()
			m.cfg.Metrics.RecordConnectAttempt(ctx, "ok")
			m.cfg.Metrics.Connected.Add(ctx, 1)
			slog.Info("connected to server", "addr", m.cfg.Addr)
			return nil
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			m.setLink(Disconnected)
			return err
		}
		m.cfg.Metrics.RecordConnectAttempt(ctx, "error")

		retries := m.incRetry()
		slog.Warn("connection attempt failed",
			"addr", m.cfg.Addr,
			"attempt", retries,
			"err", err,
		)
		if retries > m.cfg.ResetThreshold {
			if err = m.resetLink(ctx); err != nil {
				return err
			}
			retries = 0
		}

		delay := BackoffDelay(m.cfg.BackoffBase, retries)
		slog.Info("retrying connection", "addr", m.cfg.Addr, "backoff", delay)
		if err = m.cfg.Clock.Sleep(ctx, delay); err != nil {
			m.setLink(Disconnected)
			return err
		}
		m.cfg.Indicator.Show(indicator.Retrying)
	}
}

// Reconnect tears down the current transport and the link, waits for the
// link to come back, and connects again. reason is recorded in metrics.
func (m *Manager) Reconnect(ctx context.Context, reason string) error {
	ctx, span := observe.StartSpan(ctx, "conn.reconnect",
		trace.WithAttributes(attribute.String("reason", reason)))
	var err error
	defer func() { observe.EndSpan(span, err) }()

	m.cfg.Indicator.Show(indicator.Reconnecting)
	m.cfg.Metrics.RecordReconnect(ctx, reason)
	observe.Logger(ctx).Warn("connection lost, reconnecting", "reason", reason)

	m.closeTransport(ctx)
	if lerr := m.cfg.Link.Disassociate(ctx); lerr != nil {
		slog.Warn("link disassociate failed", "err", lerr)
	}
	if err = m.cfg.Clock.Sleep(ctx, m.cfg.LinkSettle); err != nil {
		return err
	}
	if err = m.EnsureLinkUp(ctx); err != nil {
		return err
	}
	err = m.Connect(ctx)
	return err
}

// Healthy reports whether a usable transport exists over an associated link.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	return t != nil && t.Broken() == nil && m.cfg.Link.Associated()
}

// Stream returns the current transport.
func (m *Manager) Stream() (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return nil, ErrNotConnected
	}
	return m.transport, nil
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	if m.transport != nil {
		st.LastTraffic = m.transport.LastActivity()
	}
	return st
}

// LinkAssociated reports the link layer's association state.
func (m *Manager) LinkAssociated() bool { return m.cfg.Link.Associated() }

// Close closes the current transport, if any.
func (m *Manager) Close() error {
	m.closeTransport(context.Background())
	m.setLink(Disconnected)
	return nil
}

func (m *Manager) dial(ctx context.Context) (*Transport, error) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	c, err := m.cfg.Dialer.Dial(dctx, m.cfg.Addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return NewTransport(c, m.cfg.IOTimeout, m.cfg.Clock), nil
}

// resetLink drops and re-associates the link without waiting for it to come
// up; the next dial attempt finds out whether it did.
func (m *Manager) resetLink(ctx context.Context) error {
	slog.Warn("resetting network link", "retries", m.cfg.ResetThreshold+1)
	m.cfg.Metrics.LinkResets.Add(ctx, 1)
	if err := m.cfg.Link.Disassociate(ctx); err != nil {
		slog.Warn("link disassociate failed", "err", err)
	}
	if err := m.cfg.Clock.Sleep(ctx, m.cfg.LinkSettle); err != nil {
		m.setLink(Disconnected)
		return err
	}
	if err := m.cfg.Link.Associate(ctx); err != nil {
		var le *link.Error
		if !errors.As(err, &le) {
			err = &link.Error{Op: "associate", Err: err}
		}
		slog.Warn("link association failed", "err", err)
	}
	m.mu.Lock()
	m.state.RetryCount = 0
	m.mu.Unlock()
	return nil
}

func (m *Manager) incRetry() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RetryCount++
	return m.state.RetryCount
}

func (m *Manager) setLink(s LinkState) {
	m.mu.Lock()
	m.state.Link = s
	m.mu.Unlock()
}

func (m *Manager) closeTransport(ctx context.Context) {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	wasConnected := m.state.Link == Connected
	m.state.Link = Disconnected
	m.mu.Unlock()

	if t == nil {
		return
	}
	if wasConnected {
		m.cfg.Metrics.Connected.Add(ctx, -1)
	}
	if err := t.Close(); err != nil {
		slog.Debug("closing transport", "err", fmt.Errorf("conn: close: %w", err))
	}
}
