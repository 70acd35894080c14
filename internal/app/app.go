// Package app wires the voxclient subsystems into a running device.
//
// The App struct owns the full lifecycle: New builds the link layer, the
// connection manager, the session machine and the optional status server
// from the config, Run executes the interaction loop, and Shutdown tears
// everything down.
//
// For testing, inject doubles via functional options (WithLink, WithDialer,
// WithClock, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/config"
	"github.com/MrWong99/voxclient/internal/conn"
	"github.com/MrWong99/voxclient/internal/indicator"
	"github.com/MrWong99/voxclient/internal/link"
	"github.com/MrWong99/voxclient/internal/observe"
	"github.com/MrWong99/voxclient/internal/session"
	"github.com/MrWong99/voxclient/internal/status"
	"github.com/MrWong99/voxclient/pkg/audio"
	"github.com/MrWong99/voxclient/pkg/vad"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	capture  audio.Capture
	playback audio.Playback

	link      link.Layer
	dialer    conn.Dialer
	clock     clock.Clock
	indicator indicator.Sink
	metrics   *observe.Metrics

	// metricsHandler serves /metrics on the status server when set.
	metricsHandler http.Handler

	// logLevel is adjusted on config reload when set.
	logLevel *slog.LevelVar

	conn    *conn.Manager
	machine *session.Machine
	status  *status.Server
	watcher *config.Watcher

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLink injects a link layer instead of creating one from link.kind.
func WithLink(l link.Layer) Option {
	return func(a *App) { a.link = l }
}

// WithDialer injects a dialer instead of creating one from server.transport.
func WithDialer(d conn.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithClock sets the clock shared by the connection manager and the session.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithIndicator sets the status light.
func WithIndicator(s indicator.Sink) Option {
	return func(a *App) { a.indicator = s }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics on the status server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg, which must already have defaults applied and
// be valid. capture and playback are owned by the caller.
func New(cfg *config.Config, capture audio.Capture, playback audio.Playback, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		capture:  capture,
		playback: playback,
	}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clock.Real{}
	}
	if a.indicator == nil {
		a.indicator = indicator.NewLog(slog.Default())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initLink(); err != nil {
		return nil, fmt.Errorf("app: init link: %w", err)
	}
	if err := a.initDialer(); err != nil {
		return nil, fmt.Errorf("app: init dialer: %w", err)
	}

	a.conn = conn.NewManager(conn.Config{
		Addr:           cfg.Server.Addr(),
		Dialer:         a.dialer,
		Link:           a.link,
		Indicator:      a.indicator,
		Clock:          a.clock,
		Metrics:        a.metrics,
		ConnectTimeout: cfg.Server.ConnectTimeout,
		IOTimeout:      cfg.Server.IOTimeout,
		BackoffBase:    cfg.Link.BackoffBase,
		ResetThreshold: cfg.Link.ResetThreshold,
		LinkPoll:       cfg.Link.Poll,
		LinkSettle:     cfg.Link.Settle,
	})
	a.closers = append(a.closers, a.conn.Close)

	a.machine = session.New(SessionConfig(cfg), a.conn, capture, playback,
		session.WithClock(a.clock),
		session.WithIndicator(a.indicator),
		session.WithMetrics(a.metrics),
	)

	if cfg.Status.ListenAddr != "" {
		a.status = status.NewServer(cfg.Status.ListenAddr, a.StatusHandler(), a.metrics)
	}
	return a, nil
}

// SessionConfig maps the config file onto [session.Config].
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		ProbeSamples:      cfg.Audio.ProbeSamples,
		BlockSamples:      cfg.Audio.BlockSamples,
		MaxChunk:          cfg.Protocol.MaxChunk,
		MaxReceivePayload: cfg.Protocol.MaxReceivePayload,
		MaxRecording:      cfg.Session.MaxRecording,
		AckWindow:         cfg.Session.AckWindow,
		AckPoll:           cfg.Session.AckPoll,
		WakePoll:          cfg.Session.WakePoll,
		StaleTimeout:      cfg.Session.StaleTimeout,
		ReadRetry:         cfg.Session.ReadRetry,
		Dialect:           cfg.Protocol.Dialect,
		VAD: vad.Config{
			Threshold:      cfg.VAD.Threshold,
			SilenceTimeout: cfg.VAD.SilenceTimeout,
		},
	}
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initLink() error {
	if a.link != nil {
		return nil
	}
	switch a.cfg.Link.Kind {
	case config.LinkNetlink:
		nl, err := link.NewNetlink(a.cfg.Link.Interface)
		if err != nil {
			return err
		}
		a.link = nl
	default:
		a.link = link.NewStatic()
	}
	return nil
}

func (a *App) initDialer() error {
	if a.dialer != nil {
		return nil
	}
	s := a.cfg.Server
	switch s.Transport {
	case config.TransportWebSocket:
		a.dialer = conn.WebSocketDialer{Path: s.Path}
	case config.TransportTCP, "":
		a.dialer = conn.TCPDialer{KeepAlive: s.KeepAlive, UserTimeout: s.UserTimeout}
	default:
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Watch makes Run poll w and apply reloads. Call it before Run.
func (a *App) Watch(w *config.Watcher) { a.watcher = w }

// Run brings the link and connection up and runs the interaction loop until
// ctx is cancelled or the capture source is exhausted. The status server and
// config watcher run alongside and stop with the loop. Cancellation is not
// an error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.loop(gctx)
	})
	if a.status != nil {
		g.Go(func() error { return a.status.ListenAndServe(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) loop(ctx context.Context) error {
	if err := a.conn.EnsureLinkUp(ctx); err != nil {
		return err
	}
	if err := a.conn.Connect(ctx); err != nil {
		return err
	}

	for {
		err := a.machine.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			slog.Info("capture source exhausted, stopping")
			return nil
		default:
			return err
		}
	}
}

// ApplyConfig applies a reloaded config. Only the log level takes effect
// immediately; other changes are logged and wait for a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "sections", d.RestartRequired)
	}
}

// ─── Status ──────────────────────────────────────────────────────────────────

// Report returns the current device status. Safe for concurrent use.
func (a *App) Report() status.Report {
	snap := a.machine.Snapshot()
	cs := a.conn.State()
	return status.Report{
		DeviceID:      a.cfg.DeviceID,
		State:         snap.State.String(),
		InteractionID: snap.InteractionID,
		LastActivity:  snap.LastActivity,
		Interactions:  snap.Interactions,
		Link:          cs.Link.String(),
		RetryCount:    cs.RetryCount,
		LastContact:   cs.LastContact,
		LastTraffic:   cs.LastTraffic,
	}
}

// StatusHandler returns the status endpoints for this app.
func (a *App) StatusHandler() *status.Handler {
	opts := []status.Option{status.WithChecks(
		status.Checker{Name: "link", Check: func(context.Context) error {
			if !a.conn.LinkAssociated() {
				return errors.New("not associated")
			}
			return nil
		}},
		status.Checker{Name: "transport", Check: func(context.Context) error {
			if st := a.conn.State(); st.Link != conn.Connected {
				return fmt.Errorf("%s (retry %d)", st.Link, st.RetryCount)
			}
			return nil
		}},
	)}
	if a.metricsHandler != nil {
		opts = append(opts, status.WithMetricsHandler(a.metricsHandler))
	}
	return status.New(a.Report, opts...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem in order. Safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
