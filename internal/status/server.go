package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/voxclient/internal/observe"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP server for a [Handler].
type Server struct {
	srv *http.Server
}

// NewServer wraps h in the observability middleware and returns a server
// for addr. m may be nil to use [observe.DefaultMetrics].
func NewServer(addr string, h *Handler, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m, h.Paths()...)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the wrapped handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Serve listens on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	slog.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return fmt.Errorf("status: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status: listen %q: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}
