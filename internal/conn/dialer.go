package conn

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Dialer opens the raw byte stream to the server.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// DialerFunc adapts a function to a [Dialer].
type DialerFunc func(ctx context.Context, addr string) (net.Conn, error)

// Dial implements [Dialer].
func (f DialerFunc) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return f(ctx, addr)
}

// ─── TCP ──────────────────────────────────────────────────────────────────────

// TCPDialer dials plain TCP with Nagle disabled.
type TCPDialer struct {
	// KeepAlive is the TCP keep-alive period. Zero uses the net package
	// default; negative disables keep-alives.
	KeepAlive time.Duration

	// UserTimeout bounds how long sent data may stay unacknowledged before
	// the kernel drops the connection (TCP_USER_TIMEOUT). Linux only; zero
	// leaves the system default.
	UserTimeout time.Duration
}

// Dial implements [Dialer].
func (d TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{
		KeepAlive: d.KeepAlive,
		Control:   socketControl(d.UserTimeout),
	}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("conn: set no-delay: %w", err)
		}
	}
	return c, nil
}

// ─── WebSocket ────────────────────────────────────────────────────────────────

// wsReadLimit bounds a single inbound WebSocket message.
const wsReadLimit = 1 << 20

// WebSocketDialer tunnels the frame stream through a WebSocket, for servers
// behind HTTP infrastructure. Every write becomes one binary message; inbound
// messages are concatenated into a byte stream.
type WebSocketDialer struct {
	// Scheme is "ws" or "wss". Default: "ws".
	Scheme string

	// Path is the request path, e.g. "/voice". Default: "/".
	Path string
}

// URL returns the WebSocket URL for addr.
func (d WebSocketDialer) URL(addr string) string {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "ws"
	}
	path := d.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: path}
	return u.String()
}

// Dial implements [Dialer].
func (d WebSocketDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	c, _, err := websocket.Dial(ctx, d.URL(addr), nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(wsReadLimit)
	return newWSConn(c), nil
}
