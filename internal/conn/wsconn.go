package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsConn adapts a [websocket.Conn] to [net.Conn]. A background goroutine
// receives messages so that read deadlines only time out the caller and
// never cancel the underlying WebSocket read.
type wsConn struct {
	c      *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	msgs   chan []byte

	pending []byte

	mu            sync.Mutex
	readErr       error
	readDeadline  time.Time
	writeDeadline time.Time
}

func newWSConn(c *websocket.Conn) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	w := &wsConn{
		c:      c,
		ctx:    ctx,
		cancel: cancel,
		msgs:   make(chan []byte, 16),
	}
	go w.readLoop()
	return w
}

func (w *wsConn) readLoop() {
	defer close(w.msgs)
	for {
		typ, msg, err := w.c.Read(w.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				err = io.EOF
			}
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		select {
		case w.msgs <- msg:
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *wsConn) Read(p []byte) (int, error) {
	if len(w.pending) == 0 {
		w.mu.Lock()
		dl := w.readDeadline
		w.mu.Unlock()

		var expired <-chan time.Time
		if !dl.IsZero() {
			d := time.Until(dl)
			if d <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			t := time.NewTimer(d)
			defer t.Stop()
			expired = t.C
		}

		select {
		case msg, ok := <-w.msgs:
			if !ok {
				return 0, w.err()
			}
			w.pending = msg
		case <-expired:
			return 0, os.ErrDeadlineExceeded
		}
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return w.readErr
	}
	return net.ErrClosed
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.mu.Lock()
	dl := w.writeDeadline
	w.mu.Unlock()

	ctx := w.ctx
	if !dl.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}
	if err := w.c.Write(ctx, websocket.MessageBinary, p); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	w.cancel()
	return w.c.Close(websocket.StatusNormalClosure, "")
}

func (w *wsConn) LocalAddr() net.Addr  { return wsAddr{} }
func (w *wsConn) RemoteAddr() net.Addr { return wsAddr{} }

func (w *wsConn) SetDeadline(t time.Time) error {
	w.mu.Lock()
	w.readDeadline, w.writeDeadline = t, t
	w.mu.Unlock()
	return nil
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	w.mu.Lock()
	w.readDeadline = t
	w.mu.Unlock()
	return nil
}

func (w *wsConn) SetWriteDeadline(t time.Time) error {
	w.mu.Lock()
	w.writeDeadline = t
	w.mu.Unlock()
	return nil
}

type wsAddr struct{}

func (wsAddr) Network() string { return "websocket" }
func (wsAddr) String() string  { return "websocket" }
