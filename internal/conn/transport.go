package conn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/protocol"
)

// maxTokenLen bounds a single control line, newline included.
const maxTokenLen = 256

// Stream is the view of the server connection used by the session state
// machine. Reads and writes are bounded by deadlines; a read that times out
// returns an error satisfying [protocol.IsTimeout] and leaves the stream
// usable. Every other failure is a [TransportError].
type Stream interface {
	io.Reader
	io.Writer

	// ReadToken reads one newline-terminated control line, waiting at most
	// wait. On timeout it returns [ErrTokenTimeout]; a partially received
	// line is kept for the next call.
	ReadToken(wait time.Duration) (protocol.Token, error)

	// ReadAck16 reads one 2-byte little-endian acknowledgment value,
	// waiting at most wait. On timeout it returns [ErrTokenTimeout]; a
	// partially received value is kept for the next call.
	ReadAck16(wait time.Duration) (uint16, error)
}

// Transport is the [Stream] over one established connection. All reads share
// one buffer, so bytes that arrive behind a control line are not lost to the
// frame decoder.
//
// A Transport is owned by the session loop and is not safe for concurrent
// use.
type Transport struct {
	conn      net.Conn
	rd        *bufio.Reader
	ioTimeout time.Duration
	clock     clock.Clock

	line   []byte
	ack    [2]byte
	ackN   int
	broken error

	// Unix nanoseconds. Read from the status server goroutine.
	lastActivity atomic.Int64
}

// NewTransport wraps c. ioTimeout bounds every individual read and write.
func NewTransport(c net.Conn, ioTimeout time.Duration, clk clock.Clock) *Transport {
	if clk == nil {
		clk = clock.Real{}
	}
	t := &Transport{
		conn:      c,
		rd:        bufio.NewReaderSize(c, 8192),
		ioTimeout: ioTimeout,
		clock:     clk,
	}
	t.touch()
	return t
}

// Write writes p in full or fails with a [TransportError]. A write timeout is
// fatal: a partially written frame cannot be resumed.
func (t *Transport) Write(p []byte) (int, error) {
	if t.broken != nil {
		return 0, t.broken
	}
	if t.ioTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.ioTimeout))
	}
	n, err := t.conn.Write(p)
	if err != nil {
		return n, t.fail("write", err)
	}
	t.touch()
	return n, nil
}

// Read implements [io.Reader] with the I/O timeout as read deadline.
func (t *Transport) Read(p []byte) (int, error) {
	if t.broken != nil {
		return 0, t.broken
	}
	if t.ioTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.ioTimeout))
	}
	n, err := t.rd.Read(p)
	if n > 0 {
		t.touch()
	}
	if err != nil {
		if protocol.IsTimeout(err) {
			return n, err
		}
		return n, t.fail("read", err)
	}
	return n, nil
}

// ReadToken implements [Stream].
func (t *Transport) ReadToken(wait time.Duration) (protocol.Token, error) {
	if t.broken != nil {
		return protocol.TokenUnknown, t.broken
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(wait))
	chunk, err := t.rd.ReadSlice('\n')
	t.line = append(t.line, chunk...)
	if len(chunk) > 0 {
		t.touch()
	}
	switch {
	case err == nil:
		tok := protocol.ParseToken(string(t.line))
		t.line = t.line[:0]
		return tok, nil
	case errors.Is(err, bufio.ErrBufferFull):
		t.line = t.line[:0]
		return protocol.TokenUnknown, ErrTokenTooLong
	case protocol.IsTimeout(err):
		if len(t.line) > maxTokenLen {
			t.line = t.line[:0]
			return protocol.TokenUnknown, ErrTokenTooLong
		}
		return protocol.TokenUnknown, ErrTokenTimeout
	default:
		return protocol.TokenUnknown, t.fail("read token", err)
	}
}

// ReadAck16 implements [Stream].
func (t *Transport) ReadAck16(wait time.Duration) (uint16, error) {
	if t.broken != nil {
		return 0, t.broken
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(wait))
	for t.ackN < len(t.ack) {
		n, err := t.rd.Read(t.ack[t.ackN:])
		t.ackN += n
		if n > 0 {
			t.touch()
		}
		if t.ackN == len(t.ack) {
			break
		}
		if err != nil {
			if protocol.IsTimeout(err) {
				return 0, ErrTokenTimeout
			}
			return 0, t.fail("read ack", err)
		}
	}
	t.ackN = 0
	return binary.LittleEndian.Uint16(t.ack[:]), nil
}

// Close closes the underlying connection. Further operations fail.
func (t *Transport) Close() error {
	if t.broken == nil {
		t.broken = &TransportError{Op: "close", Err: net.ErrClosed}
	}
	return t.conn.Close()
}

// Broken returns the error that made the transport unusable, or nil.
func (t *Transport) Broken() error { return t.broken }

// LastActivity returns when bytes last moved in either direction. Safe for
// concurrent use.
func (t *Transport) LastActivity() time.Time { return time.Unix(0, t.lastActivity.Load()) }

func (t *Transport) touch() { t.lastActivity.Store(t.clock.Now().UnixNano()) }

func (t *Transport) fail(op string, err error) error {
	t.broken = &TransportError{Op: op, Err: err}
	return t.broken
}
