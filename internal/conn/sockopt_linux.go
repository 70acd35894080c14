//go:build linux

package conn

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// socketControl returns a dial control hook that sets TCP_USER_TIMEOUT, or
// nil when userTimeout is not positive.
func socketControl(userTimeout time.Duration) func(network, address string, c syscall.RawConn) error {
	if userTimeout <= 0 {
		return nil
	}
	ms := int(userTimeout / time.Millisecond)
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, ms)
		}); err != nil {
			return err
		}
		return sockErr
	}
}
