//go:build !linux

package conn

import (
	"syscall"
	"time"
)

// socketControl is a no-op outside linux.
func socketControl(time.Duration) func(network, address string, c syscall.RawConn) error {
	return nil
}
