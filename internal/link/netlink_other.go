//go:build !linux

package link

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("netlink is only available on linux")

// Netlink is unavailable outside linux; [NewNetlink] always fails.
type Netlink struct{}

// NewNetlink returns an error on this platform.
func NewNetlink(iface string) (*Netlink, error) {
	return nil, &Error{Op: "lookup", Iface: iface, Err: errUnsupported}
}

// Associated implements [Layer].
func (*Netlink) Associated() bool { return false }

// Associate implements [Layer].
func (*Netlink) Associate(context.Context) error {
	return &Error{Op: "associate", Err: errUnsupported}
}

// Disassociate implements [Layer].
func (*Netlink) Disassociate(context.Context) error {
	return &Error{Op: "disassociate", Err: errUnsupported}
}
