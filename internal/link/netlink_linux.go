//go:build linux

package link

import (
	"context"
	"net"

	"github.com/vishvananda/netlink"
)

// Netlink is a [Layer] backed by a Linux network interface. Associate sets
// the interface administratively up; Disassociate sets it down. Bringing the
// interface up lets the supplicant (or DHCP client) re-establish the link;
// [Netlink.Associated] then waits for the kernel to report the carrier.
//
// Changing interface state requires CAP_NET_ADMIN.
type Netlink struct {
	iface string
}

// NewNetlink returns a [Netlink] for the named interface.
func NewNetlink(iface string) (*Netlink, error) {
	if _, err := netlink.LinkByName(iface); err != nil {
		return nil, &Error{Op: "lookup", Iface: iface, Err: err}
	}
	return &Netlink{iface: iface}, nil
}

// Associated implements [Layer]. A link counts as associated when it is
// administratively up and its operational state is up (or unknown, which
// some drivers report permanently).
func (n *Netlink) Associated() bool {
	l, err := netlink.LinkByName(n.iface)
	if err != nil {
		return false
	}
	attrs := l.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		return false
	}
	return attrs.OperState == netlink.OperUp || attrs.OperState == netlink.OperUnknown
}

// Associate implements [Layer].
func (n *Netlink) Associate(ctx context.Context) error {
	return n.set(ctx, "associate", netlink.LinkSetUp)
}

// Disassociate implements [Layer].
func (n *Netlink) Disassociate(ctx context.Context) error {
	return n.set(ctx, "disassociate", netlink.LinkSetDown)
}

func (n *Netlink) set(ctx context.Context, op string, fn func(netlink.Link) error) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Iface: n.iface, Err: err}
	}
	l, err := netlink.LinkByName(n.iface)
	if err != nil {
		return &Error{Op: op, Iface: n.iface, Err: err}
	}
	if err := fn(l); err != nil {
		return &Error{Op: op, Iface: n.iface, Err: err}
	}
	return nil
}
