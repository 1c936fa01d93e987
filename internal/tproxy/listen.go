package tproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/die-net/sockstun/internal/proxy"
)

var errNoOriginalDst = errors.New("original destination unavailable")

// ListenTransparentTCP listens on addr with the platform's transparent
// socket option enabled. Callers still need matching firewall rules to
// redirect traffic to the listener.
func ListenTransparentTCP(ctx context.Context, addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = setTransparent(network, int(fd))
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &proxy.KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// OriginalDst returns the destination a redirected connection was
// originally addressed to.
func OriginalDst(c net.Conn) (netip.AddrPort, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: not a TCP connection", errNoOriginalDst)
	}
	return originalDst(tc)
}

// localAddrPort is the original destination for TPROXY rules, which keep
// the destination address on the accepted socket.
func localAddrPort(tc *net.TCPConn) (netip.AddrPort, error) {
	ta, ok := tc.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, errNoOriginalDst
	}
	ap := ta.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
