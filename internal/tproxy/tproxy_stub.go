//go:build !linux

package tproxy

import (
	"errors"
	"net"
	"net/netip"
)

// IsSupported is true on OSes with a transparent listener.
const IsSupported = false

var errUnsupported = errors.New("transparent proxy is only supported on linux")

func setTransparent(string, int) error {
	return errUnsupported
}

func originalDst(*net.TCPConn) (netip.AddrPort, error) {
	return netip.AddrPort{}, errUnsupported
}
