//go:build linux

package tproxy

import (
	"encoding/binary"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// IsSupported is true on OSes with a transparent listener.
const IsSupported = true

func setTransparent(network string, fd int) error {
	if network == "tcp6" {
		return unix.SetsockoptInt(fd, unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
	}
	return unix.SetsockoptInt(fd, unix.SOL_IP, unix.IP_TRANSPARENT, 1)
}

// originalDst asks netfilter for the pre-NAT destination and falls back to
// the local address when the connection was not NATed.
func originalDst(tc *net.TCPConn) (netip.AddrPort, error) {
	local, err := localAddrPort(tc)
	if err != nil {
		return netip.AddrPort{}, err
	}

	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, err
	}

	var (
		dst   netip.AddrPort
		found bool
	)
	ctrlErr := rc.Control(func(fd uintptr) {
		if local.Addr().Is4() {
			// struct sockaddr_in comes back in the first 16 bytes.
			mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
			if err != nil {
				return
			}
			sa := mreq.Multiaddr
			dst = netip.AddrPortFrom(netip.AddrFrom4([4]byte(sa[4:8])), binary.BigEndian.Uint16(sa[2:4]))
			found = true
			return
		}
		// IP6T_SO_ORIGINAL_DST has the same value; it fills a sockaddr_in6.
		info, err := unix.GetsockoptIPv6MTUInfo(int(fd), unix.SOL_IPV6, unix.SO_ORIGINAL_DST)
		if err != nil {
			return
		}
		dst = netip.AddrPortFrom(netip.AddrFrom16(info.Addr.Addr).Unmap(), ntohs(info.Addr.Port))
		found = true
	})
	if ctrlErr != nil || !found {
		return local, nil
	}
	return dst, nil
}

func ntohs(v uint16) uint16 {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], v)
	return binary.BigEndian.Uint16(b[:])
}
