package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// AddrType is the SOCKS5 ATYP field.
type AddrType byte

const (
	AddrIPv4   AddrType = 0x01
	AddrDomain AddrType = 0x03
	AddrIPv6   AddrType = 0x04
)

const (
	maxDomainLen = 255
	portLen      = 2
)

func (a AddrType) String() string {
	switch a {
	case AddrIPv4:
		return "ipv4"
	case AddrDomain:
		return "domain"
	case AddrIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("atyp(%d)", byte(a))
	}
}

// Target is the destination the proxy is asked to CONNECT to.
type Target struct {
	Host string
	Port int
}

// ParseTarget splits a host:port string into a Target.
func ParseTarget(address string) (Target, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: invalid port %q", ErrAddress, portStr)
	}
	return Target{Host: host, Port: port}, nil
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// BoundAddress is the BND.ADDR/BND.PORT pair from a CONNECT reply.
type BoundAddress struct {
	Host string
	Port uint16
}

func (b BoundAddress) String() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
}

// ClassifyHost reports which address type host would be encoded as.
//
// Dotted-quad literals are IPv4 even with leading zeros in an octet. Anything
// containing a colon is treated as IPv6, whether or not it parses.
func ClassifyHost(host string) AddrType {
	if _, ok := parseIPv4(host); ok {
		return AddrIPv4
	}
	if strings.Contains(host, ":") {
		return AddrIPv6
	}
	return AddrDomain
}

// EncodeAddress returns ATYP, DST.ADDR and DST.PORT for t as they appear in a
// CONNECT request.
func EncodeAddress(t Target) ([]byte, error) {
	if t.Port < 1 || t.Port > 65535 {
		return nil, fmt.Errorf("%w: port should be between 1 and 65535, %d given", ErrAddress, t.Port)
	}

	var b []byte
	switch ClassifyHost(t.Host) {
	case AddrIPv4:
		ip, _ := parseIPv4(t.Host)
		b = make([]byte, 0, 1+net.IPv4len+portLen)
		b = append(b, byte(AddrIPv4))
		b = append(b, ip[:]...)
	case AddrIPv6:
		ip, err := parseIPv6(t.Host)
		if err != nil {
			return nil, err
		}
		b = make([]byte, 0, 1+net.IPv6len+portLen)
		b = append(b, byte(AddrIPv6))
		b = append(b, ip[:]...)
	default:
		if err := checkDomain(t.Host); err != nil {
			return nil, err
		}
		b = make([]byte, 0, 2+len(t.Host)+portLen)
		b = append(b, byte(AddrDomain), byte(len(t.Host)))
		b = append(b, t.Host...)
	}

	return binary.BigEndian.AppendUint16(b, uint16(t.Port)), nil
}

// DecodeAddress reads a BND.ADDR of type atyp from the front of b. It returns
// the textual address and the number of bytes consumed, so the port starts at
// b[n].
func DecodeAddress(atyp AddrType, b []byte) (string, int, error) {
	switch atyp {
	case AddrIPv4:
		if len(b) < net.IPv4len {
			return "", 0, fmt.Errorf("%w: short ipv4 address", ErrProtocol)
		}
		return netip.AddrFrom4([4]byte(b[:net.IPv4len])).String(), net.IPv4len, nil
	case AddrIPv6:
		if len(b) < net.IPv6len {
			return "", 0, fmt.Errorf("%w: short ipv6 address", ErrProtocol)
		}
		return netip.AddrFrom16([16]byte(b[:net.IPv6len])).String(), net.IPv6len, nil
	case AddrDomain:
		if len(b) < 1 {
			return "", 0, fmt.Errorf("%w: missing domain length", ErrProtocol)
		}
		n := int(b[0])
		if len(b) < 1+n {
			return "", 0, fmt.Errorf("%w: short domain name", ErrProtocol)
		}
		return string(b[1 : 1+n]), 1 + n, nil
	default:
		return "", 0, fmt.Errorf("%w: unknown address type %d", ErrProtocol, byte(atyp))
	}
}

// DecodeBoundAddress reads BND.ADDR and BND.PORT from the front of b and
// returns the number of bytes consumed.
func DecodeBoundAddress(atyp AddrType, b []byte) (BoundAddress, int, error) {
	host, n, err := DecodeAddress(atyp, b)
	if err != nil {
		return BoundAddress{}, 0, err
	}
	if len(b) < n+portLen {
		return BoundAddress{}, 0, fmt.Errorf("%w: short port", ErrProtocol)
	}
	return BoundAddress{Host: host, Port: binary.BigEndian.Uint16(b[n:])}, n + portLen, nil
}

// addressLen returns the encoded length of an address of type atyp whose
// first byte (if any) is in b, or -1 if more bytes are needed to tell.
func addressLen(atyp AddrType, b []byte) (int, error) {
	switch atyp {
	case AddrIPv4:
		return net.IPv4len, nil
	case AddrIPv6:
		return net.IPv6len, nil
	case AddrDomain:
		if len(b) < 1 {
			return -1, nil
		}
		return 1 + int(b[0]), nil
	default:
		return 0, fmt.Errorf("%w: unknown address type %d", ErrProtocol, byte(atyp))
	}
}

// parseIPv4 accepts plain dotted-decimal, allowing leading zeros which
// netip.ParseAddr rejects.
func parseIPv4(s string) ([4]byte, bool) {
	var ip [4]byte
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ip, false
	}
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return ip, false
		}
		n := 0
		for _, c := range []byte(p) {
			if c < '0' || c > '9' {
				return ip, false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return ip, false
		}
		ip[i] = byte(n)
	}
	return ip, true
}

func parseIPv6(s string) ([16]byte, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() {
		return [16]byte{}, fmt.Errorf("%w: invalid ipv6 address %q", ErrAddress, s)
	}
	if addr.Zone() != "" {
		return [16]byte{}, fmt.Errorf("%w: ipv6 zone not allowed in %q", ErrAddress, s)
	}
	return addr.As16(), nil
}

func checkDomain(host string) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrAddress)
	}
	if len(host) > maxDomainLen {
		return fmt.Errorf("%w: domain name longer than %d bytes", ErrAddress, maxDomainLen)
	}
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			return fmt.Errorf("%w: non-ascii domain name %q", ErrAddress, host)
		}
	}
	return nil
}
