package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/die-net/sockstun/internal/resolve"
	"github.com/die-net/sockstun/internal/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through a SOCKS5 proxy
// using the CONNECT command.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	direct    Dialer
	resolver  *resolve.Resolver
}

// NewSOCKS5ProxyDialer constructs a dialer for the proxy at proxyAddr. If
// resolveLocally is set, target names are looked up before the CONNECT
// request so the proxy only ever sees IP addresses.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr string, resolveLocally bool) Dialer {
	d := &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		direct:    NewDirectDialer(cfg),
	}
	if resolveLocally {
		d.resolver = cfg.Resolver
		if d.resolver == nil {
			d.resolver = resolve.New(resolve.Config{})
		}
	}
	return d
}

// ProxyAddr returns the proxy host:port.
func (f *SOCKS5ProxyDialer) ProxyAddr() string {
	return f.proxyAddr
}

// DialContext connects to the proxy and asks it to CONNECT to address.
//
// Negotiation is performed synchronously before returning. If
// NegotiationTimeout is set, a deadline is applied during negotiation and
// cleared before returning.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	t, err := f.ResolveTarget(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	conn, err := socks5.ClientConnect(ctx, c, socks5.ClientConfig{
		NegotiationTimeout: f.cfg.NegotiationTimeout,
		Strict:             f.cfg.StrictNegotiation,
	}, t)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}
	return conn, nil
}

// ResolveTarget parses address as host:port. For socks5:// upstreams a host
// name is resolved locally so the proxy is handed an IP address.
func (f *SOCKS5ProxyDialer) ResolveTarget(ctx context.Context, address string) (socks5.Target, error) {
	t, err := socks5.ParseTarget(address)
	if err != nil {
		return socks5.Target{}, err
	}

	if f.resolver != nil && socks5.ClassifyHost(t.Host) == socks5.AddrDomain {
		addr, err := f.resolver.Resolve(ctx, t.Host)
		if err != nil {
			return socks5.Target{}, err
		}
		t.Host = addr.String()
	}
	return t, nil
}

// NewSocket returns an event-driven socket that reaches its target through
// this proxy. The proxy is dialed with the same timeout and keepalive
// settings as DialContext uses.
func (f *SOCKS5ProxyDialer) NewSocket(h socks5.Handlers) *socks5.Socket {
	s := socks5.NewSocket(f.direct, f.proxyAddr, h)
	s.Strict = f.cfg.StrictNegotiation
	return s
}
