// Package resolve looks up target host names locally, for upstreams where
// the SOCKS5 proxy should be handed an IP address rather than a name.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"
)

const (
	defaultTimeout = 5 * time.Second
	defaultMaxTTL  = 5 * time.Minute
)

// ErrNoAddress is returned when a name has no A or AAAA records.
var ErrNoAddress = errors.New("no address records")

// Config configures a Resolver.
type Config struct {
	// Servers are DNS servers as host:port, tried in order. Empty means the
	// system resolver.
	Servers []string
	// Timeout bounds each query. Zero means 5s.
	Timeout time.Duration
	// MaxTTL caps how long answers are cached. Zero means 5m.
	MaxTTL time.Duration
}

// Resolver resolves names to a single address, preferring IPv4, and caches
// the answers for their TTL.
type Resolver struct {
	cfg    Config
	client *dns.Client
	cache  *cache.Cache
}

// New returns a Resolver for cfg.
func New(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = defaultMaxTTL
	}
	return &Resolver{
		cfg:    cfg,
		client: &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		cache:  cache.New(cfg.MaxTTL, 2*cfg.MaxTTL),
	}
}

// Resolve returns an address for host. IP literals are returned as is.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}

	if v, ok := r.cache.Get(host); ok {
		return v.(netip.Addr), nil
	}

	var (
		addr netip.Addr
		ttl  time.Duration
		err  error
	)
	if len(r.cfg.Servers) == 0 {
		addr, ttl, err = r.lookupSystem(ctx, host)
	} else {
		addr, ttl, err = r.lookupDNS(ctx, host)
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}

	if ttl > r.cfg.MaxTTL {
		ttl = r.cfg.MaxTTL
	}
	if ttl > 0 {
		r.cache.Set(host, addr, ttl)
	}
	return addr, nil
}

func (r *Resolver) lookupSystem(ctx context.Context, host string) (netip.Addr, time.Duration, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, 0, err
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap(), r.cfg.MaxTTL, nil
		}
	}
	if len(addrs) == 0 {
		return netip.Addr{}, 0, ErrNoAddress
	}
	return addrs[0], r.cfg.MaxTTL, nil
}

func (r *Resolver) lookupDNS(ctx context.Context, host string) (netip.Addr, time.Duration, error) {
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addr, ttl, err := r.query(ctx, host, qtype)
		if err == nil {
			return addr, ttl, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return netip.Addr{}, 0, lastErr
}

// query asks each server in turn for qtype records of host and returns the
// first address found.
func (r *Resolver) query(ctx context.Context, host string, qtype uint16) (netip.Addr, time.Duration, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	lastErr := ErrNoAddress
	for _, server := range r.cfg.Servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("query %s: %w", server, err)
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("query %s: %s", server, dns.RcodeToString[in.Rcode])
			continue
		}

		for _, rr := range in.Answer {
			var (
				ip  net.IP
				hdr = rr.Header()
			)
			switch rr := rr.(type) {
			case *dns.A:
				ip = rr.A.To4()
			case *dns.AAAA:
				ip = rr.AAAA.To16()
			default:
				continue
			}
			if addr, ok := netip.AddrFromSlice(ip); ok {
				return addr, time.Duration(hdr.Ttl) * time.Second, nil
			}
		}
		return netip.Addr{}, 0, ErrNoAddress
	}
	return netip.Addr{}, 0, lastErr
}
