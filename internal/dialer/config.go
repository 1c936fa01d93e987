package dialer

import (
	"net"
	"time"

	"github.com/die-net/sockstun/internal/resolve"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// StrictNegotiation requires every proxy reply to arrive in a single
	// read instead of reassembling replies split across reads.
	StrictNegotiation bool

	// Resolver looks up target names for socks5:// upstreams. Nil uses the
	// system resolver.
	Resolver *resolve.Resolver
}
