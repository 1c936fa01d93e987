package proxy

import (
	"context"
	"net"
)

// Forwarder tunnels every accepted connection to a fixed target through
// the configured dialer, like ssh -L.
type Forwarder struct {
	ctx    context.Context
	cfg    Config
	target string
}

func NewForwarder(ctx context.Context, cfg Config, target string) *Forwarder {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Forwarder{ctx: ctx, cfg: cfg, target: target}
}

// Target returns the host:port every connection is forwarded to.
func (f *Forwarder) Target() string {
	return f.target
}

// Serve accepts connections on ln until it is closed. It returns nil when ln
// was closed because the server context ended.
func (f *Forwarder) Serve(ln net.Listener) error {
	return Serve(f.ctx, f.cfg, ln, "forward", func(ctx context.Context, c net.Conn) error {
		return Tunnel(ctx, f.cfg, c, f.target)
	})
}
