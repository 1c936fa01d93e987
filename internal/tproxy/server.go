package tproxy

import (
	"context"
	"net"

	"github.com/die-net/sockstun/internal/proxy"
)

// Server tunnels each redirected connection to its original destination.
type Server struct {
	ctx context.Context
	cfg proxy.Config
}

func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg}
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	return proxy.Serve(s.ctx, s.cfg, ln, "tproxy", s.handle)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	dst, err := OriginalDst(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	return proxy.Tunnel(ctx, s.cfg, conn, dst.String())
}
