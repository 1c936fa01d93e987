package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/die-net/sockstun/internal/logging"
)

// Tunnel dials target through cfg.Dialer and relays conn over it. conn is
// always closed on return.
func Tunnel(ctx context.Context, cfg Config, conn net.Conn, target string) error {
	defer conn.Close()

	up, err := cfg.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	if err := CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("relay %s: %w", target, err)
	}
	return nil
}

// Serve runs handle for every connection accepted on ln until ln is closed.
// handle owns the connection.
func Serve(ctx context.Context, cfg Config, ln net.Listener, name string, handle func(context.Context, net.Conn) error) error {
	log := cfg.logger().With(zap.String("listener", name))
	lvl := logging.ConnLevel(cfg.Verbose)

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := handle(ctx, c); err != nil && ctx.Err() == nil {
				log.Log(lvl, "connection error", zap.Stringer("client", c.RemoteAddr()), zap.Error(err))
			}
		}()
	}
}
