package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/die-net/sockstun/internal/dialer"
	"github.com/die-net/sockstun/internal/socks5"
)

// runNetcat tunnels stdin and stdout to target. It returns once the remote
// side has finished sending. Reaching EOF on stdin only half-closes the
// tunnel so the reply can still be read.
//
// Through a SOCKS5 upstream the tunnel is an event-driven socks5.Socket;
// negotiationTimeout bounds each handshake read and write until the proxy
// accepts the CONNECT request.
func runNetcat(ctx context.Context, d dialer.Dialer, negotiationTimeout time.Duration, target string, stdin io.Reader, stdout io.Writer) error {
	sd, ok := d.(*dialer.SOCKS5ProxyDialer)
	if !ok {
		return runNetcatConn(ctx, d, target, stdin, stdout)
	}

	t, err := sd.ResolveTarget(ctx, target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	var s *socks5.Socket
	s = sd.NewSocket(socks5.Handlers{
		OnConnect: func(socks5.BoundAddress) {
			s.SetTimeout(0)
			// Reads from stdin cannot be interrupted, so this goroutine is
			// not waited for.
			go func() {
				_, _ = io.Copy(s, stdin)
				_ = s.End(nil)
			}()
		},
		OnData: func(p []byte) {
			if _, err := stdout.Write(p); err != nil {
				s.Destroy()
				finish(fmt.Errorf("write output: %w", err))
			}
		},
		OnEnd: func() { finish(nil) },
		OnClose: func(bool) {
			// An error, if any, was already reported through OnError.
			finish(nil)
		},
		OnError: func(err error) {
			finish(fmt.Errorf("tunnel %s: %w", target, err))
		},
	})
	s.SetTimeout(negotiationTimeout)
	s.Connect(t.Port, t.Host)
	defer s.Destroy()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

// runNetcatConn is runNetcat over a plain net.Conn, for upstreams that are
// not SOCKS5 proxies.
func runNetcatConn(ctx context.Context, d dialer.Dialer, target string, stdin io.Reader, stdout io.Writer) error {
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	go func() {
		_, _ = io.Copy(conn, stdin)
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
	}()

	if _, err := io.Copy(stdout, conn); err != nil && ctx.Err() == nil {
		return fmt.Errorf("relay %s: %w", target, err)
	}
	return nil
}
