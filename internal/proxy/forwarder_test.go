package proxy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/txthinking/socks5"

	"github.com/die-net/sockstun/internal/dialer"
	internalsocks5 "github.com/die-net/sockstun/internal/socks5"
	"github.com/die-net/sockstun/internal/testutil"
)

func TestForwarderThroughSOCKS5(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.ServeSOCKS5Connect(ctx, c)
	})

	cfg := Config{
		Dialer: dialer.NewSOCKS5ProxyDialer(dialer.Config{
			DialTimeout:        2 * time.Second,
			NegotiationTimeout: 2 * time.Second,
		}, upLn.Addr().String(), false),
	}

	ln, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	if err != nil {
		t.Fatal(err)
	}

	srvCtx, stop := context.WithCancel(ctx)
	fwd := NewForwarder(srvCtx, cfg, echoLn.Addr().String())
	if fwd.Target() != echoLn.Addr().String() {
		t.Fatalf("target %q", fwd.Target())
	}
	served := make(chan error, 1)
	go func() { served <- fwd.Serve(ln) }()

	d := net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
	_ = c.Close()
	waitUp()

	stop()
	_ = ln.Close()
	if err := <-served; err != nil {
		t.Fatalf("serve after shutdown: %v", err)
	}
}

func TestTunnelProxyRejects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.ServeSOCKS5Reject(c, socks5.RepNotAllowed)
	})

	cfg := Config{
		Dialer: dialer.NewSOCKS5ProxyDialer(dialer.Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), false),
	}

	client, server := net.Pipe()
	defer client.Close()

	err := Tunnel(ctx, cfg, server, "example.com:443")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, internalsocks5.ErrConnect) {
		t.Fatalf("got %v want ErrConnect", err)
	}
	if _, err := client.Write([]byte("x")); err == nil {
		t.Fatal("client connection left open")
	}

	waitUp()
}
