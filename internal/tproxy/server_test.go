package tproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/die-net/sockstun/internal/proxy"
	"github.com/die-net/sockstun/internal/testutil"
)

// recordingDialer hands out one end of a pipe and reports the address it
// was asked for.
type recordingDialer struct {
	addrs chan string
	conn  net.Conn
}

func (d *recordingDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	d.addrs <- address
	return d.conn, nil
}

func TestServerTunnelsToOriginalDst(t *testing.T) {
	if !IsSupported {
		t.Skip("transparent proxy unsupported on this platform")
	}

	for _, addr := range []string{"127.0.0.1:0", "[::1]:0"} {
		t.Run(addr, func(t *testing.T) {
			testServerTunnelsToOriginalDst(t, addr)
		})
	}
}

func testServerTunnelsToOriginalDst(t *testing.T, listenAddr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A plain listener: without NAT the original destination is the
	// listener's own address.
	ln, err := proxy.ListenTCP(ctx, "tcp", listenAddr, net.KeepAliveConfig{})
	if err != nil {
		t.Skipf("listen %s: %v", listenAddr, err)
	}
	defer ln.Close()

	upA, upB := net.Pipe()
	defer upA.Close()
	d := &recordingDialer{addrs: make(chan string, 1), conn: upB}

	srv := NewServer(ctx, proxy.Config{Dialer: d})
	go func() { _ = srv.Serve(ln) }()

	dl := net.Dialer{}
	c, err := dl.DialContext(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case got := <-d.addrs:
		if got != ln.Addr().String() {
			t.Fatalf("dialed %q want %q", got, ln.Addr().String())
		}
	case <-ctx.Done():
		t.Fatal("server never dialed")
	}

	go func() {
		buf := make([]byte, 5)
		n, err := upA.Read(buf)
		if err != nil {
			return
		}
		_, _ = upA.Write(buf[:n])
	}()
	testutil.AssertEcho(t, c, c, []byte("hello"))
}

func TestOriginalDstRequiresTCP(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := OriginalDst(a); err == nil {
		t.Fatal("expected error for non-TCP connection")
	}
}
