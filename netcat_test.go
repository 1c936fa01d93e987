package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/txthinking/socks5"

	"github.com/die-net/sockstun/internal/dialer"
	internalsocks5 "github.com/die-net/sockstun/internal/socks5"
	"github.com/die-net/sockstun/internal/testutil"
)

func TestRunNetcat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.ServeSOCKS5Connect(ctx, c)
	})

	d, err := dialer.New(dialer.Config{DialTimeout: time.Second, NegotiationTimeout: time.Second}, "socks5h://"+upLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runNetcat(ctx, d, time.Second, echoLn.Addr().String(), strings.NewReader("hello"), &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello" {
		t.Fatalf("got %q", out.String())
	}

	waitUp()
}

func TestRunNetcatDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	d, err := dialer.New(dialer.Config{DialTimeout: time.Second}, "direct://")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runNetcat(ctx, d, time.Second, echoLn.Addr().String(), strings.NewReader("direct"), &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "direct" {
		t.Fatalf("got %q", out.String())
	}
}

func TestRunNetcatRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.ServeSOCKS5Reject(c, socks5.RepHostUnreachable)
	})

	d, err := dialer.New(dialer.Config{DialTimeout: time.Second}, "socks5h://"+upLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	err = runNetcat(ctx, d, time.Second, "example.com:80", strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, internalsocks5.ErrConnect) {
		t.Fatalf("got %v want ErrConnect", err)
	}

	waitUp()
}

func TestRunNetcatNegotiationTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The proxy accepts the connection and never answers the greeting.
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		<-ctx.Done()
	})

	d, err := dialer.New(dialer.Config{DialTimeout: time.Second}, "socks5h://"+upLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	err = runNetcat(ctx, d, 50*time.Millisecond, "example.com:80", strings.NewReader(""), &bytes.Buffer{})
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("got %v want timeout", err)
	}

	cancel()
	waitUp()
}

func TestRunNetcatDialError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	d, err := dialer.New(dialer.Config{DialTimeout: time.Second}, "socks5h://"+addr)
	if err != nil {
		t.Fatal(err)
	}
	if err := runNetcat(ctx, d, time.Second, "example.com:80", strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error with no proxy listening")
	}
}
