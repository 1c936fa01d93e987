package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ClientConfig tunes ClientDial.
type ClientConfig struct {
	// NegotiationTimeout bounds the handshake. Zero means no timeout.
	NegotiationTimeout time.Duration
	// Strict requires each proxy reply to arrive in a single read.
	Strict bool
}

// Conn is a connection tunneled through a SOCKS5 proxy. Reads first return
// any bytes the proxy sent right behind its CONNECT reply.
type Conn struct {
	net.Conn

	bound   BoundAddress
	pending []byte
}

// BoundAddr returns the address the proxy reported after connecting.
func (c *Conn) BoundAddr() BoundAddress {
	return c.bound
}

func (c *Conn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

// CloseWrite shuts down the writing side of the tunnel if the underlying
// transport supports it, and closes the whole connection otherwise.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

// ClientDial negotiates a CONNECT to address (host:port) over conn, which
// must already be connected to the proxy.
//
// On error, conn is closed.
func ClientDial(ctx context.Context, conn net.Conn, cfg ClientConfig, address string) (*Conn, error) {
	t, err := ParseTarget(address)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ClientConnect(ctx, conn, cfg, t)
}

// ClientConnect is ClientDial with an already parsed target.
//
// If NegotiationTimeout is set, a deadline is applied during negotiation and
// cleared before returning. Canceling ctx aborts the negotiation.
func ClientConnect(ctx context.Context, conn net.Conn, cfg ClientConfig, t Target) (*Conn, error) {
	if cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.NegotiationTimeout))
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	fail := func(err error) (*Conn, error) {
		stop()
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("socks5 negotiation: %w", ctxErr)
		}
		return nil, err
	}

	hs := NewHandshake(conn, t)
	hs.Reassemble = !cfg.Strict
	if err := hs.Start(); err != nil {
		return fail(err)
	}

	buf := make([]byte, 512)
	for !hs.State().Terminal() {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, herr := hs.HandleChunk(buf[:n]); herr != nil {
				return fail(herr)
			}
		}
		if err != nil && !hs.State().Terminal() {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			hs.Fail(err)
			return fail(fmt.Errorf("read reply: %w", err))
		}
	}

	if !stop() {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 negotiation: %w", ctx.Err())
	}

	if cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	return &Conn{Conn: conn, bound: hs.Bound(), pending: hs.Leftover()}, nil
}
