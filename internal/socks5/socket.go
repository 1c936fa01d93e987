package socks5

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var errNotConnected = errors.New("socks5: socket not connected")

// ContextDialer opens the transport connection to the proxy.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Handlers receive a Socket's events. Nil handlers are skipped. They are all
// called from the socket's event goroutine, one at a time.
type Handlers struct {
	OnConnect func(BoundAddress)
	OnData    func([]byte)
	OnEnd     func()
	OnClose   func(hadError bool)
	OnError   func(error)
}

// Socket is an event-driven connection to a target through a SOCKS5 proxy.
//
// Until the proxy accepts the CONNECT request, everything read from the
// transport is consumed by the handshake and never reaches OnData. After
// that the socket relays transport events unchanged.
//
// The transport is closed exactly once. Handlers run on the socket's event
// goroutine, so Destroy called from inside a handler guarantees no further
// handler calls. Destroy called from another goroutine stops every event not
// yet dispatched; a handler already being dispatched at that moment may
// still run once.
type Socket struct {
	dialer    ContextDialer
	proxyAddr string
	h         Handlers
	// Strict disables reassembly of handshake replies split across reads.
	// It is read when Connect is called.
	Strict bool

	mu          sync.Mutex
	cond        *sync.Cond
	conn        net.Conn
	state       State
	started     bool
	destroyed   bool
	paused      bool
	readable    bool
	writable    bool
	ended       bool
	closedByEnd bool // End closed a transport that cannot half-close
	encoding    string
	timeout     time.Duration
	noDelay     *bool
	keepAlive   *net.KeepAliveConfig
	cancel      context.CancelFunc
	bound       BoundAddress

	closeOnce sync.Once
}

// NewSocket returns a socket that will reach proxyAddr through d.
func NewSocket(d ContextDialer, proxyAddr string, h Handlers) *Socket {
	s := &Socket{dialer: d, proxyAddr: proxyAddr, h: h}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Connect dials the proxy and asks it to connect to host:port. It returns
// immediately; the outcome is reported through OnConnect or OnError.
//
// A socket connects at most once. Calling Connect again reports
// ErrHandshakeStarted to OnError from the calling goroutine.
func (s *Socket) Connect(port int, host string) *Socket {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return s
	}
	if s.started {
		s.mu.Unlock()
		if s.h.OnError != nil {
			s.h.OnError(ErrHandshakeStarted)
		}
		return s
	}
	s.started = true
	strict := s.Strict
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, Target{Host: host, Port: port}, strict)
	return s
}

func (s *Socket) run(ctx context.Context, t Target, strict bool) {
	defer s.cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", s.proxyAddr)
	if err != nil {
		s.failHandshake(nil, fmt.Errorf("dial proxy %s: %w", s.proxyAddr, err))
		return
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		s.closeTransport(conn)
		return
	}
	s.conn = conn
	s.applyOptionsLocked()
	s.mu.Unlock()

	hs := NewHandshake(writerFunc(s.writeTransport), t)
	hs.Reassemble = !strict
	s.setState(StateAwaitingAuthReply)
	if err := hs.Start(); err != nil {
		s.failHandshake(conn, err)
		return
	}
	s.setState(hs.State())

	buf := make([]byte, 32*1024)
	for !hs.State().Terminal() {
		n, err := s.read(buf)
		if n > 0 {
			if _, herr := hs.HandleChunk(buf[:n]); herr != nil {
				s.failHandshake(conn, herr)
				return
			}
			s.setState(hs.State())
		}
		if err != nil && !hs.State().Terminal() {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: proxy closed connection during handshake", io.ErrUnexpectedEOF)
			}
			hs.Fail(err)
			s.failHandshake(conn, err)
			return
		}
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.bound = hs.Bound()
	s.readable = true
	s.writable = !s.ended
	s.mu.Unlock()

	s.emit(func() {
		if s.h.OnConnect != nil {
			s.h.OnConnect(hs.Bound())
		}
	})
	if rest := hs.Leftover(); len(rest) > 0 {
		s.emitData(rest)
	}

	s.relay(conn, buf)
}

func (s *Socket) relay(conn net.Conn, buf []byte) {
	for {
		n, err := s.read(buf)
		if n > 0 {
			s.emitData(buf[:n])
		}
		if err == nil {
			continue
		}

		s.mu.Lock()
		s.readable = false
		closedByEnd := s.closedByEnd
		s.mu.Unlock()

		if closedByEnd {
			s.finish(conn, false)
			return
		}

		if errors.Is(err, io.EOF) {
			s.emit(func() {
				if s.h.OnEnd != nil {
					s.h.OnEnd()
				}
			})
			s.finish(conn, false)
			return
		}

		s.emit(func() {
			if s.h.OnError != nil {
				s.h.OnError(err)
			}
		})
		s.finish(conn, true)
		return
	}
}

// finish closes the transport after the relay stops and reports OnClose,
// unless the socket was destroyed.
func (s *Socket) finish(conn net.Conn, hadError bool) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.writable = false
	s.cond.Broadcast()
	s.mu.Unlock()

	s.closeTransport(conn)
	if s.h.OnClose != nil {
		s.h.OnClose(hadError)
	}
}

// failHandshake closes the transport, then reports err once.
func (s *Socket) failHandshake(conn net.Conn, err error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.state = StateFailed
	s.cond.Broadcast()
	s.mu.Unlock()

	if conn != nil {
		s.closeTransport(conn)
	}
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
}

func (s *Socket) emit(fn func()) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if !destroyed {
		fn()
	}
}

func (s *Socket) emitData(b []byte) {
	s.mu.Lock()
	enc := s.encoding
	s.mu.Unlock()

	out, _ := encodePayload(enc, append([]byte(nil), b...))
	s.emit(func() {
		if s.h.OnData != nil {
			s.h.OnData(out)
		}
	})
}

func (s *Socket) setState(st State) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = st
	}
	s.mu.Unlock()
}

// read waits while the socket is paused, then reads once from the transport.
// A read already in progress when Pause is called holds its result until
// Resume.
func (s *Socket) read(buf []byte) (int, error) {
	s.mu.Lock()
	s.waitResumedLocked()
	if s.destroyed {
		s.mu.Unlock()
		return 0, net.ErrClosed
	}
	conn, timeout := s.conn, s.timeout
	s.mu.Unlock()

	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Read(buf)

	s.mu.Lock()
	s.waitResumedLocked()
	s.mu.Unlock()
	return n, err
}

func (s *Socket) waitResumedLocked() {
	for s.paused && !s.destroyed {
		s.cond.Wait()
	}
}

func (s *Socket) writeTransport(p []byte) (int, error) {
	s.mu.Lock()
	conn, timeout, destroyed := s.conn, s.timeout, s.destroyed
	s.mu.Unlock()

	if destroyed {
		return 0, net.ErrClosed
	}
	if conn == nil {
		return 0, errNotConnected
	}
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return conn.Write(p)
}

func (s *Socket) closeTransport(conn net.Conn) {
	s.closeOnce.Do(func() {
		_ = conn.Close()
	})
}

// Write writes p to the transport. Before the tunnel is established the
// bytes go to the proxy, interleaved with the handshake.
func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return 0, net.ErrClosed
	}
	return s.writeTransport(p)
}

// End writes data, if any, and then shuts down the write side of the
// transport. Transports without half-close are closed outright, and the
// socket then finishes with OnClose(false) instead of reporting the closed
// transport as an error.
func (s *Socket) End(data []byte) error {
	if len(data) > 0 {
		if _, err := s.Write(data); err != nil {
			return err
		}
	}

	s.mu.Lock()
	conn, destroyed := s.conn, s.destroyed
	s.ended = true
	s.writable = false
	s.mu.Unlock()

	if destroyed {
		return nil
	}
	if conn == nil {
		return errNotConnected
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}

	s.mu.Lock()
	s.closedByEnd = true
	s.mu.Unlock()
	s.closeTransport(conn)
	return nil
}

// Destroy closes the transport and silences the socket. It is safe to call
// more than once and from any goroutine; see Socket for which events it
// suppresses.
func (s *Socket) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.readable = false
	s.writable = false
	if !s.state.Terminal() {
		s.state = StateFailed
	}
	conn, cancel := s.conn, s.cancel
	s.cond.Broadcast()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		s.closeTransport(conn)
	}
}

// DestroySoon ends the write side and closes the socket once the peer has
// finished sending.
func (s *Socket) DestroySoon() {
	s.mu.Lock()
	readable := s.readable
	s.mu.Unlock()

	if !readable {
		s.Destroy()
		return
	}
	_ = s.End(nil)
}

// Pause stops reading from the transport until Resume.
func (s *Socket) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume restarts reading after Pause.
func (s *Socket) Resume() {
	s.mu.Lock()
	s.paused = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// SetTimeout sets an idle timeout on the transport. A read or write that
// waits longer than d fails with os.ErrDeadlineExceeded, which is reported
// like any other transport error. Zero disables the timeout.
func (s *Socket) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	if s.conn != nil {
		var dl time.Time
		if d > 0 {
			dl = time.Now().Add(d)
		}
		_ = s.conn.SetDeadline(dl)
	}
	s.mu.Unlock()
}

// SetNoDelay toggles Nagle's algorithm on TCP transports.
func (s *Socket) SetNoDelay(noDelay bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noDelay = &noDelay
	if s.conn == nil {
		return nil
	}
	return applyNoDelay(s.conn, noDelay)
}

// SetKeepAlive configures TCP keepalive on the transport. A zero idle keeps
// the system default.
func (s *Socket) SetKeepAlive(enable bool, idle time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAlive = &net.KeepAliveConfig{Enable: enable, Idle: idle}
	if s.conn == nil {
		return nil
	}
	return applyKeepAlive(s.conn, *s.keepAlive)
}

// SetEncoding selects how OnData payloads are presented: "" or "utf8" for
// raw bytes, "hex" or "base64" for text encodings of them.
func (s *Socket) SetEncoding(enc string) error {
	if _, err := encodePayload(enc, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.encoding = enc
	s.mu.Unlock()
	return nil
}

// Address returns the transport's local address, or nil before the proxy
// has been dialed.
func (s *Socket) Address() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// State returns the handshake state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bound returns the address the proxy reported after connecting.
func (s *Socket) Bound() BoundAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Readable reports whether the tunnel is established and still receiving.
func (s *Socket) Readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable
}

// Writable reports whether the tunnel is established and still sending.
func (s *Socket) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

func (s *Socket) applyOptionsLocked() {
	if s.noDelay != nil {
		_ = applyNoDelay(s.conn, *s.noDelay)
	}
	if s.keepAlive != nil {
		_ = applyKeepAlive(s.conn, *s.keepAlive)
	}
}

func applyNoDelay(conn net.Conn, noDelay bool) error {
	if c, ok := conn.(interface{ SetNoDelay(bool) error }); ok {
		return c.SetNoDelay(noDelay)
	}
	return nil
}

func applyKeepAlive(conn net.Conn, ka net.KeepAliveConfig) error {
	if c, ok := conn.(interface {
		SetKeepAliveConfig(net.KeepAliveConfig) error
	}); ok {
		return c.SetKeepAliveConfig(ka)
	}
	return nil
}

func encodePayload(enc string, b []byte) ([]byte, error) {
	switch enc {
	case "", "utf8", "utf-8", "binary":
		return b, nil
	case "hex":
		return []byte(hex.EncodeToString(b)), nil
	case "base64":
		return []byte(base64.StdEncoding.EncodeToString(b)), nil
	default:
		return nil, fmt.Errorf("socks5: unsupported encoding %q", enc)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
