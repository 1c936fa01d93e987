package socks5

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// State is the progress of a Handshake.
type State int

const (
	StateIdle State = iota
	StateAwaitingAuthReply
	StateAwaitingConnectReply
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAuthReply:
		return "awaiting-auth-reply"
	case StateAwaitingConnectReply:
		return "awaiting-connect-reply"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed
}

const (
	socksVersion = 0x05
	authReplyLen = 2
	// VER REP RSV ATYP
	replyHeaderLen = 4
)

// Handshake drives the client side of a SOCKS5 no-auth CONNECT negotiation.
//
// It does no reading of its own: the owner feeds it each inbound chunk with
// HandleChunk and it writes requests to w. A Handshake is single use and is
// not safe for concurrent use.
type Handshake struct {
	// Reassemble makes the handshake buffer partial replies until a complete
	// one is available. Without it every reply must arrive as exactly one
	// chunk.
	Reassemble bool

	w        io.Writer
	target   Target
	request  *txsocks5.Request
	state    State
	buf      []byte
	bound    BoundAddress
	leftover []byte
	err      error
}

// NewHandshake returns an idle handshake that will ask the proxy to connect
// to t, writing to w.
func NewHandshake(w io.Writer, t Target) *Handshake {
	return &Handshake{w: w, target: t}
}

// State returns the current state.
func (h *Handshake) State() State { return h.state }

// Bound returns the address reported by the proxy once established.
func (h *Handshake) Bound() BoundAddress { return h.bound }

// Err returns the error that failed the handshake, if any.
func (h *Handshake) Err() error { return h.err }

// Leftover returns bytes that followed the CONNECT reply in the final chunk.
// They belong to the tunneled stream.
func (h *Handshake) Leftover() []byte { return h.leftover }

// Start validates the target and writes the greeting.
//
// The target is encoded before anything is written, so an unencodable target
// fails without touching the transport.
func (h *Handshake) Start() error {
	if h.state != StateIdle {
		return ErrHandshakeStarted
	}

	addr, err := EncodeAddress(h.target)
	if err != nil {
		return h.fail(err)
	}
	atyp, host, port := addr[0], addr[1:len(addr)-portLen], addr[len(addr)-portLen:]
	if AddrType(atyp) == AddrDomain {
		// NewRequest adds the length prefix itself.
		host = host[1:]
	}
	h.request = txsocks5.NewRequest(txsocks5.CmdConnect, atyp, host, port)

	h.state = StateAwaitingAuthReply
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(h.w); err != nil {
		return h.fail(fmt.Errorf("write greeting: %w", err))
	}
	return nil
}

// HandleChunk consumes one inbound chunk. It returns true once the proxy has
// accepted the CONNECT request. A non-nil error means the handshake failed;
// the caller should close the transport. Chunks are ignored once the
// handshake is established or failed.
func (h *Handshake) HandleChunk(b []byte) (bool, error) {
	switch h.state {
	case StateAwaitingAuthReply:
		return false, h.handleAuthReply(b)
	case StateAwaitingConnectReply:
		return h.handleConnectReply(b)
	default:
		return false, nil
	}
}

// Fail moves a handshake that is still in progress to StateFailed with err.
func (h *Handshake) Fail(err error) {
	if !h.state.Terminal() {
		h.fail(err)
	}
}

func (h *Handshake) fail(err error) error {
	h.state = StateFailed
	h.err = err
	h.buf = nil
	return err
}

func (h *Handshake) handleAuthReply(b []byte) error {
	if h.Reassemble {
		h.buf = append(h.buf, b...)
		if len(h.buf) < authReplyLen {
			return nil
		}
		b, h.buf = h.buf, nil
	}

	if len(b) != authReplyLen {
		return h.fail(fmt.Errorf("%w: unexpected byte count %d in auth reply", ErrProtocol, len(b)))
	}
	if b[0] != socksVersion {
		return h.fail(fmt.Errorf("%w: unexpected version %d in auth reply", ErrProtocol, b[0]))
	}
	if b[1] != txsocks5.MethodNone {
		return h.fail(fmt.Errorf("%w: unsupported method %d", ErrAuthentication, b[1]))
	}

	h.state = StateAwaitingConnectReply
	if _, err := h.request.WriteTo(h.w); err != nil {
		return h.fail(fmt.Errorf("write connect request: %w", err))
	}
	return nil
}

func (h *Handshake) handleConnectReply(b []byte) (bool, error) {
	if h.Reassemble {
		h.buf = append(h.buf, b...)
		b = h.buf
	}

	if err := checkReplyHeader(b); err != nil {
		return false, h.fail(err)
	}

	complete, err := replyComplete(b)
	if err != nil {
		return false, h.fail(err)
	}
	if !complete {
		if h.Reassemble {
			return false, nil
		}
		return false, h.fail(fmt.Errorf("%w: short connect reply of %d bytes", ErrProtocol, len(b)))
	}

	bound, n, err := DecodeBoundAddress(AddrType(b[3]), b[replyHeaderLen:])
	if err != nil {
		return false, h.fail(err)
	}

	h.bound = bound
	if rest := b[replyHeaderLen+n:]; len(rest) > 0 {
		h.leftover = append([]byte(nil), rest...)
	}
	h.buf = nil
	h.state = StateEstablished
	return true, nil
}

// checkReplyHeader validates whichever of VER, RSV and REP are present in b,
// in that order.
func checkReplyHeader(b []byte) error {
	if len(b) > 0 && b[0] != socksVersion {
		return fmt.Errorf("%w: unexpected version %d in connect reply", ErrProtocol, b[0])
	}
	if len(b) > 2 {
		if b[2] != 0x00 {
			return fmt.Errorf("%w: reserved byte must be 0x00, got %d", ErrProtocol, b[2])
		}
		if b[1] != txsocks5.RepSuccess {
			return &ReplyError{Code: b[1]}
		}
	}
	return nil
}

func replyComplete(b []byte) (bool, error) {
	if len(b) < replyHeaderLen {
		return false, nil
	}
	n, err := addressLen(AddrType(b[3]), b[replyHeaderLen:])
	if err != nil || n < 0 {
		return false, err
	}
	return len(b) >= replyHeaderLen+n+portLen, nil
}
