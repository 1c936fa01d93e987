package socks5

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol reports a malformed version, reserved, length or ATYP field.
	ErrProtocol = errors.New("socks5 protocol error")
	// ErrAuthentication reports that the proxy selected a method other than
	// "no authentication".
	ErrAuthentication = errors.New("socks5 authentication error")
	// ErrAddress reports a target that cannot be encoded.
	ErrAddress = errors.New("socks5 address error")
	// ErrConnect reports a non-zero REP field; see ReplyError.
	ErrConnect = errors.New("socks5 connect error")
	// ErrHandshakeStarted is returned when a handshake is started twice.
	ErrHandshakeStarted = errors.New("socks5 handshake already started")
)

// ReplyError is the error for a CONNECT reply with a non-zero REP field.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5 connect failed: %s", Describe(e.Code))
}

func (e *ReplyError) Is(target error) bool {
	return target == ErrConnect
}
