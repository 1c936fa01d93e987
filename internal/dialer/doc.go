// Package dialer provides outbound dialing implementations used by sockstun.
//
// Dialers implement a small interface (DialContext) and are used by the
// listeners and the CLI to establish outbound connections either directly or
// through a SOCKS5 proxy.
package dialer
