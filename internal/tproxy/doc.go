// Package tproxy implements the transparent proxy listener.
//
// On Linux, it listens with IP_TRANSPARENT and recovers the original
// destination of each redirected TCP connection, via SO_ORIGINAL_DST for
// REDIRECT rules or the socket's local address for TPROXY rules. Every
// connection is then tunneled to that destination through the configured
// dialer.
//
// On other platforms, the listener is stubbed out and returns an error.
package tproxy
