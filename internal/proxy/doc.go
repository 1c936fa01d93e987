// Package proxy implements the sockstun listeners and the shared relay
// plumbing used by every mode.
//
// It contains the local port forwarder, keepalive listeners, and
// bidirectional copy between a client connection and a tunnel.
package proxy
