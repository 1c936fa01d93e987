// Package socks5 implements the client side of a SOCKS5 (RFC 1928) CONNECT
// negotiation with the "no authentication" method.
//
// The negotiation itself lives in [Handshake], a small state machine that is
// fed inbound chunks and writes requests, so it can be driven either by the
// blocking [ClientDial] or by the event-driven [Socket]. Address encoding and
// reply code descriptions are exposed separately for reuse by tests and
// servers.
//
// Authentication methods other than "no authentication", BIND and UDP
// ASSOCIATE are not supported.
package socks5
