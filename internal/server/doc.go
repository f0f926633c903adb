// Package server implements the protocol-agnostic server runtime
// primitives: the NetworkServer lifecycle holder, per-connection
// SrvSession state, the process-wide SessionList registry, and the
// acceptor-per-protocol handler model (session, datagram, and channel
// handlers).
//
// None of these types know anything about a specific wire protocol — a
// concrete SessionHandler binds a socket and constructs SrvSessions, but
// the bytes it reads and writes are opaque to this package. The wire
// decoder, DCE/RPC marshalling, and concrete filesystem backends are
// external collaborators.
package server
