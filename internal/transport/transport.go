// Package transport implements the pluggable session transport described
// in spec.md section 9 ("in-place polymorphism over transport variants"):
// a Socket carries node-to-node control frames (internal/wire) plus raw
// data-plane payloads, and a Transport both dials remote nodes and
// listens for inbound connections.
package transport

import (
	"context"
	"net"
)

// Socket is a single bidirectional connection to one peer node. Sessions
// (internal/session) hold a Socket; the node event loop is the only
// goroutine that calls Send, but Recv is read by a per-socket pump
// goroutine the node starts for each Socket.
type Socket interface {
	// Send writes one already-encoded frame. Safe to call from the event
	// loop goroutine only (spec.md section 4.5, single-threaded core).
	Send(frame []byte) error

	// Recv blocks for the next complete frame. The node event loop runs
	// one pump goroutine per Socket that calls Recv in a loop and feeds
	// decoded results back onto its own inbound channel (spec.md section
	// 4.6, "all cross-goroutine communication funnels through channels").
	Recv() ([]byte, error)

	// RemoteAddr identifies the peer for session table lookups.
	RemoteAddr() string

	Close() error
}

// Listener accepts inbound Sockets. Implementations run their own accept
// loop internally and deliver completed handshakes to the channel
// returned by Accept.
type Listener interface {
	// Accept returns a channel of newly-accepted sockets. Closed when the
	// listener is closed.
	Accept() <-chan Socket

	// Addr is the bound local address, e.g. for advertising our port in
	// CONNECT_REP/NODE_INFO frames.
	Addr() net.Addr

	Close() error
}

// Transport is implemented once per variant named by a wire.ImplType
// value (spec.md section 9). The default is the TCP/gobwas-ws transport
// (wire.ImplTypeTCP); a NATS-relayed variant (wire.ImplTypeNATS) is
// wired for deployments that prefer a message broker over direct
// node-to-node sockets.
type Transport interface {
	// Listen binds a listener at addr (host:port, or host:0 for an
	// ephemeral/scanned port depending on the implementation).
	Listen(ctx context.Context, addr string) (Listener, error)

	// Dial opens a Socket to a remote node at addr.
	Dial(ctx context.Context, addr string) (Socket, error)

	// ImplType identifies this transport's wire.ImplType* constant.
	ImplType() uint16
}
