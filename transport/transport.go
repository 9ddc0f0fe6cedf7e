// Package transport defines the external duplex-channel abstraction
// this agent is built on, and a real AF_VSOCK binding for it. The
// abstraction exists so the framed channel and everything built on
// top never import github.com/mdlayher/vsock directly; tests
// substitute an in-memory double instead.
package transport

import "context"

// Conn is one open duplex channel between two domains.
type Conn interface {
	// Read pulls the next available chunk of bytes. Chunk boundaries
	// carry no meaning above this layer; callers frame their own data.
	Read(p []byte) (int, error)

	// Writev gather-writes all buffers as one atomic unit: a peer
	// reading concurrently with another writer on this side never
	// observes the buffers interleaved with an unrelated write.
	Writev(bufs [][]byte) error

	// Close releases the channel. Idempotent.
	Close() error
}

// Transport opens and accepts Conns addressed by (domid, port).
type Transport interface {
	// Client connects to the peer listening on (domid, port).
	Client(ctx context.Context, domid, port uint32) (Conn, error)

	// Server waits for a client from domid on port. domid == 0 accepts
	// a connection from any peer.
	Server(ctx context.Context, domid, port uint32) (Conn, error)
}
