package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Mem is an in-process Transport double used by tests: Client and
// Server rendezvous over net.Pipe instead of AF_VSOCK, keyed by port
// the way the real vsock ports would be. It has no notion of domid
// beyond bookkeeping, since two in-process ends are always "the same
// domain" — tests only care about the protocol's behavior.
type Mem struct {
	mu        sync.Mutex
	listeners map[uint32]chan net.Conn
}

// NewMem constructs an empty in-process transport.
func NewMem() *Mem {
	return &Mem{listeners: make(map[uint32]chan net.Conn)}
}

func (m *Mem) listenerChan(port uint32) chan net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.listeners[port]
	if !ok {
		ch = make(chan net.Conn, 1)
		m.listeners[port] = ch
	}
	return ch
}

// Server waits for a Client call on the same port. domid is ignored.
func (m *Mem) Server(ctx context.Context, domid, port uint32) (Conn, error) {
	ch := m.listenerChan(port)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-ch:
		return &memConn{Conn: c}, nil
	}
}

// Client queues a connection for the next Server call on port and
// returns as soon as it is queued, without waiting for a Server to take
// it. domid is ignored.
func (m *Mem) Client(ctx context.Context, domid, port uint32) (Conn, error) {
	ch := m.listenerChan(port)
	client, server := net.Pipe()

	select {
	case ch <- server:
		return &memConn{Conn: client}, nil
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	default:
		// An earlier Client's connection is still queued on port; block
		// until a Server takes it and the slot frees up, or ctx ends.
		select {
		case ch <- server:
			return &memConn{Conn: client}, nil
		case <-ctx.Done():
			client.Close()
			server.Close()
			return nil, fmt.Errorf("transport: mem client port=%d: %w", port, ctx.Err())
		}
	}
}

type memConn struct {
	net.Conn
}

func (c *memConn) Writev(bufs [][]byte) error {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	joined := make([]byte, 0, total)
	for _, b := range bufs {
		joined = append(joined, b...)
	}
	_, err := c.Conn.Write(joined)
	return err
}
