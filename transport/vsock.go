package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// VSock binds Transport to AF_VSOCK: the context id plays the role of
// "domid" and the vsock port is used as-is. This is the production
// transport for two domains sharing a hypervisor's inter-domain
// shared-memory backend; vsock is the closest real Linux primitive to
// the Xen-style vchan this protocol was designed around.
type VSock struct{}

// vsockCIDAny is VMADDR_CID_ANY, used to listen on all context IDs. The
// mdlayher/vsock package does not export this constant.
const vsockCIDAny = 0xffffffff

// Client connects to the peer context id/port pair.
func (VSock) Client(ctx context.Context, domid, port uint32) (Conn, error) {
	conn, err := vsock.Dial(domid, port, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: vsock dial cid=%d port=%d: %w", domid, port, err)
	}
	return &vsockConn{Conn: conn}, nil
}

// Server listens on port and accepts exactly one connection. If domid
// is non-zero, a peer whose context id doesn't match is rejected and
// the listener keeps waiting.
func (VSock) Server(ctx context.Context, domid, port uint32) (Conn, error) {
	ln, err := vsock.ListenContextID(vsockCIDAny, port, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: vsock listen port=%d: %w", port, err)
	}
	defer ln.Close()

	type result struct {
		c   net.Conn
		err error
	}
	accepted := make(chan result, 1)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				accepted <- result{err: err}
				return
			}
			if domid != 0 {
				if remote, ok := c.RemoteAddr().(*vsock.Addr); ok && remote.ContextID != domid {
					c.Close()
					continue
				}
			}
			accepted <- result{c: c}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-accepted:
		if r.err != nil {
			return nil, fmt.Errorf("transport: vsock accept port=%d: %w", port, r.err)
		}
		return &vsockConn{Conn: r.c}, nil
	}
}

// vsockConn adapts a net.Conn to Conn.
type vsockConn struct {
	net.Conn
}

// Writev concatenates bufs into a single buffer and issues one Write,
// so a concurrent reader on the peer never observes it split across
// two unrelated sends sharing the wire.
func (c *vsockConn) Writev(bufs [][]byte) error {
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
