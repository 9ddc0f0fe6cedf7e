// Package channel implements the framed channel: one owner, one
// transport.Conn, typed Recv/Send of whole frames with reads and
// writes serialized independently so concurrent callers never observe
// a partial frame or a torn carry-over buffer.
package channel

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vchanagent/vchanagent/constant"
	"github.com/vchanagent/vchanagent/internal/log"
	"github.com/vchanagent/vchanagent/internal/metrics"
	"github.com/vchanagent/vchanagent/protoerr"
	"github.com/vchanagent/vchanagent/transport"
	"github.com/vchanagent/vchanagent/wire"
)

// Channel owns one transport.Conn and frames reads/writes over it.
type Channel struct {
	conn transport.Conn
	log  *log.Logger
	m    *metrics.Metrics

	readMu sync.Mutex
	carry  []byte // bytes pulled from the transport but not yet consumed by a frame

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// New wraps conn in a framed Channel. logger may be nil.
func New(conn transport.Conn, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Nop()
	}
	return &Channel{conn: conn, log: logger}
}

// SetMetrics installs a metrics sink that every subsequent Send/Recv
// reports its payload size to. m may be nil to disable reporting;
// this is separate from New so the channel's own tests can construct
// one without pulling in a registry.
func (c *Channel) SetMetrics(m *metrics.Metrics) {
	c.m = m
}

// Recv blocks until a full frame is available, or returns io.EOF.
// Concurrent callers are serialized by readMu: each observes either a
// complete frame or io.EOF, never a partial one.
func (c *Channel) Recv(ctx context.Context) (wire.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return wire.Frame{}, protoerr.ErrClosed
	}

	headerBuf, err := c.readExactly(ctx, wire.HeaderSize)
	if err != nil {
		return wire.Frame{}, err
	}

	header, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		return wire.Frame{}, protoerr.NewProtocolError("decode frame header", err)
	}

	if header.Length > constant.MaxFramePayload {
		return wire.Frame{}, protoerr.NewProtocolError(
			fmt.Sprintf("frame payload too large: %d bytes", header.Length), nil)
	}

	var payload []byte
	if header.Length > 0 {
		payload, err = c.readExactly(ctx, int(header.Length))
		if err != nil {
			return wire.Frame{}, err
		}
	}

	c.log.Debugf("channel: recv frame type=%s length=%d", header.Type, header.Length)
	if c.m != nil {
		c.m.FramePayloadSize.Observe(float64(header.Length))
	}
	return wire.Frame{Type: header.Type, Payload: payload}, nil
}

// readExactly returns exactly n bytes, preferring the carry-over buffer
// and pulling additional transport reads as needed. Must be called
// with readMu held; it is the only function that mutates c.carry.
func (c *Channel) readExactly(ctx context.Context, n int) ([]byte, error) {
	for len(c.carry) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buf := getReadBuf()
		read, err := c.conn.Read(buf)
		if read > 0 {
			c.carry = append(c.carry, buf[:read]...)
		}
		putReadBuf(buf)
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, protoerr.NewTransportError("read", err)
		}
		if read == 0 {
			// A Conn that returns (0, nil) forever would spin; treat it
			// as EOF rather than busy-loop.
			return nil, io.EOF
		}
	}

	out := c.carry[:n]
	c.carry = c.carry[n:]
	return out, nil
}

// Send writes header and payload as a single gather-write so a reader
// on the other side never observes it interleaved with another Send.
func (c *Channel) Send(ctx context.Context, t wire.Type, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return protoerr.ErrClosed
	}

	header := wire.EncodeHeader(wire.Header{Type: t, Length: uint32(len(payload))})
	if err := c.conn.Writev([][]byte{header, payload}); err != nil {
		return protoerr.NewTransportError("write", err)
	}

	c.log.Debugf("channel: send frame type=%s length=%d", t, len(payload))
	if c.m != nil {
		c.m.FramePayloadSize.Observe(float64(len(payload)))
	}
	return nil
}

// Close releases the underlying transport channel. Idempotent.
func (c *Channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
