// Package handshake implements the fixed-order hello exchange: the
// server side (management channel) sends first; the client side (a
// per-session channel) receives first. This asymmetry is mandated by
// the protocol and must not be swapped.
package handshake

import (
	"context"
	"io"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/protoerr"
	"github.com/vchanagent/vchanagent/wire"
)

// Server performs the server-side handshake on ch: send our hello,
// then receive and validate the peer's. Returns the peer's negotiated
// version on success.
func Server(ctx context.Context, ch *channel.Channel) (uint32, error) {
	if err := sendHello(ctx, ch); err != nil {
		return 0, err
	}
	return recvHello(ctx, ch)
}

// Client performs the client-side handshake on ch: receive the peer's
// hello first, then send ours.
func Client(ctx context.Context, ch *channel.Channel) (uint32, error) {
	version, err := recvHello(ctx, ch)
	if err != nil {
		return 0, err
	}
	if err := sendHello(ctx, ch); err != nil {
		return 0, err
	}
	return version, nil
}

func sendHello(ctx context.Context, ch *channel.Channel) error {
	payload := wire.PackPeerInfo(wire.PeerInfo{Version: wire.ProtocolVersion})
	return ch.Send(ctx, wire.Hello, payload)
}

func recvHello(ctx context.Context, ch *channel.Channel) (uint32, error) {
	frame, err := ch.Recv(ctx)
	if err != nil {
		if err == io.EOF {
			return 0, protoerr.NewProtocolError("eof before handshake completed", io.EOF)
		}
		return 0, err
	}
	if frame.Type != wire.Hello {
		return 0, protoerr.NewProtocolError("expected hello, got "+frame.Type.String(), protoerr.ErrUnexpectedFrame)
	}

	peer, err := wire.UnpackPeerInfo(frame.Payload)
	if err != nil {
		return 0, protoerr.NewProtocolError("decode hello payload", err)
	}
	if peer.Version != wire.ProtocolVersion {
		return 0, protoerr.NewProtocolError("peer version mismatch", protoerr.ErrVersionMismatch)
	}

	return peer.Version, nil
}
