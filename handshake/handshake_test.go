package handshake

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/protoerr"
	"github.com/vchanagent/vchanagent/transport"
	"github.com/vchanagent/vchanagent/wire"
)

func pairedChannels(t *testing.T) (server, client *channel.Channel) {
	t.Helper()
	mem := transport.NewMem()

	var wg sync.WaitGroup
	wg.Add(2)

	var sConn, cConn transport.Conn
	go func() {
		defer wg.Done()
		c, err := mem.Server(context.Background(), 0, 1)
		if err != nil {
			t.Errorf("Server: %v", err)
			return
		}
		sConn = c
	}()
	go func() {
		defer wg.Done()
		c, err := mem.Client(context.Background(), 0, 1)
		if err != nil {
			t.Errorf("Client: %v", err)
			return
		}
		cConn = c
	}()
	wg.Wait()

	return channel.New(sConn, nil), channel.New(cConn, nil)
}

func TestHandshakeSucceeds(t *testing.T) {
	server, client := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	var serverVer, clientVer uint32
	var serverErr, clientErr error

	go func() {
		defer wg.Done()
		serverVer, serverErr = Server(context.Background(), server)
	}()
	go func() {
		defer wg.Done()
		clientVer, clientErr = Client(context.Background(), client)
	}()
	wg.Wait()

	if serverErr != nil {
		t.Fatalf("Server: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("Client: %v", clientErr)
	}
	if serverVer != wire.ProtocolVersion || clientVer != wire.ProtocolVersion {
		t.Fatalf("got server=%d client=%d, want both %d", serverVer, clientVer, wire.ProtocolVersion)
	}
}

func TestHandshakeVersionMismatchIsFatal(t *testing.T) {
	server, client := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	var serverErr, clientErr error

	go func() {
		defer wg.Done()
		// Simulate a peer speaking a different protocol version by
		// sending a mismatched hello directly instead of going through
		// Client.
		payload := wire.PackPeerInfo(wire.PeerInfo{Version: wire.ProtocolVersion + 1})
		if err := client.Send(context.Background(), wire.Hello, payload); err != nil {
			t.Errorf("Send: %v", err)
			return
		}
		if _, err := client.Recv(context.Background()); err != nil {
			clientErr = err
		}
	}()
	go func() {
		defer wg.Done()
		_, serverErr = Server(context.Background(), server)
	}()
	wg.Wait()
	_ = clientErr

	if serverErr == nil {
		t.Fatal("expected Server to fail on version mismatch, got nil")
	}
	if !errors.Is(serverErr, protoerr.ErrVersionMismatch) {
		t.Fatalf("Server error = %v, want wrapping ErrVersionMismatch", serverErr)
	}
}

func TestHandshakeRejectsWrongFrameType(t *testing.T) {
	server, client := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	var serverErr error

	go func() {
		defer wg.Done()
		_, serverErr = Server(context.Background(), server)
	}()
	go func() {
		defer wg.Done()
		if _, err := client.Recv(context.Background()); err != nil {
			return
		}
		_ = client.Send(context.Background(), wire.DataStdout, []byte("not a hello"))
	}()
	wg.Wait()

	if serverErr == nil {
		t.Fatal("expected Server to reject a non-hello frame, got nil")
	}
	if !errors.Is(serverErr, protoerr.ErrUnexpectedFrame) {
		t.Fatalf("Server error = %v, want wrapping ErrUnexpectedFrame", serverErr)
	}
}
