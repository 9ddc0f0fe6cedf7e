package listener

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/flow"
	"github.com/vchanagent/vchanagent/handshake"
	"github.com/vchanagent/vchanagent/session"
	"github.com/vchanagent/vchanagent/transport"
	"github.com/vchanagent/vchanagent/wire"
)

const mgmtPort = 512

// dialManagement plays the role of the management domain: it connects
// to the listener's well-known port and performs the client side of
// the handshake (receive peer's hello first, then send ours).
func dialManagement(t *testing.T, mem *transport.Mem) *channel.Channel {
	t.Helper()
	conn, err := mem.Client(context.Background(), 0, mgmtPort)
	if err != nil {
		t.Fatalf("dialManagement Client: %v", err)
	}
	ch := channel.New(conn, nil)
	if _, err := handshake.Client(context.Background(), ch); err != nil {
		t.Fatalf("dialManagement handshake: %v", err)
	}
	return ch
}

func TestRunDispatchesJustExecAndReportsTerminated(t *testing.T) {
	mem := transport.NewMem()

	handler := session.Handler(func(ctx context.Context, user, cmd string, fl *flow.Flow) int32 {
		return 0
	})

	ln := New(mem, mgmtPort, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ln.Run(ctx) }()

	mgmt := dialManagement(t, mem)
	defer mgmt.Close()

	const targetDomid, targetPort = 5, 777

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		remote, err := mem.Server(context.Background(), targetDomid, targetPort)
		if err != nil {
			t.Errorf("target Server: %v", err)
			return
		}
		ch := channel.New(remote, nil)
		defer ch.Close()
		if _, err := handshake.Server(context.Background(), ch); err != nil {
			t.Errorf("target handshake: %v", err)
			return
		}
		// Drain the close sequence the session will send.
		for i := 0; i < 2; i++ {
			if _, err := ch.Recv(context.Background()); err != nil {
				t.Errorf("target Recv %d: %v", i, err)
				return
			}
		}
	}()

	params := wire.ExecParams{ConnectDomain: targetDomid, ConnectPort: targetPort, Cmdline: []byte("alice:true\x00")}
	if err := mgmt.Send(context.Background(), wire.JustExec, wire.PackExecParams(params)); err != nil {
		t.Fatalf("Send just_exec: %v", err)
	}

	frame, err := mgmt.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv connection_terminated: %v", err)
	}
	if frame.Type != wire.ConnectionTerminated {
		t.Fatalf("frame.Type = %s, want connection_terminated", frame.Type)
	}
	if string(frame.Payload) != string(params.FixedPrefix()) {
		t.Fatalf("connection_terminated payload = %x, want %x", frame.Payload, params.FixedPrefix())
	}

	wg.Wait()
	if err := mgmt.Close(); err != nil {
		t.Fatalf("Close mgmt: %v", err)
	}
	select {
	case <-runErr:
	case <-time.After(time.Second):
		t.Fatal("listener.Run did not return after the management channel closed")
	}
}

func TestRunReportsTerminatedEvenWhenTargetChannelFailsImmediately(t *testing.T) {
	mem := transport.NewMem()

	handler := session.Handler(func(ctx context.Context, user, cmd string, fl *flow.Flow) int32 {
		t.Fatal("handler must not run when the session never completes its handshake")
		return 0
	})

	ln := New(mem, mgmtPort, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ln.Run(ctx) }()

	mgmt := dialManagement(t, mem)
	defer mgmt.Close()

	const targetDomid, targetPort = 9, 9999

	// The target accepts the channel but closes it immediately, without
	// completing a handshake - e.g. the remote process exited before the
	// agent could reach it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		remote, err := mem.Server(context.Background(), targetDomid, targetPort)
		if err != nil {
			t.Errorf("target Server: %v", err)
			return
		}
		remote.Close()
	}()

	params := wire.ExecParams{ConnectDomain: targetDomid, ConnectPort: targetPort, Cmdline: []byte("alice:true\x00")}
	if err := mgmt.Send(context.Background(), wire.JustExec, wire.PackExecParams(params)); err != nil {
		t.Fatalf("Send just_exec: %v", err)
	}

	frame, err := mgmt.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv connection_terminated: %v", err)
	}
	if frame.Type != wire.ConnectionTerminated {
		t.Fatalf("frame.Type = %s, want connection_terminated even though the session never completed its handshake", frame.Type)
	}
	if string(frame.Payload) != string(params.FixedPrefix()) {
		t.Fatalf("connection_terminated payload = %x, want %x", frame.Payload, params.FixedPrefix())
	}

	wg.Wait()
}

func TestRunIgnoresUnknownFrameType(t *testing.T) {
	mem := transport.NewMem()

	handler := session.Handler(func(ctx context.Context, user, cmd string, fl *flow.Flow) int32 {
		t.Fatal("handler must not run for a frame type the listener doesn't dispatch")
		return 0
	})

	ln := New(mem, mgmtPort, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ln.Run(ctx) }()

	mgmt := dialManagement(t, mem)

	if err := mgmt.Send(context.Background(), wire.DataStdout, []byte("not a dispatch")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := mgmt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after a clean mgmt channel close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("listener.Run did not shut down after the management channel closed")
	}
}

func TestRunCleanShutdownOnEOF(t *testing.T) {
	mem := transport.NewMem()
	handler := session.Handler(func(ctx context.Context, user, cmd string, fl *flow.Flow) int32 { return 0 })

	ln := New(mem, mgmtPort, handler)
	ctx := context.Background()

	runErr := make(chan error, 1)
	go func() { runErr <- ln.Run(ctx) }()

	mgmt := dialManagement(t, mem)
	if err := mgmt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil && err != io.EOF {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("listener.Run did not return after the management channel hit EOF")
	}
}
