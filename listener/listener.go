// Package listener implements the management-channel loop: accept the
// one long-lived channel from the privileged management domain,
// handshake, and spawn a session per dispatch request without waiting
// for it — sessions report back by sending connection_terminated on
// the same channel.
package listener

import (
	"context"
	"io"
	"sync"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/flow"
	"github.com/vchanagent/vchanagent/handshake"
	"github.com/vchanagent/vchanagent/internal/log"
	"github.com/vchanagent/vchanagent/internal/metrics"
	"github.com/vchanagent/vchanagent/session"
	"github.com/vchanagent/vchanagent/transport"
	"github.com/vchanagent/vchanagent/wire"
)

// Listener owns the management channel and dispatches exec requests.
type Listener struct {
	transport transport.Transport
	log       *log.Logger
	metrics   *metrics.Metrics
	handler   session.Handler

	domid uint32
	port  uint32
}

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithDomid restricts the management channel to a caller from domid.
// The zero value (the default) accepts any caller.
func WithDomid(domid uint32) Option {
	return func(l *Listener) { l.domid = domid }
}

// WithLogger installs a logger used by the listener and every session
// it spawns.
func WithLogger(logger *log.Logger) Option {
	return func(l *Listener) { l.log = logger }
}

// WithMetrics installs a metrics sink used by every spawned session.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// New constructs a Listener that waits on port for the management
// domain and invokes handler for every dispatched exec request.
func New(tp transport.Transport, port uint32, handler session.Handler, opts ...Option) *Listener {
	l := &Listener{
		transport: tp,
		log:       log.Nop(),
		handler:   handler,
		port:      port,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run accepts the management channel, handshakes, and loops until the
// channel reports io.EOF. ctx is checked before each transport read, so
// cancellation ends the loop only once the current read returns; a read
// blocked on an idle management channel is not interrupted. It returns
// nil on a clean shutdown.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := l.transport.Server(ctx, l.domid, l.port)
	if err != nil {
		l.log.Errorf("listener: failed to accept management channel on port=%d: %v", l.port, err)
		return err
	}

	mgmt := channel.New(conn, l.log)
	mgmt.SetMetrics(l.metrics)
	defer mgmt.Close()

	version, err := handshake.Server(ctx, mgmt)
	if err != nil {
		l.log.Errorf("listener: management handshake failed: %v", err)
		return err
	}
	l.log.Infof("listener: management channel connected, negotiated version=%d", version)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		frame, err := mgmt.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				l.log.Infof("listener: management channel closed, shutting down")
				return nil
			}
			l.log.Errorf("listener: recv error on management channel: %v", err)
			return err
		}

		switch frame.Type {
		case wire.JustExec, wire.ExecCmdline:
			params, err := wire.UnpackExecParams(frame.Payload)
			if err != nil {
				l.log.Errorf("listener: malformed exec_params, dropping request: %v", err)
				continue
			}

			mode := flow.ExecCmdline
			if frame.Type == wire.JustExec {
				mode = flow.JustExec
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				l.runSession(ctx, mode, params, mgmt)
			}()

		default:
			l.log.Infof("listener: ignoring frame type=%s on management channel", frame.Type)
		}
	}
}

// runSession runs one dispatched request to completion and always
// reports back via connection_terminated, even if the session never
// managed to open its own channel to the caller (invariant 5).
func (l *Listener) runSession(ctx context.Context, mode flow.Mode, params wire.ExecParams, mgmt *channel.Channel) {
	sess := session.New(l.transport, l.log, l.metrics)
	_ = sess.Run(ctx, mode, params.ConnectDomain, params.ConnectPort, params.Cmdline, l.handler)

	if err := mgmt.Send(ctx, wire.ConnectionTerminated, params.FixedPrefix()); err != nil {
		l.log.Errorf("listener: failed to send connection_terminated for domid=%d port=%d: %v",
			params.ConnectDomain, params.ConnectPort, err)
	}
}
