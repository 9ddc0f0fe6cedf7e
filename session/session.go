// Package session implements the per-request lifecycle: open a
// channel to the caller, handshake, construct a flow, run the
// embedder's handler, and guarantee the flow is closed on every exit
// path.
package session

import (
	"context"
	"time"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/flow"
	"github.com/vchanagent/vchanagent/handshake"
	"github.com/vchanagent/vchanagent/internal/log"
	"github.com/vchanagent/vchanagent/internal/metrics"
	"github.com/vchanagent/vchanagent/protoerr"
	"github.com/vchanagent/vchanagent/transport"
	"github.com/vchanagent/vchanagent/wire"
)

// Handler executes one dispatched command against fl and returns its
// exit code. The handler may call fl.Read/fl.ReadLine/fl.Write/
// fl.Ewrite any number of times; it must not close fl itself.
type Handler func(ctx context.Context, user, cmd string, fl *flow.Flow) int32

// Session runs one dispatched exec request to completion.
type Session struct {
	transport transport.Transport
	log       *log.Logger
	metrics   *metrics.Metrics
}

// New constructs a Session. logger and m may both be nil.
func New(tp transport.Transport, logger *log.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{transport: tp, log: logger, metrics: m}
}

// Run opens a client channel to (domid, port), handshakes, parses
// cmdline, and invokes handler. It always returns an exit code -
// 255 for every session-fatal failure that happens before or during
// setup - and it always closes the flow/channel it managed to open
// before returning.
func (s *Session) Run(ctx context.Context, mode flow.Mode, domid, port uint32, cmdline []byte, handler Handler) int32 {
	start := time.Now()
	modeLabel := "exec_cmdline"
	if mode == flow.JustExec {
		modeLabel = "just_exec"
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.WithLabelValues(modeLabel).Inc()
		s.metrics.SessionsInFlight.Inc()
	}

	outcome := metrics.OutcomeOK
	defer func() {
		if s.metrics != nil {
			s.metrics.SessionsInFlight.Dec()
			s.metrics.SessionsEnded.WithLabelValues(string(outcome)).Inc()
			s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	conn, err := s.transport.Client(ctx, domid, port)
	if err != nil {
		s.log.Errorf("session: failed to open channel to domid=%d port=%d: %v", domid, port, err)
		outcome = metrics.OutcomeTransportError
		return protoerr.FatalExitCode
	}

	ch := channel.New(conn, s.log)
	ch.SetMetrics(s.metrics)
	peerVersion, err := handshake.Client(ctx, ch)
	if err != nil {
		s.log.Errorf("session: handshake failed with domid=%d port=%d: %v", domid, port, err)
		_ = ch.Close()
		outcome = metrics.OutcomeProtocolError
		return protoerr.FatalExitCode
	}
	s.log.Infof("session: connected to domid=%d port=%d peer_version=%d", domid, port, peerVersion)

	fl := flow.New(ch, mode, s.log)

	exitCode := protoerr.FatalExitCode
	defer func() {
		if closeErr := fl.Close(ctx, exitCode); closeErr != nil {
			s.log.Warnf("session: flow close reported error: %v", closeErr)
		}
		s.log.Infof("session: domid=%d port=%d ended exit_code=%d", domid, port, exitCode)
	}()

	user, cmd, err := wire.ParseCmdline(cmdline)
	if err != nil {
		s.log.Errorf("session: malformed cmdline from domid=%d port=%d: %v", domid, port, err)
		outcome = metrics.OutcomeProtocolError
		exitCode = protoerr.FatalExitCode
		return exitCode
	}

	exitCode = s.invokeHandler(ctx, user, cmd, fl, handler)
	if exitCode != 0 {
		outcome = metrics.OutcomeHandlerError
	}
	return exitCode
}

// invokeHandler calls handler, recovering a panic into exit code 255
// the same way an uncaught handler exception is treated.
func (s *Session) invokeHandler(ctx context.Context, user, cmd string, fl *flow.Flow, handler Handler) int32 {
	var exitCode int32 = protoerr.FatalExitCode

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Warnf("session: handler panicked for user=%s cmd=%q: %v", user, cmd, r)
				exitCode = protoerr.FatalExitCode
			}
		}()
		exitCode = handler(ctx, user, cmd, fl)
	}()

	return exitCode
}

// TerminatedPayload builds the connection_terminated payload for this
// session's original exec_params prefix.
func TerminatedPayload(domid, port uint32) []byte {
	return wire.ExecParams{ConnectDomain: domid, ConnectPort: port}.FixedPrefix()
}
