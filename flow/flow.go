// Package flow maps a framed channel into the byte-stream view a
// command handler actually wants: Write/Ewrite for output, Read/
// ReadLine for input, and a Close that always delivers the
// end-of-stream marker and exit code the remote end is waiting on.
package flow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vchanagent/vchanagent/channel"
	"github.com/vchanagent/vchanagent/constant"
	"github.com/vchanagent/vchanagent/internal/log"
	"github.com/vchanagent/vchanagent/protoerr"
	"github.com/vchanagent/vchanagent/wire"
)

// Mode fixes how a Flow behaves for the lifetime of one execution.
type Mode int

const (
	// ExecCmdline streams stdin/stdout/stderr and a final exit code.
	ExecCmdline Mode = iota
	// JustExec dispatches a command with no stdin/stdout streaming;
	// Write/Ewrite are no-ops and Read/ReadLine report end-of-stream
	// immediately. The close-sequence markers are still sent.
	JustExec
)

// Flow is the single-owner, stream-oriented view of one execution.
type Flow struct {
	ch   *channel.Channel
	mode Mode
	log  *log.Logger

	mu        sync.Mutex
	stdinBuf  []byte
	stdinEOF  bool

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Flow around ch for one execution of the given mode.
// logger may be nil.
func New(ch *channel.Channel, mode Mode, logger *log.Logger) *Flow {
	if logger == nil {
		logger = log.Nop()
	}
	return &Flow{ch: ch, mode: mode, log: logger}
}

// Write sends p on the stdout sub-stream. Empty buffers are dropped:
// they are reserved as end-of-stream markers. No-op in JustExec mode.
func (f *Flow) Write(ctx context.Context, p []byte) error {
	return f.send(ctx, wire.DataStdout, p)
}

// Ewrite sends p on the stderr sub-stream. No-op in JustExec mode.
func (f *Flow) Ewrite(ctx context.Context, p []byte) error {
	return f.send(ctx, wire.DataStderr, p)
}

func (f *Flow) send(ctx context.Context, t wire.Type, p []byte) error {
	if f.mode == JustExec || len(p) == 0 {
		return nil
	}
	return f.ch.Send(ctx, t, p)
}

// Writef formats into stdout, appending a trailing newline.
func (f *Flow) Writef(ctx context.Context, format string, args ...interface{}) error {
	return f.Write(ctx, []byte(fmt.Sprintf(format, args...)+"\n"))
}

// Ewritef formats into stderr, appending a trailing newline.
func (f *Flow) Ewritef(ctx context.Context, format string, args ...interface{}) error {
	return f.Ewrite(ctx, []byte(fmt.Sprintf(format, args...)+"\n"))
}

// Read returns the next chunk of stdin bytes, or io.EOF once the peer
// has signaled end-of-stream. It first drains any buffered residue
// left by a prior ReadLine call before pulling a fresh frame.
func (f *Flow) Read(ctx context.Context) ([]byte, error) {
	if f.mode == JustExec {
		return nil, io.EOF
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.stdinBuf) > 0 {
		out := f.stdinBuf
		f.stdinBuf = nil
		return out, nil
	}
	if f.stdinEOF {
		return nil, io.EOF
	}

	payload, err := f.recvStdin(ctx)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		f.stdinEOF = true
		return nil, io.EOF
	}
	return payload, nil
}

// ReadLine returns the bytes up to, and not including, the next '\n'
// in the accumulating stdin buffer, refilling from the channel as
// needed. The newline itself is discarded. If end-of-stream arrives
// with a non-empty partial line still buffered, that residue is
// returned once as a final line before io.EOF (see DESIGN.md's
// resolution of the corresponding open question).
func (f *Flow) ReadLine(ctx context.Context) (string, error) {
	if f.mode == JustExec {
		return "", io.EOF
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if idx := bytes.IndexByte(f.stdinBuf, '\n'); idx >= 0 {
			line := string(f.stdinBuf[:idx])
			f.stdinBuf = f.stdinBuf[idx+1:]
			return line, nil
		}

		if f.stdinEOF {
			if len(f.stdinBuf) > 0 {
				line := string(f.stdinBuf)
				f.stdinBuf = nil
				return line, nil
			}
			return "", io.EOF
		}

		payload, err := f.recvStdin(ctx)
		if err != nil {
			return "", err
		}
		if payload == nil {
			f.stdinEOF = true
			continue
		}
		f.stdinBuf = append(f.stdinBuf, payload...)
	}
}

// recvStdin pulls one frame and validates it's a data_stdin frame,
// returning nil (not an error) for the zero-length end-of-stream
// marker so callers can distinguish it from a transport io.EOF.
// Must be called with f.mu held.
func (f *Flow) recvStdin(ctx context.Context) ([]byte, error) {
	frame, err := f.ch.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if frame.Type != wire.DataStdin {
		return nil, protoerr.NewProtocolError("expected data_stdin, got "+frame.Type.String(), protoerr.ErrUnexpectedFrame)
	}
	if len(frame.Payload) == 0 {
		return nil, nil
	}
	return frame.Payload, nil
}

// Close sends the zero-length data_stdout end-of-stream marker
// followed by data_exit_code, then closes the underlying channel.
// This runs on every exit path — callers invoke it from a defer so it
// fires on both normal return and recovered panic. If ctx is already
// canceled, a bounded grace context is substituted so the exit frame
// is still attempted.
func (f *Flow) Close(ctx context.Context, exitCode int32) error {
	var err error
	f.closeOnce.Do(func() {
		closeCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			closeCtx, cancel = context.WithTimeout(context.Background(), constant.DefaultCloseGrace)
			defer cancel()
		}

		if sendErr := f.ch.Send(closeCtx, wire.DataStdout, nil); sendErr != nil {
			f.log.Warnf("flow: close: failed to send stdout eof marker: %v", sendErr)
			err = sendErr
		}

		payload := wire.PackExitStatus(wire.ExitStatus{ReturnCode: int64(exitCode)})
		if sendErr := f.ch.Send(closeCtx, wire.DataExitCode, payload); sendErr != nil {
			f.log.Warnf("flow: close: failed to send exit code: %v", sendErr)
			if err == nil {
				err = sendErr
			}
		}

		if closeErr := f.ch.Close(); closeErr != nil {
			f.log.Warnf("flow: close: failed to close channel: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}

		f.closeErr = err
	})
	return f.closeErr
}
