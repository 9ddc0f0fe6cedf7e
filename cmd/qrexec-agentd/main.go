// Command qrexec-agentd wires configuration, logging, metrics and the
// listener together and runs a sample handler that shells out via
// os/exec. The handler itself is illustrative only — the protocol
// leaves the handler's implementation to the embedder; this binary
// exists to demonstrate the wiring, not to prescribe command
// execution policy.
package main

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vchanagent/vchanagent/config"
	"github.com/vchanagent/vchanagent/flow"
	"github.com/vchanagent/vchanagent/internal/log"
	"github.com/vchanagent/vchanagent/internal/metrics"
	"github.com/vchanagent/vchanagent/listener"
	"github.com/vchanagent/vchanagent/session"
	"github.com/vchanagent/vchanagent/transport"
)

func main() {
	cfg := &config.Config{}
	cfg.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	logger := buildLogger(cfg)
	defer logger.Sync()

	m := metrics.New()
	go serveMetrics(cfg.GetMetricsAddr(), m, logger)

	tp := transport.VSock{}
	ln := listener.New(tp, cfg.GetManagementPort(), shellHandler,
		listener.WithDomid(cfg.ManagementDomid),
		listener.WithLogger(logger),
		listener.WithMetrics(m),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("qrexec-agentd: listening on management port %d", cfg.GetManagementPort())
	if err := ln.Run(ctx); err != nil {
		logger.Errorf("qrexec-agentd: listener exited with error: %v", err)
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config) *log.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat != "json" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	z, err := zcfg.Build()
	if err != nil {
		return log.NewDevelopment()
	}
	return log.New(z)
}

func serveMetrics(addr string, m *metrics.Metrics, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	logger.Infof("qrexec-agentd: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("qrexec-agentd: metrics server exited: %v", err)
	}
}

// shellHandler runs cmd as user's shell command, piping the agent's
// flow stdin/stdout/stderr to and from it.
func shellHandler(ctx context.Context, user, cmd string, fl *flow.Flow) int32 {
	_ = user // opaque guest username; this sample doesn't map it to a uid.

	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	c.Stdin = &flowReader{ctx: ctx, fl: fl}
	c.Stdout = &flowWriter{ctx: ctx, fl: fl, stderr: false}
	c.Stderr = &flowWriter{ctx: ctx, fl: fl, stderr: true}

	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return int32(exitErr.ExitCode())
		}
		return 255
	}
	return 0
}

type flowReader struct {
	ctx context.Context
	fl  *flow.Flow
	buf []byte
}

func (r *flowReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		chunk, err := r.fl.Read(r.ctx)
		if err != nil {
			return 0, err
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

type flowWriter struct {
	ctx    context.Context
	fl     *flow.Flow
	stderr bool
}

func (w *flowWriter) Write(p []byte) (int, error) {
	var err error
	if w.stderr {
		err = w.fl.Ewrite(w.ctx, p)
	} else {
		err = w.fl.Write(w.ctx, p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ session.Handler = shellHandler
