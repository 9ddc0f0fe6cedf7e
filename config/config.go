// Package config loads the agent's runtime settings, following the
// zero-value-means-default accessor convention, backed by
// github.com/spf13/pflag for the cmd/ entrypoint's flag surface.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/vchanagent/vchanagent/constant"
)

// Config holds the settings the entrypoint needs to build a Listener.
type Config struct {
	ManagementPort  uint32
	ManagementDomid uint32

	MetricsAddr string

	LogLevel  string
	LogFormat string // "console" or "json"

	CloseGrace time.Duration
}

// GetManagementPort returns ManagementPort, defaulting to the
// well-known agent port when unset.
func (c *Config) GetManagementPort() uint32 {
	if c.ManagementPort != 0 {
		return c.ManagementPort
	}
	return constant.ManagementPort
}

// GetMetricsAddr returns MetricsAddr, defaulting to a loopback-only
// address so metrics aren't exposed without an explicit opt-in.
func (c *Config) GetMetricsAddr() string {
	if c.MetricsAddr != "" {
		return c.MetricsAddr
	}
	return constant.DefaultMetricsAddr
}

// GetCloseGrace returns CloseGrace, defaulting to constant.DefaultCloseGrace.
func (c *Config) GetCloseGrace() time.Duration {
	if c.CloseGrace > 0 {
		return c.CloseGrace
	}
	return constant.DefaultCloseGrace
}

// RegisterFlags binds fs to c's fields, following the flag names the
// cmd/ entrypoint exposes on the command line.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Uint32Var(&c.ManagementPort, "management-port", constant.ManagementPort,
		"vsock/vchan port the management domain dials to reach this agent")
	fs.Uint32Var(&c.ManagementDomid, "management-domid", 0,
		"expected domid of the management domain (0 accepts any caller)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", constant.DefaultMetricsAddr,
		"address to expose Prometheus metrics on")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn, or error")
	fs.StringVar(&c.LogFormat, "log-format", "console", "log format: console or json")
	fs.DurationVar(&c.CloseGrace, "close-grace", constant.DefaultCloseGrace,
		"grace period for delivering the exit frame after cancellation (parsed only; Flow.Close always uses the built-in default)")
}
