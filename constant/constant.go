// Package constant collects the default values the rest of the agent
// falls back to when a caller leaves a configuration field at its
// zero value, per the zero-means-default accessor convention used
// throughout config.Config.
package constant

import "time"

const (
	// ManagementPort is the well-known vsock/vchan port the privileged
	// management domain dials to reach this agent.
	ManagementPort uint32 = 512

	// MaxReadBufferSize bounds the chunk size pulled from the transport
	// on each underlying read.
	MaxReadBufferSize = 4 << 10

	// MaxFramePayload is the largest payload this agent will allocate
	// for a single frame; a declared length beyond this is a protocol error.
	MaxFramePayload = 16 << 20

	// DefaultCloseGrace bounds how long Flow.Close will keep trying to
	// deliver the end-of-stream marker and exit code once a session's
	// own context has already been canceled.
	DefaultCloseGrace = 5 * time.Second

	// DefaultMetricsAddr is where the entrypoint exposes /metrics by default.
	DefaultMetricsAddr = "127.0.0.1:9253"
)
