// Package metrics exposes the agent's runtime counters through
// github.com/prometheus/client_golang. Each Metrics owns its own
// *prometheus.Registry rather than registering against the global
// default, so an embedder can run more than one agent per process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels the terminal state of a session for SessionsEnded.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeHandlerError   Outcome = "handler_error"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeTransportError Outcome = "transport_error"
)

// Metrics bundles the counters/histograms/gauges this agent reports.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsStarted  *prometheus.CounterVec
	SessionsEnded    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	FramePayloadSize prometheus.Histogram
	SessionsInFlight prometheus.Gauge
}

// New builds a Metrics with its own registry and registers every
// collector against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vchanagent",
			Name:      "sessions_started_total",
			Help:      "Number of exec sessions started, by dispatch mode.",
		}, []string{"mode"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vchanagent",
			Name:      "sessions_ended_total",
			Help:      "Number of exec sessions ended, by outcome.",
		}, []string{"outcome"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vchanagent",
			Name:      "session_duration_seconds",
			Help:      "Time from session open to connection_terminated.",
			Buckets:   prometheus.DefBuckets,
		}),
		FramePayloadSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vchanagent",
			Name:      "frame_payload_bytes",
			Help:      "Observed payload sizes of frames sent or received.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		SessionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vchanagent",
			Name:      "sessions_in_flight",
			Help:      "Number of exec sessions currently open.",
		}),
	}

	reg.MustRegister(
		m.SessionsStarted,
		m.SessionsEnded,
		m.SessionDuration,
		m.FramePayloadSize,
		m.SessionsInFlight,
	)

	return m
}
