package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("knotdc.server")

var (
	// commandsTotal counts dispatched commands.
	// Labels: command (STATUS, LIST, ..., EMPTY, UNKNOWN), status (ok, error)
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "server",
		Name:      "commands_total",
		Help:      "Total commands dispatched by the TCP server",
	}, []string{"command", "status"})

	// commandLatency measures dispatch time per command.
	// Labels: command
	commandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "knotdc",
		Subsystem: "server",
		Name:      "command_duration_seconds",
		Help:      "Command dispatch latency in seconds",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"command"})

	// connectionsActive tracks currently open client connections.
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "knotdc",
		Subsystem: "server",
		Name:      "connections_active",
		Help:      "Open client connections",
	})

	// connectionsTotal counts accepted connections.
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "server",
		Name:      "connections_total",
		Help:      "Total accepted client connections",
	})

	// rateLimited counts commands rejected by the per-connection limiter.
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "server",
		Name:      "rate_limited_total",
		Help:      "Total commands rejected by the per-connection rate limit",
	})
)

func recordCommand(command string, failed bool, seconds float64) {
	status := "ok"
	if failed {
		status = "error"
	}
	commandsTotal.WithLabelValues(command, status).Inc()
	commandLatency.WithLabelValues(command).Observe(seconds)
}
