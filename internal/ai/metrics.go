package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/dreamware/knotdc/internal/correction"
)

var tracer = otel.Tracer("knotdc.ai")

// =============================================================================
// Prometheus Metrics for the AI engines
// =============================================================================

var (
	// unitsProcessed counts cubits run through ProcessUnit.
	// Labels: outcome (optimized, unchanged)
	unitsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "ai",
		Name:      "units_processed_total",
		Help:      "Total cubits processed by the AI orchestrator",
	}, []string{"outcome"})

	// errorsDetected counts detections by kind.
	// Labels: kind (bit_flip, phase_flip, decoherence, gate_error)
	errorsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "ai",
		Name:      "errors_detected_total",
		Help:      "Total errors detected by kind",
	}, []string{"kind"})

	// errorsCorrected counts successful corrections by kind.
	// Labels: kind
	errorsCorrected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "ai",
		Name:      "errors_corrected_total",
		Help:      "Total errors corrected by kind",
	}, []string{"kind"})

	// anomaliesFlagged counts anomalies raised by sweeps.
	// Labels: kind (high_risk, low_integrity, fidelity_imbalance, error_burst, decoherent_knot)
	anomaliesFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knotdc",
		Subsystem: "ai",
		Name:      "anomalies_total",
		Help:      "Total anomalies flagged by datacenter sweeps",
	}, []string{"kind"})

	// sweepDuration measures full datacenter sweeps.
	// Labels: status (success, canceled)
	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "knotdc",
		Subsystem: "ai",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full datacenter AI sweep in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"status"})
)

func recordUnit(optimized bool) {
	outcome := "unchanged"
	if optimized {
		outcome = "optimized"
	}
	unitsProcessed.WithLabelValues(outcome).Inc()
}

func recordDetection(kind correction.Kind, corrected bool) {
	errorsDetected.WithLabelValues(string(kind)).Inc()
	if corrected {
		errorsCorrected.WithLabelValues(string(kind)).Inc()
	}
}

func recordAnomaly(kind AnomalyKind) {
	anomaliesFlagged.WithLabelValues(string(kind)).Inc()
}

func recordSweep(status string, seconds float64) {
	sweepDuration.WithLabelValues(status).Observe(seconds)
}
