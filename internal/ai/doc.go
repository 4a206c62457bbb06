// Package ai ties the correction and learning engines together and runs
// them over stored knots.
//
// # Pipeline
//
// ProcessUnit takes one cubit through five steps:
//
//	detect ──> correct ──> learn      (only with a reference state)
//	   │
//	   └─────> optimize ──> predict   (always)
//
// ProcessKnot applies ProcessUnit to every cubit of a knot without a
// reference, so stored knots are only optimized and scored; errors are
// detected when a caller supplies reference states. One set of
// suggestions is computed per knot.
//
// # Sweeps and monitoring
//
// Sweep processes every knot of every crystal while holding the
// datacenter's write lock and returns the AI_OPTIMIZE payload, including
// the anomalies it flagged:
//
//	high_risk            predicted error risk above 0.7
//	low_integrity        knot integrity below 0.85
//	fidelity_imbalance   cubit fidelity variance above 0.05
//	error_burst          more than 20 severe errors among the last 100,
//	                     checked once over 100 are recorded
//	decoherent_knot      some cubit fidelity at or below 0.85
//
// Monitor runs Sweep on a ticker and retains the latest anomalies.
//
// # Metrics
//
// Global counters (AI_STATUS) live in the Orchestrator. Prometheus
// counters for processed units, detections, corrections, anomalies and
// sweep latency are registered under the knotdc_ai_ prefix, and sweeps
// open an OpenTelemetry span named ai.Sweep.
package ai
