package ai

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/datacenter"
	"github.com/dreamware/knotdc/internal/qstate"
)

const lowIntegrityThreshold = 0.85

// AnomalyKind names a condition flagged during a sweep.
type AnomalyKind string

const (
	AnomalyHighRisk          AnomalyKind = "high_risk"
	AnomalyLowIntegrity      AnomalyKind = "low_integrity"
	AnomalyFidelityImbalance AnomalyKind = "fidelity_imbalance"
	AnomalyErrorBurst        AnomalyKind = "error_burst"
	AnomalyDecoherent        AnomalyKind = "decoherent_knot"
)

// Anomaly is one flagged knot condition.
type Anomaly struct {
	Timestamp time.Time        `json:"timestamp"`
	Kind      AnomalyKind      `json:"tipo"`
	Crystal   string           `json:"cristal"`
	KnotID    string           `json:"nudo"`
	Position  crystal.Position `json:"posicion"`
	Value     float64          `json:"valor"`
}

// String renders the anomaly for logs and alerts.
func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s/%s at %s (%.4f)", a.Kind, a.Crystal, a.KnotID, a.Position, a.Value)
}

// SuggestionTally counts knots for which each suggestion was raised.
type SuggestionTally struct {
	Reconfigure int `json:"reconfigurar_conexiones"`
	Rebalance   int `json:"rebalancear_cubits"`
	Redundancy  int `json:"aumentar_redundancia"`
}

// SweepResult is the AI_OPTIMIZE payload.
type SweepResult struct {
	Timestamp       time.Time       `json:"timestamp"`
	Suggestions     SuggestionTally `json:"sugerencias"`
	Anomalies       []Anomaly       `json:"anomalias"`
	Crystals        int             `json:"cristales_procesados"`
	Knots           int             `json:"nudos_procesados"`
	Units           int             `json:"cubits_procesados"`
	ErrorsFound     int             `json:"errores_encontrados"`
	ErrorsCorrected int             `json:"errores_corregidos"`
	Optimizations   int             `json:"optimizaciones_aplicadas"`
	DurationMillis  float64         `json:"duracion_ms"`
}

func (r *SweepResult) add(crystalName string, pos crystal.Position, k *qstate.Knot, out KnotOutcome) {
	r.Knots++
	r.Units += out.UnitsProcessed
	r.ErrorsFound += out.ErrorsFound
	r.ErrorsCorrected += out.ErrorsCorrected
	r.Optimizations += out.Optimizations

	flag := func(kind AnomalyKind, value float64) {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Timestamp: r.Timestamp,
			Kind:      kind,
			Crystal:   crystalName,
			KnotID:    k.ID,
			Position:  pos,
			Value:     value,
		})
		recordAnomaly(kind)
	}

	s := out.Suggestions
	if s.Reconfigure {
		r.Suggestions.Reconfigure++
	}
	if s.Rebalance {
		r.Suggestions.Rebalance++
		flag(AnomalyFidelityImbalance, k.FidelityVariance())
	}
	if s.Redundancy {
		r.Suggestions.Redundancy++
		flag(AnomalyErrorBurst, 0)
	}
	if out.MaxRisk > HighRiskThreshold {
		flag(AnomalyHighRisk, out.MaxRisk)
	}
	if k.Integrity < lowIntegrityThreshold {
		flag(AnomalyLowIntegrity, k.Integrity)
	}
	if !k.Coherent() {
		flag(AnomalyDecoherent, minFidelity(k))
	}
}

func minFidelity(k *qstate.Knot) float64 {
	if len(k.Cubits) == 0 {
		return 0
	}
	m := k.Cubits[0].Fidelity
	for _, c := range k.Cubits[1:] {
		m = min(m, c.Fidelity)
	}
	return m
}

// Sweep runs ProcessKnot over every knot of every crystal while holding the
// datacenter's write lock. It stops between knots when ctx is canceled and
// returns the partial result with the context error.
func (o *Orchestrator) Sweep(ctx context.Context, dc *datacenter.Datacenter) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "ai.Sweep",
		trace.WithAttributes(attribute.String("datacenter", dc.Name)))
	defer span.End()

	start := time.Now()
	res := SweepResult{Timestamp: start, Anomalies: []Anomaly{}}

	err := dc.Mutate(func(tx datacenter.Tx) error {
		var err error
		tx.Each(func(c *crystal.Crystal) {
			if err != nil {
				return
			}
			res.Crystals++
			c.Each(func(pos crystal.Position, k *qstate.Knot) {
				if err != nil {
					return
				}
				if err = ctx.Err(); err != nil {
					return
				}
				res.add(c.Name, pos, k, o.ProcessKnot(k))
			})
		})
		return err
	})

	elapsed := time.Since(start)
	res.DurationMillis = float64(elapsed.Microseconds()) / 1000

	span.SetAttributes(
		attribute.Int("sweep.knots", res.Knots),
		attribute.Int("sweep.anomalies", len(res.Anomalies)),
	)
	if err != nil {
		recordSweep("canceled", elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("ai sweep: %w", err)
	}
	recordSweep("success", elapsed.Seconds())
	span.SetStatus(codes.Ok, "")

	o.logger.Info("ai sweep completed",
		"crystals", res.Crystals,
		"knots", res.Knots,
		"optimizations", res.Optimizations,
		"anomalies", len(res.Anomalies),
		"duration", elapsed)
	return res, nil
}
