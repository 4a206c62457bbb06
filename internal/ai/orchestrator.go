package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/knotdc/internal/correction"
	"github.com/dreamware/knotdc/internal/learning"
	"github.com/dreamware/knotdc/internal/qstate"
)

const (
	// HighRiskThreshold is the predicted risk above which an alert action
	// is attached to a unit outcome.
	HighRiskThreshold = 0.7

	optimizedMinGain = 0.001
	integrityGain    = 0.01
)

// Percent is a ratio that travels on the wire as "NN.NN%".
type Percent float64

// MarshalJSON encodes the ratio as a percentage string.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%.2f%%", float64(p)*100))
}

// UnmarshalJSON accepts the percentage string form.
func (p *Percent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return fmt.Errorf("percent %q: %w", s, err)
	}
	*p = Percent(v / 100)
	return nil
}

// Gain is an accumulated fidelity gain that travels as a fixed four
// decimal string.
type Gain float64

// MarshalJSON encodes the gain with four decimals.
func (g Gain) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%.4f", float64(g)))
}

// UnmarshalJSON accepts the string form.
func (g *Gain) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("gain %q: %w", s, err)
	}
	*g = Gain(v)
	return nil
}

// UnitOutcome reports what ProcessUnit did to one cubit.
type UnitOutcome struct {
	CubitID         string          `json:"cubit_id"`
	ErrorKind       correction.Kind `json:"tipo_error,omitempty"`
	Actions         []string        `json:"acciones"`
	Severity        float64         `json:"severidad,omitempty"`
	Improvement     float64         `json:"mejora_fidelidad,omitempty"`
	InitialFidelity float64         `json:"fidelidad_inicial"`
	FinalFidelity   float64         `json:"fidelidad_final"`
	Risk            float64         `json:"riesgo_futuro"`
	ErrorDetected   bool            `json:"error_detectado"`
	ErrorCorrected  bool            `json:"error_corregido"`
	Optimized       bool            `json:"optimizado"`
}

// KnotOutcome aggregates ProcessUnit over a knot.
type KnotOutcome struct {
	KnotID           string               `json:"nudo_id"`
	Suggestions      learning.Suggestions `json:"sugerencias"`
	UnitsProcessed   int                  `json:"cubits_procesados"`
	ErrorsFound      int                  `json:"errores_encontrados"`
	ErrorsCorrected  int                  `json:"errores_corregidos"`
	Optimizations    int                  `json:"optimizaciones_aplicadas"`
	InitialIntegrity float64              `json:"integridad_inicial"`
	FinalIntegrity   float64              `json:"integridad_final"`
	MaxRisk          float64              `json:"riesgo_maximo"`
}

// Metrics is the AI_STATUS payload.
type Metrics struct {
	Timestamp        time.Time               `json:"timestamp"`
	Stats            map[correction.Kind]int `json:"estadisticas_correccion"`
	Detected         int                     `json:"errores_detectados"`
	Corrected        int                     `json:"errores_corregidos"`
	SuccessRate      Percent                 `json:"tasa_exito"`
	Improvement      Gain                    `json:"mejora_fidelidad_acumulada"`
	Optimized        int                     `json:"operaciones_optimizadas"`
	Patterns         int                     `json:"patrones_aprendidos"`
	ErrorHistory     int                     `json:"historial_errores"`
	OperationHistory int                     `json:"historial_operaciones"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCorrector replaces the default corrector.
func WithCorrector(c *correction.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithOptimizer replaces the default optimizer.
func WithOptimizer(opt *learning.Optimizer) Option {
	return func(o *Orchestrator) { o.optimizer = opt }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator drives detection, correction, learning and optimization
// and keeps the global counters reported by AI_STATUS.
//
// Its own counters are safe for concurrent use. Cubits and knots passed
// in are mutated without locking; use Sweep, or the datacenter's Mutate,
// to process stored knots.
type Orchestrator struct {
	createdAt   time.Time
	corrector   *correction.Corrector
	optimizer   *learning.Optimizer
	logger      *slog.Logger
	improvement float64
	detected    int
	corrected   int
	optimized   int
	mu          sync.Mutex
}

// New returns an orchestrator with default engines unless overridden.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		createdAt: time.Now(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.corrector == nil {
		o.corrector = correction.New()
	}
	if o.optimizer == nil {
		o.optimizer = learning.New()
	}
	return o
}

// ProcessUnit runs one cubit through the pipeline: detect and correct
// (only with a reference), learn (only when an error was found), then
// optimize and predict unconditionally.
func (o *Orchestrator) ProcessUnit(unit, reference *qstate.Cubit) UnitOutcome {
	out := UnitOutcome{
		CubitID:         unit.ID,
		InitialFidelity: unit.Fidelity,
		FinalFidelity:   unit.Fidelity,
		Actions:         []string{},
	}

	if reference != nil {
		if rec := o.corrector.Detect(unit, reference); rec != nil {
			out.ErrorDetected = true
			out.ErrorKind = rec.Kind
			out.Severity = rec.Severity
			out.Actions = append(out.Actions, "Error detectado: "+string(rec.Kind))

			if o.corrector.Correct(rec, unit) {
				out.ErrorCorrected = true
				out.Actions = append(out.Actions, "Corregido con: "+rec.Method)
			}
			o.optimizer.Learn(rec)
			recordDetection(rec.Kind, out.ErrorCorrected)

			o.mu.Lock()
			o.detected++
			if out.ErrorCorrected {
				o.corrected++
			}
			o.mu.Unlock()
		}
	}

	gain := o.optimizer.Optimize(unit)
	if gain > optimizedMinGain {
		out.Optimized = true
		out.Improvement = gain
		out.Actions = append(out.Actions, fmt.Sprintf("Fidelidad optimizada: +%.4f", gain))
	}
	out.FinalFidelity = unit.Fidelity

	o.mu.Lock()
	o.improvement += gain
	if out.Optimized {
		o.optimized++
	}
	o.mu.Unlock()

	out.Risk = o.optimizer.PredictRisk(unit)
	if out.Risk > HighRiskThreshold {
		out.Actions = append(out.Actions, fmt.Sprintf("Alto riesgo de error futuro: %.2f%%", out.Risk*100))
	}

	recordUnit(out.Optimized)
	return out
}

// ProcessKnot runs ProcessUnit over every cubit without a reference,
// collects one set of suggestions and raises integrity by 0.01 (capped at
// 1) when at least one correction happened.
func (o *Orchestrator) ProcessKnot(k *qstate.Knot) KnotOutcome {
	out := KnotOutcome{
		KnotID:           k.ID,
		InitialIntegrity: k.Integrity,
	}

	for _, c := range k.Cubits {
		res := o.ProcessUnit(c, nil)
		out.UnitsProcessed++
		if res.ErrorDetected {
			out.ErrorsFound++
		}
		if res.ErrorCorrected {
			out.ErrorsCorrected++
		}
		if res.Optimized {
			out.Optimizations++
		}
		out.MaxRisk = math.Max(out.MaxRisk, res.Risk)
	}

	out.Suggestions = o.optimizer.Suggest(k)
	if out.ErrorsCorrected > 0 {
		k.Integrity = math.Min(1, k.Integrity+integrityGain)
	}
	out.FinalIntegrity = k.Integrity

	o.logger.Debug("knot processed",
		"knot", k.ID,
		"units", out.UnitsProcessed,
		"optimizations", out.Optimizations,
		"priority", string(out.Suggestions.Priority))
	return out
}

// Metrics returns a snapshot of the global counters. The success rate is
// corrected/detected, or 0 when nothing has been detected.
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	m := Metrics{
		Timestamp:   o.createdAt,
		Detected:    o.detected,
		Corrected:   o.corrected,
		Improvement: Gain(o.improvement),
		Optimized:   o.optimized,
	}
	o.mu.Unlock()

	if m.Detected > 0 {
		m.SuccessRate = Percent(float64(m.Corrected) / float64(m.Detected))
	}
	m.Stats = o.corrector.Stats()
	m.Patterns = o.corrector.Patterns()
	m.ErrorHistory = o.corrector.HistoryLen()
	m.OperationHistory = o.optimizer.HistoryLen()
	return m
}
