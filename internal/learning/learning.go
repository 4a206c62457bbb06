// Package learning holds the optimizer that nudges cubit fidelity upward,
// predicts the risk of future errors with a small logistic model, learns
// from correction records and suggests structural changes for knots.
package learning

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dreamware/knotdc/internal/correction"
	"github.com/dreamware/knotdc/internal/qstate"
	"github.com/dreamware/knotdc/internal/ring"
)

const (
	// DefaultHistorySize bounds the operation history.
	DefaultHistorySize = 5000
	// DefaultLearningRate scales amplitude and weight updates.
	DefaultLearningRate = 0.01
	// DefaultFidelityStep is the fidelity gain of one optimization.
	DefaultFidelityStep = 0.02

	numWeights = 10

	// Suggestion thresholds.
	lowIntegrity      = 0.85
	highVariance      = 0.05
	recentWindow      = 100
	severeOperation   = 0.3
	severeBurstCount  = 20
	severityForTarget = 0.5
)

// Priority ranks a suggestion.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "alta"
	PriorityCritical Priority = "critica"
)

// Suggestions are the structural changes recommended for a knot.
type Suggestions struct {
	Reconfigure bool     `json:"reconfigurar_conexiones"`
	Rebalance   bool     `json:"rebalancear_cubits"`
	Redundancy  bool     `json:"aumentar_redundancia"`
	Priority    Priority `json:"prioridad"`
}

// Operation is one learned-from error.
type Operation struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      correction.Kind `json:"tipo"`
	Severity  float64         `json:"severidad"`
	Corrected bool            `json:"corregido"`
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithRand sets the random source used for weight initialization, the
// noise feature and weight updates.
func WithRand(r *rand.Rand) Option {
	return func(o *Optimizer) { o.rng = r }
}

// WithLearningRate overrides DefaultLearningRate.
func WithLearningRate(lr float64) Option {
	return func(o *Optimizer) { o.lr = lr }
}

// WithHistorySize overrides DefaultHistorySize.
func WithHistorySize(n int) Option {
	return func(o *Optimizer) { o.historySize = n }
}

// WithFidelityStep overrides DefaultFidelityStep.
func WithFidelityStep(step float64) Option {
	return func(o *Optimizer) { o.step = step }
}

// Optimizer is safe for concurrent use. Cubits passed in are not locked.
type Optimizer struct {
	rng         *rand.Rand
	history     *ring.Buffer[Operation]
	weights     [numWeights]float64
	lr          float64
	step        float64
	improvement float64
	optimized   int
	historySize int
	mu          sync.Mutex
}

// New returns an optimizer with weights drawn from N(0,1)*0.1.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		lr:          DefaultLearningRate,
		step:        DefaultFidelityStep,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	o.history = ring.New[Operation](o.historySize)
	for i := range o.weights {
		o.weights[i] = o.rng.NormFloat64() * 0.1
	}
	return o
}

// Optimize pushes both amplitude magnitudes toward one, re-normalizes, and
// raises fidelity by the configured step, capped at 1. Fidelity never
// decreases. It returns the fidelity gain.
func (o *Optimizer) Optimize(unit *qstate.Cubit) float64 {
	if unit == nil {
		return 0
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	before := unit.Fidelity
	a, b := cmplx.Abs(unit.Alpha), cmplx.Abs(unit.Beta)
	unit.Alpha += complex(o.lr*2*(1-a*a), 0)
	unit.Beta += complex(o.lr*2*(1-b*b), 0)
	unit.Normalize()

	unit.Fidelity = math.Max(before, math.Min(1, before+o.step))
	delta := unit.Fidelity - before

	o.improvement += delta
	o.optimized++
	return delta
}

// features builds the model input. A nil unit contributes only noise.
func (o *Optimizer) features(unit *qstate.Cubit) [numWeights]float64 {
	var f [numWeights]float64
	if unit != nil {
		a, b := cmplx.Abs(unit.Alpha), cmplx.Abs(unit.Beta)
		f[0] = unit.Fidelity
		f[1] = unit.Phase / (2 * math.Pi)
		f[2] = a * a
		f[3] = b * b
	}
	f[4] = o.rng.Float64()
	return f
}

func (o *Optimizer) predict(unit *qstate.Cubit) float64 {
	f := o.features(unit)
	var dot float64
	for i := range f {
		dot += f[i] * o.weights[i]
	}
	return 1 / (1 + math.Exp(-dot))
}

// PredictRisk returns the model's probability in [0,1] that unit will
// develop an error.
func (o *Optimizer) PredictRisk(unit *qstate.Cubit) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.predict(unit)
}

// Learn updates the weights from a correction record and appends it to the
// operation history.
func (o *Optimizer) Learn(rec *correction.Record) {
	if rec == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	target := 0.0
	if rec.Severity > severityForTarget {
		target = 1
	}
	diff := target - o.predict(nil)
	for i := range o.weights {
		o.weights[i] += o.lr * diff * o.rng.NormFloat64()
	}

	o.history.Push(Operation{
		Timestamp: rec.Timestamp,
		Kind:      rec.Kind,
		Severity:  rec.Severity,
		Corrected: rec.Corrected,
	})
}

// Suggest inspects a knot and the recent operation history.
func (o *Optimizer) Suggest(k *qstate.Knot) Suggestions {
	s := Suggestions{Priority: PriorityNormal}
	if k == nil {
		return s
	}

	if k.Integrity < lowIntegrity {
		s.Reconfigure = true
		s.Priority = PriorityHigh
	}
	if len(k.Cubits) > 0 && k.FidelityVariance() > highVariance {
		s.Rebalance = true
	}

	// The burst check needs more than a full window of history.
	o.mu.Lock()
	var recent []Operation
	if o.history.Len() > recentWindow {
		recent = o.history.Last(recentWindow)
	}
	o.mu.Unlock()

	severe := 0
	for _, op := range recent {
		if op.Severity > severeOperation {
			severe++
		}
	}
	if severe > severeBurstCount {
		s.Redundancy = true
		s.Priority = PriorityCritical
	}
	return s
}

// Improvement returns the accumulated fidelity gain.
func (o *Optimizer) Improvement() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.improvement
}

// Optimized returns the number of Optimize calls.
func (o *Optimizer) Optimized() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.optimized
}

// HistoryLen returns the number of operations held.
func (o *Optimizer) HistoryLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Len()
}

// History returns the held operations, oldest first.
func (o *Optimizer) History() []Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Slice()
}

// Weights returns a copy of the model weights.
func (o *Optimizer) Weights() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]float64, numWeights)
	copy(out, o.weights[:])
	return out
}
