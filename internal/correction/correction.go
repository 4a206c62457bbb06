// Package correction detects and repairs deviations of a cubit from a
// reference state.
//
// Detection compares the unit to its reference with the overlap
// |conj(a_u)*a_r + conj(b_u)*b_r|. Anything below the fidelity threshold
// becomes a Record, classified by the first matching rule:
//
//	bit_flip     |alpha_u - beta_r| < 0.1
//	phase_flip   |phase_u - phase_r| > 0.3
//	decoherence  unit fidelity < 0.8
//	gate_error   otherwise
//
// Every record is kept in a bounded history. Correction applies the repair
// for the record's kind and counts successes per kind; gate errors are
// recorded but never corrected.
package correction

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/knotdc/internal/qstate"
	"github.com/dreamware/knotdc/internal/ring"
)

const (
	// DefaultThreshold is the overlap below which a unit is considered faulty.
	DefaultThreshold = 0.95
	// DefaultHistorySize bounds the number of records kept.
	DefaultHistorySize = 1000

	decoherenceBoost = 0.05
)

// Kind classifies a detected error.
type Kind string

const (
	BitFlip     Kind = "bit_flip"
	PhaseFlip   Kind = "phase_flip"
	Decoherence Kind = "decoherence"
	GateError   Kind = "gate_error"
)

// Kinds lists every error kind in report order.
var Kinds = []Kind{BitFlip, PhaseFlip, Decoherence, GateError}

// Correction method names stored on a Record.
const (
	MethodBitFlip     = "bit_flip_correction"
	MethodPhaseFlip   = "phase_flip_correction"
	MethodDecoherence = "decoherence_mitigation"
	MethodGateRetry   = "gate_retry"
)

// Context holds the measurements behind a detection.
type Context struct {
	Fidelity      float64 `json:"fidelidad"`
	ActualPhase   float64 `json:"fase_actual"`
	ExpectedPhase float64 `json:"fase_esperada"`
}

// Record is one detected error.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Context   Context   `json:"contexto"`
	ID        string    `json:"id"`
	CubitID   string    `json:"cubit_id"`
	Kind      Kind      `json:"tipo_error"`
	Method    string    `json:"metodo_correccion,omitempty"`
	Severity  float64   `json:"severidad"`
	Corrected bool      `json:"corregido"`
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(c *Corrector) { c.threshold = t }
}

// WithHistorySize overrides DefaultHistorySize.
func WithHistorySize(n int) Option {
	return func(c *Corrector) { c.historySize = n }
}

// Corrector is safe for concurrent use. The cubits passed to Detect and
// Correct are not locked; callers serialize access to them.
type Corrector struct {
	history     *ring.Buffer[*Record]
	stats       map[Kind]int
	threshold   float64
	historySize int
	mu          sync.Mutex
}

// New returns a Corrector with empty history and zeroed statistics.
func New(opts ...Option) *Corrector {
	c := &Corrector{
		threshold:   DefaultThreshold,
		historySize: DefaultHistorySize,
		stats:       make(map[Kind]int, len(Kinds)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.history = ring.New[*Record](c.historySize)
	for _, k := range Kinds {
		c.stats[k] = 0
	}
	return c
}

// Threshold returns the configured fidelity threshold.
func (c *Corrector) Threshold() float64 {
	return c.threshold
}

// Overlap returns |conj(a_u)*a_r + conj(b_u)*b_r|.
func Overlap(unit, reference *qstate.Cubit) float64 {
	return cmplx.Abs(cmplx.Conj(unit.Alpha)*reference.Alpha + cmplx.Conj(unit.Beta)*reference.Beta)
}

// Detect compares unit against reference and returns a record when the
// overlap is below the threshold, or nil when the unit is healthy.
func (c *Corrector) Detect(unit, reference *qstate.Cubit) *Record {
	if unit == nil || reference == nil {
		return nil
	}
	fidelity := Overlap(unit, reference)
	if fidelity >= c.threshold {
		return nil
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		CubitID:   unit.ID,
		Kind:      classify(unit, reference),
		Severity:  1 - fidelity,
		Context: Context{
			Fidelity:      fidelity,
			ActualPhase:   unit.Phase,
			ExpectedPhase: reference.Phase,
		},
	}

	c.mu.Lock()
	c.history.Push(rec)
	c.mu.Unlock()
	return rec
}

func classify(unit, reference *qstate.Cubit) Kind {
	switch {
	case cmplx.Abs(unit.Alpha-reference.Beta) < 0.1:
		return BitFlip
	case math.Abs(unit.Phase-reference.Phase) > 0.3:
		return PhaseFlip
	case unit.Fidelity < 0.8:
		return Decoherence
	default:
		return GateError
	}
}

// Correct applies the repair for rec.Kind to unit, records the method and
// outcome on rec, and reports whether the unit was corrected.
func (c *Corrector) Correct(rec *Record, unit *qstate.Cubit) bool {
	if rec == nil || unit == nil {
		return false
	}

	var ok bool
	switch rec.Kind {
	case BitFlip:
		unit.Alpha, unit.Beta = unit.Beta, unit.Alpha
		rec.Method, ok = MethodBitFlip, true
	case PhaseFlip:
		expected := rec.Context.ExpectedPhase
		unit.Phase = expected
		unit.Beta *= cmplx.Exp(complex(0, expected))
		rec.Method, ok = MethodPhaseFlip, true
	case Decoherence:
		unit.Normalize()
		unit.Fidelity = math.Min(1, unit.Fidelity+decoherenceBoost)
		rec.Method, ok = MethodDecoherence, true
	default:
		rec.Method = MethodGateRetry
	}

	c.mu.Lock()
	rec.Corrected = ok
	if ok {
		c.stats[rec.Kind]++
	}
	c.mu.Unlock()
	return ok
}

// Stats returns the number of successful corrections per kind.
func (c *Corrector) Stats() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Kind]int, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

// HistoryLen returns the number of records held.
func (c *Corrector) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Len()
}

// Patterns returns the number of distinct error kinds present in the
// history.
func (c *Corrector) Patterns() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[Kind]struct{}, len(Kinds))
	for _, r := range c.history.Slice() {
		seen[r.Kind] = struct{}{}
	}
	return len(seen)
}

// History returns copies of the held records, oldest first.
func (c *Corrector) History() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := c.history.Slice()
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out
}
