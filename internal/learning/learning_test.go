package learning

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/knotdc/internal/correction"
	"github.com/dreamware/knotdc/internal/qstate"
)

func newTestOptimizer(opts ...Option) *Optimizer {
	return New(append([]Option{WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)...)
}

func TestNewWeights(t *testing.T) {
	o := newTestOptimizer()
	w := o.Weights()
	require.Len(t, w, 10)
	for _, v := range w {
		assert.Less(t, math.Abs(v), 1.0, "N(0,1)*0.1 weights should be small")
	}

	// Same seed, same weights
	assert.Equal(t, w, newTestOptimizer().Weights())
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name      string
		fidelity  float64
		wantAfter float64
	}{
		{name: "regular step", fidelity: 0.9, wantAfter: 0.92},
		{name: "capped at one", fidelity: 0.99, wantAfter: 1.0},
		{name: "already perfect", fidelity: 1.0, wantAfter: 1.0},
		{name: "above one never decreases", fidelity: 1.2, wantAfter: 1.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOptimizer()
			u := &qstate.Cubit{Alpha: complex(0.6, 0), Beta: complex(0, 0.8), Fidelity: tt.fidelity}

			delta := o.Optimize(u)
			assert.InDelta(t, tt.wantAfter, u.Fidelity, 1e-12)
			assert.InDelta(t, tt.wantAfter-tt.fidelity, delta, 1e-12)
			assert.GreaterOrEqual(t, delta, 0.0)
			assert.InDelta(t, 1.0, u.Norm(), 1e-9)
		})
	}
}

func TestOptimizeProperties(t *testing.T) {
	o := newTestOptimizer()
	r := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 200; i++ {
		u := &qstate.Cubit{
			Alpha:    complex(r.Float64()*2-1, r.Float64()*2-1),
			Beta:     complex(r.Float64()*2-1, r.Float64()*2-1),
			Fidelity: r.Float64() * 1.1,
		}
		before := u.Fidelity
		o.Optimize(u)
		assert.GreaterOrEqual(t, u.Fidelity, before)
		assert.InDelta(t, 1.0, u.Norm(), 1e-9)
	}

	assert.Equal(t, 200, o.Optimized())
	assert.Greater(t, o.Improvement(), 0.0)
	assert.Equal(t, 0.0, o.Optimize(nil))
}

func TestPredictRiskRange(t *testing.T) {
	o := newTestOptimizer()
	units := []*qstate.Cubit{
		nil,
		{Alpha: 1, Fidelity: 0.9, Phase: 1},
		{Beta: 1, Fidelity: 0.1, Phase: 6},
	}
	for _, u := range units {
		for i := 0; i < 20; i++ {
			risk := o.PredictRisk(u)
			assert.GreaterOrEqual(t, risk, 0.0)
			assert.LessOrEqual(t, risk, 1.0)
		}
	}
}

func TestLearn(t *testing.T) {
	o := newTestOptimizer(WithHistorySize(2))
	before := o.Weights()

	o.Learn(nil)
	assert.Equal(t, 0, o.HistoryLen())

	now := time.Now()
	for i, sev := range []float64{0.9, 0.1, 0.6} {
		o.Learn(&correction.Record{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Kind:      correction.BitFlip,
			Severity:  sev,
			Corrected: true,
		})
	}

	assert.NotEqual(t, before, o.Weights())
	hist := o.History()
	require.Len(t, hist, 2)
	assert.Equal(t, 0.1, hist[0].Severity)
	assert.Equal(t, 0.6, hist[1].Severity)
	assert.Equal(t, correction.BitFlip, hist[1].Kind)
	assert.True(t, hist[1].Corrected)
}

func TestSuggest(t *testing.T) {
	healthy := func() *qstate.Knot {
		return &qstate.Knot{
			Integrity: 0.95,
			Cubits:    []*qstate.Cubit{{Fidelity: 0.9}, {Fidelity: 0.92}},
		}
	}

	t.Run("healthy knot", func(t *testing.T) {
		s := newTestOptimizer().Suggest(healthy())
		assert.Equal(t, Suggestions{Priority: PriorityNormal}, s)
	})

	t.Run("nil knot", func(t *testing.T) {
		s := newTestOptimizer().Suggest(nil)
		assert.Equal(t, PriorityNormal, s.Priority)
	})

	t.Run("low integrity", func(t *testing.T) {
		k := healthy()
		k.Integrity = 0.8
		s := newTestOptimizer().Suggest(k)
		assert.True(t, s.Reconfigure)
		assert.Equal(t, PriorityHigh, s.Priority)
	})

	t.Run("fidelity imbalance", func(t *testing.T) {
		k := healthy()
		k.Cubits = []*qstate.Cubit{{Fidelity: 0.1}, {Fidelity: 0.9}}
		s := newTestOptimizer().Suggest(k)
		assert.True(t, s.Rebalance)
		assert.Equal(t, PriorityNormal, s.Priority)
	})

	t.Run("error burst", func(t *testing.T) {
		o := newTestOptimizer()
		for i := 0; i < 80; i++ {
			o.Learn(&correction.Record{Kind: correction.GateError, Severity: 0.1})
		}
		for i := 0; i < 21; i++ {
			o.Learn(&correction.Record{Kind: correction.GateError, Severity: 0.4})
		}
		k := healthy()
		k.Integrity = 0.5
		s := o.Suggest(k)
		assert.True(t, s.Redundancy)
		assert.True(t, s.Reconfigure)
		assert.Equal(t, PriorityCritical, s.Priority)
	})

	t.Run("burst check waits for a full window", func(t *testing.T) {
		tests := []struct {
			name   string
			ops    int
			expect bool
		}{
			{name: "21 severe operations", ops: 21, expect: false},
			{name: "exactly 100 severe operations", ops: 100, expect: false},
			{name: "101 severe operations", ops: 101, expect: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				o := newTestOptimizer()
				for i := 0; i < tt.ops; i++ {
					o.Learn(&correction.Record{Kind: correction.GateError, Severity: 0.4})
				}
				s := o.Suggest(healthy())
				assert.Equal(t, tt.expect, s.Redundancy)
				if tt.expect {
					assert.Equal(t, PriorityCritical, s.Priority)
				} else {
					assert.Equal(t, PriorityNormal, s.Priority)
				}
			})
		}
	})

	t.Run("burst outside the recent window is ignored", func(t *testing.T) {
		o := newTestOptimizer()
		for i := 0; i < 30; i++ {
			o.Learn(&correction.Record{Kind: correction.GateError, Severity: 0.9})
		}
		for i := 0; i < 100; i++ {
			o.Learn(&correction.Record{Kind: correction.GateError, Severity: 0.1})
		}
		assert.False(t, o.Suggest(healthy()).Redundancy)
	})
}
