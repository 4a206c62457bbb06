package qstate

import (
	"encoding/json"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubitNormalize(t *testing.T) {
	t.Run("rescales to unit norm", func(t *testing.T) {
		c := &Cubit{Alpha: 3, Beta: 4i}
		require.True(t, c.Normalize())
		assert.InDelta(t, 1.0, c.Norm(), 1e-12)
		assert.InDelta(t, 0.6, real(c.Alpha), 1e-12)
		assert.InDelta(t, 0.8, imag(c.Beta), 1e-12)
	})

	t.Run("zero amplitudes are left alone", func(t *testing.T) {
		c := &Cubit{}
		assert.False(t, c.Normalize())
		assert.Equal(t, complex128(0), c.Alpha)
	})
}

func TestCubitMeasure(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	zero := &Cubit{Alpha: 1}
	one := &Cubit{Beta: 1}
	for i := 0; i < 100; i++ {
		assert.Equal(t, 0, zero.Measure(r))
		assert.Equal(t, 1, one.Measure(r))
	}
}

func TestCubitClone(t *testing.T) {
	c := &Cubit{ID: "k_q0", Alpha: 1, Fidelity: 0.9}
	cp := c.Clone()
	cp.Fidelity = 0.1
	cp.Alpha = 0

	assert.Equal(t, 0.9, c.Fidelity)
	assert.Equal(t, complex128(1), c.Alpha)
}

func TestCubitMarshalJSON(t *testing.T) {
	c := &Cubit{ID: "k_q0", State: StateCoherent, Alpha: complex(0.5, -0.25), Beta: 1, Phase: 1.5, Fidelity: 0.9}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "k_q0", out["id"])
	assert.Equal(t, "coherente", out["estado"])
	assert.Equal(t, "0.5-0.25j", out["amplitud_alfa"])
	assert.Equal(t, "1+0j", out["amplitud_beta"])
	assert.Equal(t, 0.9, out["fidelidad"])
}

func TestFormatAmplitude(t *testing.T) {
	tests := []struct {
		in   complex128
		want string
	}{
		{in: complex(0.5, 0.25), want: "0.5+0.25j"},
		{in: complex(0.5, -0.25), want: "0.5-0.25j"},
		{in: complex(-1, 0), want: "-1+0j"},
		{in: complex(0, -1), want: "0-1j"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatAmplitude(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "+-")
		})
	}
}

func TestParseKnotType(t *testing.T) {
	tests := []struct {
		in      string
		want    KnotType
		wantErr bool
	}{
		{in: "trebol", want: KnotTrefoil},
		{in: "FIGURA_OCHO", want: KnotFigureEight},
		{in: " toroidal ", want: KnotToroidal},
		{in: "borromeo", want: KnotBorromean},
		{in: "hopf", want: KnotHopf},
		{in: "granny", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKnotType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKnotType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKnotInvariant(t *testing.T) {
	t.Run("empty knot", func(t *testing.T) {
		k := &Knot{Integrity: 0.9}
		assert.Equal(t, complex128(0), k.Invariant())
		assert.Equal(t, 0.0, k.Energy())
	})

	t.Run("sum of products rotated by integrity", func(t *testing.T) {
		s := 1 / math.Sqrt2
		k := &Knot{
			Integrity: math.Pi / 2,
			Cubits: []*Cubit{
				{Alpha: complex(s, 0), Beta: complex(s, 0)},
				{Alpha: 1, Beta: 0},
			},
		}
		inv := k.Invariant()
		// 0.5 rotated by pi/2 is 0.5i
		assert.InDelta(t, 0.0, real(inv), 1e-12)
		assert.InDelta(t, 0.5, imag(inv), 1e-12)
		assert.InDelta(t, 0.25, k.Energy(), 1e-12)
		assert.InDelta(t, 0.5, cmplx.Abs(inv), 1e-12)
	})
}

func TestKnotCoherent(t *testing.T) {
	k := &Knot{Cubits: []*Cubit{{Fidelity: 0.9}, {Fidelity: 0.95}}}
	assert.True(t, k.Coherent())

	k.Cubits = append(k.Cubits, &Cubit{Fidelity: 0.85})
	assert.False(t, k.Coherent())
}

func TestKnotFidelityVariance(t *testing.T) {
	assert.Equal(t, 0.0, (&Knot{}).FidelityVariance())

	k := &Knot{Cubits: []*Cubit{{Fidelity: 0.5}, {Fidelity: 1.0}}}
	assert.InDelta(t, 0.0625, k.FidelityVariance(), 1e-12)
}
