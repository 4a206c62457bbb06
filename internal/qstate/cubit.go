// Package qstate holds the unit state model of the datacenter: cubits, the
// knots that own them, and the small derived computations over both.
// Nothing in this package performs I/O or locking; callers that share
// knots between goroutines serialize access themselves (see the
// datacenter package).
package qstate

import (
	"encoding/json"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"time"
)

// State is the discrete tag attached to a cubit.
type State string

const (
	// StateSuperposition marks a cubit with both amplitudes non-zero.
	StateSuperposition State = "superposicion"
	// StateEntangled marks a cubit that participates in a multi-unit state.
	StateEntangled State = "entrelazado"
	// StateCollapsed marks a cubit that has been measured.
	StateCollapsed State = "colapsado"
	// StateCoherent is the tag given to freshly prepared cubits.
	StateCoherent State = "coherente"
)

// Cubit is one simulated two-level unit.
//
// The norm invariant |Alpha|^2 + |Beta|^2 = 1 is not enforced here.
// Units produced by an oracle are normalized; the correction and
// optimization engines call Normalize explicitly. Direct construction
// leaves the amplitudes exactly as given.
type Cubit struct {
	CreatedAt time.Time  // Creation timestamp
	ID        string     // Unique within the owning knot, "<knot>_q<i>"
	State     State      // Discrete state tag
	Alpha     complex128 // Amplitude of |0>
	Beta      complex128 // Amplitude of |1>
	Phase     float64    // Radians
	Fidelity  float64    // Conceptually [0,1], not clamped on every mutation
}

// Norm returns |Alpha|^2 + |Beta|^2.
func (c *Cubit) Norm() float64 {
	a := cmplx.Abs(c.Alpha)
	b := cmplx.Abs(c.Beta)
	return a*a + b*b
}

// Normalize rescales both amplitudes to unit norm. It reports false and
// leaves the cubit untouched when both amplitudes are zero.
func (c *Cubit) Normalize() bool {
	n := math.Sqrt(c.Norm())
	if n == 0 {
		return false
	}
	c.Alpha /= complex(n, 0)
	c.Beta /= complex(n, 0)
	return true
}

// Measure samples the cubit in the computational basis, returning 0 with
// probability |Alpha|^2. The cubit itself is not collapsed.
func (c *Cubit) Measure(r *rand.Rand) int {
	p0 := cmplx.Abs(c.Alpha)
	if r.Float64() < p0*p0 {
		return 0
	}
	return 1
}

// Clone returns an independent copy of the cubit.
func (c *Cubit) Clone() *Cubit {
	cp := *c
	return &cp
}

// FormatAmplitude renders a complex amplitude as "<re>+<im>j" or
// "<re>-<im>j", the textual form used on the wire.
func FormatAmplitude(z complex128) string {
	return fmt.Sprintf("%v%+vj", real(z), imag(z))
}

type cubitJSON struct {
	ID        string  `json:"id"`
	State     State   `json:"estado"`
	Alpha     string  `json:"amplitud_alfa"`
	Beta      string  `json:"amplitud_beta"`
	Phase     float64 `json:"fase"`
	Fidelity  float64 `json:"fidelidad"`
	Timestamp string  `json:"timestamp"`
}

// MarshalJSON encodes the cubit with textual amplitudes.
func (c *Cubit) MarshalJSON() ([]byte, error) {
	return json.Marshal(cubitJSON{
		ID:        c.ID,
		State:     c.State,
		Alpha:     FormatAmplitude(c.Alpha),
		Beta:      FormatAmplitude(c.Beta),
		Phase:     c.Phase,
		Fidelity:  c.Fidelity,
		Timestamp: c.CreatedAt.Format(time.RFC3339Nano),
	})
}
