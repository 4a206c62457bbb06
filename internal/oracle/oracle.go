// Package oracle prepares the simulated state of a knot. Given a knot type,
// a payload and a unit count it returns one amplitude pair per unit and the
// entanglement matrix of the joint state.
//
// The datacenter only depends on the Oracle interface. Simulator is the
// production implementation; Constant is a fixed, deterministic oracle for
// tests.
package oracle

import (
	"errors"
	"math"

	"github.com/dreamware/knotdc/internal/qstate"
)

// MaxUnits bounds the joint state size (2^MaxUnits amplitudes).
const MaxUnits = 8

// ErrInvalidUnits is returned when the requested unit count is outside
// [1, MaxUnits].
var ErrInvalidUnits = errors.New("unit count out of range")

// UnitAmplitudes is the prepared single-unit state.
type UnitAmplitudes struct {
	Alpha complex128
	Beta  complex128
	Phase float64
}

// Preparation is everything an oracle returns for one knot.
type Preparation struct {
	Units        []UnitAmplitudes
	Entanglement [][]float64
	Descriptor   qstate.Descriptor
}

// Oracle prepares knot states.
type Oracle interface {
	Prepare(kind qstate.KnotType, payload []byte, units int) (*Preparation, error)
}

// Constant returns every unit in the |+> state with zero phase and a zero
// entanglement matrix. It ignores the payload.
type Constant struct{}

// Prepare implements Oracle.
func (Constant) Prepare(kind qstate.KnotType, _ []byte, units int) (*Preparation, error) {
	if units < 1 || units > MaxUnits {
		return nil, ErrInvalidUnits
	}
	s := complex(1/math.Sqrt2, 0)
	p := &Preparation{
		Units:        make([]UnitAmplitudes, units),
		Entanglement: zeroMatrix(units),
		Descriptor:   qstate.Descriptor{Qubits: units},
	}
	for i := range p.Units {
		p.Units[i] = UnitAmplitudes{Alpha: s, Beta: s}
	}
	return p, nil
}

func zeroMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
