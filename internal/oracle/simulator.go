package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/dreamware/knotdc/internal/qstate"
)

// Simulator prepares knots on a small dense statevector.
//
// Each unit gets an independent U3(theta, phi, lambda)|0> state with angles
// drawn from a source seeded by the payload hash, so the same payload always
// yields the same amplitudes. The joint state is built by flipping the
// qubits selected by the leading payload bits and then applying the gate
// pattern of the knot type; the entanglement matrix is derived from that
// joint state.
type Simulator struct{}

// NewSimulator returns a statevector oracle.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Prepare implements Oracle.
func (s *Simulator) Prepare(kind qstate.KnotType, payload []byte, units int) (*Preparation, error) {
	if units < 1 || units > MaxUnits {
		return nil, fmt.Errorf("%w: %d", ErrInvalidUnits, units)
	}
	if _, err := qstate.ParseKnotType(string(kind)); err != nil {
		return nil, err
	}

	rng := payloadSource(payload)
	prep := &Preparation{Units: make([]UnitAmplitudes, units)}
	for i := range prep.Units {
		theta := rng.Float64() * math.Pi
		phi := rng.Float64() * 2 * math.Pi
		lam := rng.Float64() * 2 * math.Pi
		prep.Units[i] = UnitAmplitudes{
			Alpha: complex(math.Cos(theta/2), 0),
			Beta:  cmplx.Exp(complex(0, phi)) * complex(math.Sin(theta/2), 0),
			Phase: lam,
		}
	}

	sv := newStatevector(units)
	for q, bit := range payloadBits(payload, units) {
		if bit {
			sv.x(q)
		}
	}
	applyPattern(sv, kind)

	prep.Entanglement = sv.entanglementMatrix()
	prep.Descriptor = qstate.Descriptor{Circuit: sv.gates, Qubits: units}
	return prep, nil
}

func payloadSource(payload []byte) *rand.Rand {
	sum := sha256.Sum256(payload)
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}

// payloadBits returns the first n bits of the payload, most significant bit
// of each byte first, zero padded.
func payloadBits(payload []byte, n int) []bool {
	bits := make([]bool, n)
	for i := 0; i < n && i/8 < len(payload); i++ {
		bits[i] = payload[i/8]&(0x80>>(i%8)) != 0
	}
	return bits
}

func applyPattern(sv *statevector, kind qstate.KnotType) {
	n := sv.n
	switch kind {
	case qstate.KnotTrefoil:
		sv.h(0)
		for i := 1; i < n; i++ {
			sv.cx(i-1, i)
		}
	case qstate.KnotFigureEight:
		for i := 0; i < n; i++ {
			sv.ry(math.Pi/3, i)
			sv.rz(math.Pi/4, i)
		}
		for i := 0; i < n-1; i++ {
			sv.cx(i, i+1)
		}
	case qstate.KnotToroidal:
		for i := 0; i < n; i++ {
			sv.h(i)
		}
		// A single qubit has no ring to close.
		for i := 0; i < n && n > 1; i++ {
			sv.cx(i, (i+1)%n)
		}
	case qstate.KnotBorromean:
		for i := 0; i < n; i++ {
			sv.rx(math.Pi/3, i)
		}
		for i := 0; i < n-1; i++ {
			sv.cz(i, i+1)
		}
		if n >= 3 {
			sv.ccx(0, 1, 2)
		}
	case qstate.KnotHopf:
		sv.h(0)
		for i := 1; i < n; i++ {
			sv.ry(math.Pi/4, i)
			sv.cz(0, i)
		}
	default:
		for i := 0; i < n; i++ {
			sv.h(i)
		}
	}
}
