package qstate

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"
)

// ErrUnknownKnotType is returned when a knot type tag is not recognised.
var ErrUnknownKnotType = errors.New("unknown knot type")

// KnotType is the topological pattern used to prepare a knot.
type KnotType string

const (
	KnotTrefoil     KnotType = "trebol"
	KnotFigureEight KnotType = "figura_ocho"
	KnotToroidal    KnotType = "toroidal"
	KnotBorromean   KnotType = "borromeo"
	KnotHopf        KnotType = "hopf"
)

// KnotTypes lists every supported pattern in a stable order.
var KnotTypes = []KnotType{KnotTrefoil, KnotFigureEight, KnotToroidal, KnotBorromean, KnotHopf}

// ParseKnotType accepts a knot type tag case-insensitively.
func ParseKnotType(s string) (KnotType, error) {
	t := KnotType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnotTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKnotType, s)
}

// Descriptor is the opaque state description an oracle returns alongside
// the amplitudes. The datacenter stores it but never interprets it.
type Descriptor struct {
	Circuit []string `json:"circuito,omitempty"` // Gate sequence, e.g. "h(0)", "cx(0,1)"
	Qubits  int      `json:"qubits"`
}

// Knot is an ordered group of cubits with a topological type, an integrity
// score and the entanglement matrix derived from its prepared state.
//
// A knot exclusively owns its cubits. Connections name other knots by
// index and are never checked for existence.
type Knot struct {
	ID           string
	Type         KnotType
	Cubits       []*Cubit
	Connections  []int
	Integrity    float64
	Entanglement [][]float64 // N x N, symmetric
	Descriptor   Descriptor
}

// Invariant returns (sum of alpha*beta over all cubits) * e^{i*integrity}.
// An empty knot has invariant zero.
func (k *Knot) Invariant() complex128 {
	if len(k.Cubits) == 0 {
		return 0
	}
	var sum complex128
	for _, c := range k.Cubits {
		sum += c.Alpha * c.Beta
	}
	return sum * cmplx.Exp(complex(0, k.Integrity))
}

// Energy returns |Invariant()|^2, the knot's contribution to its crystal's
// energy.
func (k *Knot) Energy() float64 {
	a := cmplx.Abs(k.Invariant())
	return a * a
}

// Coherent reports whether every cubit has fidelity above 0.85.
func (k *Knot) Coherent() bool {
	for _, c := range k.Cubits {
		if c.Fidelity <= 0.85 {
			return false
		}
	}
	return true
}

// FidelityVariance returns the population variance of the cubit
// fidelities, or 0 for an empty knot.
func (k *Knot) FidelityVariance() float64 {
	n := float64(len(k.Cubits))
	if n == 0 {
		return 0
	}
	var mean float64
	for _, c := range k.Cubits {
		mean += c.Fidelity
	}
	mean /= n
	var acc float64
	for _, c := range k.Cubits {
		d := c.Fidelity - mean
		acc += d * d
	}
	return acc / n
}
