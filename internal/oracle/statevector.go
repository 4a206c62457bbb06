package oracle

import (
	"fmt"
	"math"
	"math/cmplx"
)

// statevector is a dense n-qubit state. Qubit q is bit q of the basis
// index.
type statevector struct {
	amp   []complex128
	gates []string
	n     int
}

func newStatevector(n int) *statevector {
	amp := make([]complex128, 1<<n)
	amp[0] = 1
	return &statevector{n: n, amp: amp}
}

// apply1 applies the 2x2 matrix [[a, b], [c, d]] to qubit q.
func (s *statevector) apply1(q int, a, b, c, d complex128) {
	mask := 1 << q
	for i := range s.amp {
		if i&mask != 0 {
			continue
		}
		j := i | mask
		v0, v1 := s.amp[i], s.amp[j]
		s.amp[i] = a*v0 + b*v1
		s.amp[j] = c*v0 + d*v1
	}
}

func (s *statevector) x(q int) {
	s.gates = append(s.gates, fmt.Sprintf("x(%d)", q))
	s.apply1(q, 0, 1, 1, 0)
}

func (s *statevector) h(q int) {
	s.gates = append(s.gates, fmt.Sprintf("h(%d)", q))
	r := complex(1/math.Sqrt2, 0)
	s.apply1(q, r, r, r, -r)
}

func (s *statevector) rx(theta float64, q int) {
	s.gates = append(s.gates, fmt.Sprintf("rx(%.4f,%d)", theta, q))
	c := complex(math.Cos(theta/2), 0)
	ms := complex(0, -math.Sin(theta/2))
	s.apply1(q, c, ms, ms, c)
}

func (s *statevector) ry(theta float64, q int) {
	s.gates = append(s.gates, fmt.Sprintf("ry(%.4f,%d)", theta, q))
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	s.apply1(q, c, -sn, sn, c)
}

func (s *statevector) rz(theta float64, q int) {
	s.gates = append(s.gates, fmt.Sprintf("rz(%.4f,%d)", theta, q))
	s.apply1(q, cmplx.Exp(complex(0, -theta/2)), 0, 0, cmplx.Exp(complex(0, theta/2)))
}

// cx flips target where control is set.
func (s *statevector) cx(control, target int) {
	s.gates = append(s.gates, fmt.Sprintf("cx(%d,%d)", control, target))
	s.controlledX(1<<control, target)
}

func (s *statevector) ccx(c1, c2, target int) {
	s.gates = append(s.gates, fmt.Sprintf("ccx(%d,%d,%d)", c1, c2, target))
	s.controlledX(1<<c1|1<<c2, target)
}

func (s *statevector) controlledX(controls int, target int) {
	tmask := 1 << target
	for i := range s.amp {
		if i&controls != controls || i&tmask != 0 {
			continue
		}
		j := i | tmask
		s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
	}
}

func (s *statevector) cz(a, b int) {
	s.gates = append(s.gates, fmt.Sprintf("cz(%d,%d)", a, b))
	mask := 1<<a | 1<<b
	for i := range s.amp {
		if i&mask == mask {
			s.amp[i] = -s.amp[i]
		}
	}
}

// reduced returns the density matrix of the given qubits with every other
// qubit traced out. qubits[0] is the least significant bit of the result's
// basis index.
func (s *statevector) reduced(qubits ...int) [][]complex128 {
	d := 1 << len(qubits)
	rho := make([][]complex128, d)
	for i := range rho {
		rho[i] = make([]complex128, d)
	}

	var kept int
	for _, q := range qubits {
		kept |= 1 << q
	}
	embed := make([]int, d)
	for a := 0; a < d; a++ {
		for k, q := range qubits {
			if a&(1<<k) != 0 {
				embed[a] |= 1 << q
			}
		}
	}

	for rest := range s.amp {
		if rest&kept != 0 {
			continue
		}
		for a := 0; a < d; a++ {
			va := s.amp[rest|embed[a]]
			if va == 0 {
				continue
			}
			for b := 0; b < d; b++ {
				rho[a][b] += va * cmplx.Conj(s.amp[rest|embed[b]])
			}
		}
	}
	return rho
}

// purity returns Tr(rho^2) for a Hermitian rho.
func purity(rho [][]complex128) float64 {
	var p float64
	for _, row := range rho {
		for _, v := range row {
			a := cmplx.Abs(v)
			p += a * a
		}
	}
	return p
}

// entanglementMatrix places 1 - purity of each single-qubit reduction on
// the diagonal and 1 - purity of each pairwise reduction off the diagonal.
func (s *statevector) entanglementMatrix() [][]float64 {
	m := zeroMatrix(s.n)
	for i := 0; i < s.n; i++ {
		m[i][i] = math.Max(0, 1-purity(s.reduced(i)))
	}
	for i := 0; i < s.n; i++ {
		for j := i + 1; j < s.n; j++ {
			v := math.Max(0, 1-purity(s.reduced(i, j)))
			m[i][j] = v
			m[j][i] = v
		}
	}
	return m
}
