package integrators

import (
	"math"

	"github.com/san-kum/voltsim/internal/echem"
)

// pivotTol is the relative size below which a Thomas pivot counts as zero.
const pivotTol = 1e-13

// Solver solves tridiagonal systems by Thomas elimination. Row i reads
// lower[i]*x[i-1] + diag[i]*x[i] + upper[i]*x[i+1] = rhs[i]; lower[0] and
// upper[n-1] are ignored. Scratch space is reused between calls, so a Solver
// must not be shared between goroutines.
type Solver struct {
	cp, dp []float64
	p, q   []float64
}

func NewSolver() *Solver {
	return &Solver{}
}

func (s *Solver) ensureScratch(n int) {
	if len(s.cp) != n {
		s.cp = make([]float64, n)
		s.dp = make([]float64, n)
		s.p = make([]float64, n)
		s.q = make([]float64, n)
	}
}

func singular(m, a, b, c float64) bool {
	scale := math.Abs(a) + math.Abs(b) + math.Abs(c)
	return math.Abs(m) <= pivotTol*scale || scale == 0 || math.IsNaN(m)
}

// Solve writes the solution into dst (allocated when nil) and returns it.
// A vanishing pivot yields a *echem.SingularSystemError.
func (s *Solver) Solve(lower, diag, upper, rhs, dst []float64) ([]float64, error) {
	n := len(diag)
	s.ensureScratch(n)
	if dst == nil {
		dst = make([]float64, n)
	}

	m := diag[0]
	if singular(m, 0, diag[0], upper[0]) {
		return nil, &echem.SingularSystemError{Row: 0, Pivot: m}
	}
	s.cp[0] = upper[0] / m
	s.dp[0] = rhs[0] / m

	for i := 1; i < n; i++ {
		m = diag[i] - lower[i]*s.cp[i-1]
		up := 0.0
		if i < n-1 {
			up = upper[i]
		}
		if singular(m, lower[i], diag[i], up) {
			return nil, &echem.SingularSystemError{Row: i, Pivot: m}
		}
		s.cp[i] = up / m
		s.dp[i] = (rhs[i] - lower[i]*s.dp[i-1]) / m
	}

	dst[n-1] = s.dp[n-1]
	for i := n - 2; i >= 0; i-- {
		dst[i] = s.dp[i] - s.cp[i]*dst[i+1]
	}
	return dst, nil
}

// ReduceToSurface eliminates rows n-1 down to 1 and returns the affine map
// x[1] = p + q*x[0] they imply. Row 0 is not read. The electrode boundary
// uses it to solve for the surface value before the full solve.
func (s *Solver) ReduceToSurface(lower, diag, upper, rhs []float64) (p, q float64, err error) {
	n := len(diag)
	s.ensureScratch(n)

	last := n - 1
	if singular(diag[last], lower[last], diag[last], 0) {
		return 0, 0, &echem.SingularSystemError{Row: last, Pivot: diag[last]}
	}
	s.p[last] = rhs[last] / diag[last]
	s.q[last] = -lower[last] / diag[last]

	for i := last - 1; i >= 1; i-- {
		den := diag[i] + upper[i]*s.q[i+1]
		if singular(den, lower[i], diag[i], upper[i]) {
			return 0, 0, &echem.SingularSystemError{Row: i, Pivot: den}
		}
		s.p[i] = (rhs[i] - upper[i]*s.p[i+1]) / den
		s.q[i] = -lower[i] / den
	}
	return s.p[1], s.q[1], nil
}
