// Package grid builds the uniform 1D spatial discretization and its
// second-derivative operator.
package grid

import (
	"fmt"
	"math"

	"github.com/san-kum/voltsim/internal/echem"
	"gonum.org/v1/gonum/floats"
)

// MaxAutoNodes caps the node count chosen by Auto.
const MaxAutoNodes = 4000

// Grid is an immutable uniform grid x_0 = 0 < ... < x_{N-1} = L together with
// its tridiagonal Laplacian. Row i of the operator is
// Lower[i]*f[i-1] + Diag[i]*f[i] + Upper[i]*f[i+1].
type Grid struct {
	x     []float64
	h     float64
	lower []float64
	diag  []float64
	upper []float64
}

// New builds a grid of n nodes over [0, length].
func New(length float64, n int) (*Grid, error) {
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 nodes, got %d", echem.ErrInvalidGrid, n)
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return nil, fmt.Errorf("%w: length must be positive and finite, got %g", echem.ErrInvalidGrid, length)
	}

	g := &Grid{
		x:     make([]float64, n),
		h:     length / float64(n-1),
		lower: make([]float64, n),
		diag:  make([]float64, n),
		upper: make([]float64, n),
	}
	floats.Span(g.x, 0, length)

	inv := 1 / (g.h * g.h)
	for i := 1; i < n-1; i++ {
		g.lower[i] = inv
		g.diag[i] = -2 * inv
		g.upper[i] = inv
	}
	// Zero-flux ghost-node rows; the boundary model and the far-field
	// condition overwrite them in the assembled systems.
	g.diag[0], g.upper[0] = -2*inv, 2*inv
	g.lower[n-1], g.diag[n-1] = 2*inv, -2*inv

	return g, nil
}

// Auto sizes a grid for an experiment lasting duration seconds: the domain
// spans six diffusion lengths of the fastest species and the spacing keeps
// maxD*dt/h² at lambda. The node count is clamped to [3, MaxAutoNodes].
func Auto(maxD, duration, dt, lambda float64) (*Grid, error) {
	if !(maxD > 0) || !(duration > 0) || !(dt > 0) {
		return nil, fmt.Errorf("%w: auto sizing needs positive D, duration and dt", echem.ErrInvalidGrid)
	}
	if !(lambda > 0) {
		lambda = 0.45
	}
	length := 6 * math.Sqrt(maxD*duration)
	h := math.Sqrt(maxD * dt / lambda)
	n := int(math.Ceil(length/h)) + 1
	n = max(3, min(n, MaxAutoNodes))
	return New(length, n)
}

func (g *Grid) N() int          { return len(g.x) }
func (g *Grid) H() float64      { return g.h }
func (g *Grid) Length() float64 { return g.x[len(g.x)-1] }

// X returns the node position of index i.
func (g *Grid) X(i int) float64 { return g.x[i] }

// Nodes returns a copy of the node positions.
func (g *Grid) Nodes() []float64 {
	out := make([]float64, len(g.x))
	copy(out, g.x)
	return out
}

// Row returns the Laplacian coefficients of row i.
func (g *Grid) Row(i int) (lower, diag, upper float64) {
	return g.lower[i], g.diag[i], g.upper[i]
}

// Apply writes L·f into dst (allocated when nil) and returns it.
func (g *Grid) Apply(f, dst []float64) []float64 {
	n := len(g.x)
	if dst == nil {
		dst = make([]float64, n)
	}
	dst[0] = g.diag[0]*f[0] + g.upper[0]*f[1]
	for i := 1; i < n-1; i++ {
		dst[i] = g.lower[i]*f[i-1] + g.diag[i]*f[i] + g.upper[i]*f[i+1]
	}
	dst[n-1] = g.lower[n-1]*f[n-2] + g.diag[n-1]*f[n-1]
	return dst
}

// StabilityLimit is the explicit-scheme limit h²/(2·maxD). It is reported as
// a diagnostic; implicit schemes do not require it.
func (g *Grid) StabilityLimit(maxD float64) float64 {
	if maxD <= 0 {
		return math.Inf(1)
	}
	return g.h * g.h / (2 * maxD)
}

// Integrate returns the trapezoidal integral of f over the grid.
func (g *Grid) Integrate(f []float64) float64 {
	n := len(f)
	if n == 0 {
		return 0
	}
	sum := floats.Sum(f) - 0.5*(f[0]+f[n-1])
	return sum * g.h
}
