package integrators

import (
	"fmt"
	"strings"

	"github.com/san-kum/voltsim/internal/grid"
)

// Scheme selects the θ-method used for diffusion.
type Scheme int

const (
	CrankNicolson Scheme = iota
	BackwardEuler
)

// Theta is the implicit weight: 1 for Backward Euler, 0.5 for Crank–Nicolson.
func (s Scheme) Theta() float64 {
	if s == BackwardEuler {
		return 1
	}
	return 0.5
}

func (s Scheme) String() string {
	if s == BackwardEuler {
		return "backward-euler"
	}
	return "crank-nicolson"
}

// ParseScheme accepts "cn", "crank-nicolson", "be" and "backward-euler".
// The empty string selects Crank–Nicolson.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cn", "crank-nicolson", "cranknicolson":
		return CrankNicolson, nil
	case "be", "backward-euler", "backwardeuler", "implicit-euler":
		return BackwardEuler, nil
	}
	return CrankNicolson, fmt.Errorf("unknown scheme %q", name)
}

// System is one assembled tridiagonal system.
type System struct {
	Lower, Diag, Upper, RHS []float64
}

func NewSystem(n int) *System {
	return &System{
		Lower: make([]float64, n),
		Diag:  make([]float64, n),
		Upper: make([]float64, n),
		RHS:   make([]float64, n),
	}
}

func (s *System) N() int { return len(s.Diag) }

// SetRow overwrites row i.
func (s *System) SetRow(i int, lower, diag, upper, rhs float64) {
	s.Lower[i], s.Diag[i], s.Upper[i], s.RHS[i] = lower, diag, upper, rhs
}

// SetDirichlet pins node i to value.
func (s *System) SetDirichlet(i int, value float64) {
	s.SetRow(i, 0, 1, 0, value)
}

// Assemble fills sys (allocated when nil) with
// (I − θ·dt·D·L) C_new = (I + (1−θ)·dt·D·L) C_old.
// Row 0 keeps the grid's zero-flux row until a boundary condition replaces
// it. Row N−1 is Dirichlet at farField.
func Assemble(g *grid.Grid, field []float64, d, dt float64, scheme Scheme, farField float64, sys *System) *System {
	n := g.N()
	if sys == nil || sys.N() != n {
		sys = NewSystem(n)
	}
	theta := scheme.Theta()
	imp := theta * dt * d
	exp := (1 - theta) * dt * d

	for i := 0; i < n-1; i++ {
		lo, di, up := g.Row(i)
		sys.Lower[i] = -imp * lo
		sys.Diag[i] = 1 - imp*di
		sys.Upper[i] = -imp * up

		r := field[i] + exp*di*field[i]
		if i > 0 {
			r += exp * lo * field[i-1]
		}
		r += exp * up * field[i+1]
		sys.RHS[i] = r
	}
	sys.Lower[0] = 0
	sys.SetDirichlet(n-1, farField)
	return sys
}

// Diffuser advances single-species fields with a reusable system and solver.
type Diffuser struct {
	grid   *grid.Grid
	sys    *System
	solver *Solver
}

func NewDiffuser(g *grid.Grid) *Diffuser {
	return &Diffuser{grid: g, sys: NewSystem(g.N()), solver: NewSolver()}
}

func (df *Diffuser) Grid() *grid.Grid { return df.grid }

// System is the last assembled system. Boundary conditions edit it in place
// before Solve.
func (df *Diffuser) System() *System { return df.sys }

// Assemble builds the system for field into the diffuser's buffer.
func (df *Diffuser) Assemble(field []float64, d, dt float64, scheme Scheme, farField float64) *System {
	df.sys = Assemble(df.grid, field, d, dt, scheme, farField, df.sys)
	return df.sys
}

// Reduce returns the surface map C_1 = p + q·C_0 of the assembled system.
func (df *Diffuser) Reduce() (p, q float64, err error) {
	s := df.sys
	return df.solver.ReduceToSurface(s.Lower, s.Diag, s.Upper, s.RHS)
}

// Solve solves the assembled system into dst.
func (df *Diffuser) Solve(dst []float64) ([]float64, error) {
	s := df.sys
	return df.solver.Solve(s.Lower, s.Diag, s.Upper, s.RHS, dst)
}

// Step advances field by dt with zero flux at x = 0 and the far-field node
// held at its current value.
func (df *Diffuser) Step(field []float64, d, dt float64, scheme Scheme) ([]float64, error) {
	df.Assemble(field, d, dt, scheme, field[len(field)-1])
	return df.Solve(nil)
}

// Step is the one-shot form of Diffuser.Step.
func Step(g *grid.Grid, field []float64, d, dt float64, scheme Scheme) ([]float64, error) {
	return NewDiffuser(g).Step(field, d, dt, scheme)
}
