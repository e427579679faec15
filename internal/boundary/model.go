// Package boundary solves the electrode surface problem at x = 0: the surface
// concentrations of every species taking part in an E-step and one flux per
// E-step, consistent with the node-0 balance of the implicit diffusion step.
//
// Unknowns are scaled before solving: c = C/Cref and φ = J·2dt/(h·Cref),
// with J the mean reduction flux over the sub-step in mol/cm²/s. With
// λ = 2·D·dt/h² the node-0 balance of species s reads
//
//	c − c_old = θ·λ(c₁ − c) + (1−θ)·λ(c₁_old − c_old) + Σ ν·φ
//
// where c₁ = p + q·c comes from eliminating the interior rows. The flux is
// the sub-step mean rather than a θ-weighted end value: under Crank–Nicolson
// an end value obeys φ_n = 2φ̄ − φ_{n−1} and rings after any potential jump.
// Each E-step adds one kinetic row in the normalized Butler–Volmer form,
// evaluated at the end of the sub-step
//
//	g·φ = c_O·w_O − c_R·w_R,  g = h/(2·dt·k0·(e^{−αnfη} + e^{(1−α)nfη}))
//
// with w_O = 1/(1+e^{nfη}) and w_R = 1/(1+e^{−nfη}). Nernst steps use g = 0.
package boundary

import (
	"fmt"
	"math"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/mechanism"
)

// Kind names a boundary strategy.
type Kind int

const (
	// Inert keeps the zero-flux row for every species.
	Inert Kind = iota
	// Couple solves a single E-step in closed form.
	Couple
	// Network solves several E-steps by damped Newton.
	Network
)

func (k Kind) String() string {
	switch k {
	case Couple:
		return "couple"
	case Network:
		return "network"
	}
	return "inert"
}

const (
	DefaultTolerance = 1e-10
	DefaultMaxIter   = 50
	DefaultDamping   = 1.0
	// conditionLimit bounds the row-equilibrated Jacobian condition number.
	conditionLimit = 1e12
)

// Options configure the surface solve.
type Options struct {
	// Area of the electrode in cm².
	Area float64
	// Temperature in K.
	Temperature float64
	Tolerance   float64
	MaxIter     int
	// Damping scales the Newton step before any line search.
	Damping float64
}

func (o Options) withDefaults() Options {
	if o.Area <= 0 {
		o.Area = 1
	}
	if o.Temperature <= 0 {
		o.Temperature = echem.DefaultTemperature
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Damping <= 0 || o.Damping > 1 {
		o.Damping = DefaultDamping
	}
	return o
}

// Input is the state handed to the surface solve for one sub-step. Slices are
// indexed by species and dimensional.
type Input struct {
	E     float64
	Dt    float64
	Theta float64
	P     []float64
	Q     []float64
	COld  []float64
	C1Old []float64
}

// Solution is the converged surface state. J is the mean reduction flux over
// the sub-step, which is what the node-0 balance conserves for any θ.
type Solution struct {
	C0         []float64
	J          []float64
	Iterations int
}

// Condition is one boundary strategy.
type Condition interface {
	// ComputeFlux solves for surface concentrations and fluxes.
	ComputeFlux(in *Input, out *Solution) error
	// AssembleBoundaryRow writes the node-0 row of species s.
	AssembleBoundaryRow(sys *integrators.System, s int, sol *Solution)
}

// Model binds a locked mechanism to a grid spacing and a strategy. A Model
// keeps scratch space and belongs to a single engine.
type Model struct {
	mech  *mechanism.Mechanism
	h     float64
	opts  Options
	f     float64
	kind  Kind
	cond  Condition
	parts []int
	isPar []bool
}

// NewModel selects the strategy from the number of E-steps.
func NewModel(m *mechanism.Mechanism, h float64, opts Options) *Model {
	opts = opts.withDefaults()
	md := &Model{
		mech:  m,
		h:     h,
		opts:  opts,
		f:     echem.FRT(opts.Temperature),
		isPar: make([]bool, m.NumSpecies()),
	}
	for k := 0; k < m.NumESteps(); k++ {
		e := m.EStep(k)
		for _, s := range []int{e.O, e.R} {
			if !md.isPar[s] {
				md.isPar[s] = true
				md.parts = append(md.parts, s)
			}
		}
	}
	switch m.NumESteps() {
	case 0:
		md.kind = Inert
		md.cond = inert{}
	case 1:
		md.kind = Couple
		md.cond = &couple{md: md}
	default:
		md.kind = Network
		md.cond = newNetwork(md)
	}
	return md
}

func (md *Model) Kind() Kind           { return md.kind }
func (md *Model) Condition() Condition { return md.cond }
func (md *Model) F() float64           { return md.f }

// Participates reports whether species s takes part in an E-step.
func (md *Model) Participates(s int) bool { return md.isPar[s] }

// Participants lists the E-step species in first-use order.
func (md *Model) Participants() []int { return append([]int(nil), md.parts...) }

// NewSolution allocates a Solution sized for the mechanism.
func (md *Model) NewSolution() *Solution {
	return &Solution{
		C0: make([]float64, md.mech.NumSpecies()),
		J:  make([]float64, md.mech.NumESteps()),
	}
}

// Solve runs the strategy. On error out is left in an unspecified state.
func (md *Model) Solve(in *Input, out *Solution) error {
	if !(in.Dt > 0) {
		return fmt.Errorf("%w: non-positive dt %g", echem.ErrSurfaceSolverDiverged, in.Dt)
	}
	return md.cond.ComputeFlux(in, out)
}

// AssembleBoundaryRow delegates to the strategy.
func (md *Model) AssembleBoundaryRow(sys *integrators.System, s int, sol *Solution) {
	md.cond.AssembleBoundaryRow(sys, s, sol)
}

// Currents writes i_k = −n_k·F·A·J_k into dst and returns the total.
// Oxidation currents are positive.
func (md *Model) Currents(j, dst []float64) float64 {
	total := 0.0
	for k := range j {
		dst[k] = -float64(md.mech.EStep(k).N) * echem.Faraday * md.opts.Area * j[k]
		total += dst[k]
	}
	return total
}

// cref is the concentration scale of the surface unknowns.
func (md *Model) cref(in *Input) float64 {
	c := 0.0
	for _, s := range md.parts {
		c = math.Max(c, md.mech.Species(s).Bulk)
		c = math.Max(c, math.Abs(in.COld[s]))
	}
	if c == 0 || math.IsNaN(c) {
		return 1
	}
	return c
}

// kinetic returns the row coefficients of E-step k at potential e:
// g·φ − w_O·c_O + w_R·c_R = 0.
func (md *Model) kinetic(k int, e, dt float64) (g, wO, wR float64) {
	st := md.mech.EStep(k)
	x := float64(st.N) * md.f * (e - st.E0)
	wO = 1 / (1 + math.Exp(x))
	wR = 1 / (1 + math.Exp(-x))
	if st.Mode == mechanism.Nernst {
		return 0, wO, wR
	}
	a, b := -st.Alpha*x, (1-st.Alpha)*x
	hi, lo := math.Max(a, b), math.Min(a, b)
	kfac := st.K0 * math.Exp(hi+math.Log1p(math.Exp(lo-hi)))
	return md.h / (2 * dt * kfac), wO, wR
}

// species holds the linear node-0 balance c·A = B + Σν·φ̄ of one species.
// Diffusion is θ-weighted; the flux enters as its sub-step mean φ̄, so no
// flux from the previous sub-step is carried.
type species struct {
	a, b float64
}

func (md *Model) balance(in *Input, s int, cref float64) species {
	d := md.mech.Species(s).D
	lambda := 2 * d * in.Dt / (md.h * md.h)
	th := in.Theta
	cold := in.COld[s] / cref
	c1old := in.C1Old[s] / cref
	p := in.P[s] / cref
	return species{
		a: 1 + th*lambda*(1-in.Q[s]),
		b: cold + th*lambda*p + (1-th)*lambda*(c1old-cold),
	}
}

// nu is the reduction-direction stoichiometry of species s in step e.
func nu(e mechanism.EStep, s int) float64 {
	switch s {
	case e.O:
		return -1
	case e.R:
		return 1
	}
	return 0
}

func (md *Model) scaleFlux(in *Input, cref float64) float64 {
	return 2 * in.Dt / (md.h * cref)
}

type inert struct{}

func (inert) ComputeFlux(*Input, *Solution) error { return nil }

func (inert) AssembleBoundaryRow(*integrators.System, int, *Solution) {}
