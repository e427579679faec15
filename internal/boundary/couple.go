package boundary

import (
	"math"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/integrators"
)

// couple solves a single O + n e ⇌ R step exactly. Both node-0 balances are
// linear in (c_O, c_R, φ), so eliminating the concentrations leaves one
// equation for φ.
type couple struct {
	md *Model
}

func (c *couple) ComputeFlux(in *Input, out *Solution) error {
	md := c.md
	e := md.mech.EStep(0)
	cref := md.cref(in)
	sc := md.scaleFlux(in, cref)

	o := md.balance(in, e.O, cref)
	r := md.balance(in, e.R, cref)
	g, wO, wR := md.kinetic(0, in.E, in.Dt)

	phi := (wO*o.b/o.a - wR*r.b/r.a) / (g + wO/o.a + wR/r.a)
	cO := (o.b - phi) / o.a
	cR := (r.b + phi) / r.a
	if math.IsNaN(phi+cO+cR) || math.IsInf(phi+cO+cR, 0) {
		return &echem.SurfaceSolverDivergedError{Reason: "non-finite closed-form solution"}
	}

	out.C0[e.O] = cO * cref
	out.C0[e.R] = cR * cref
	out.J[0] = phi / sc
	out.Iterations = 0
	return nil
}

func (c *couple) AssembleBoundaryRow(sys *integrators.System, s int, sol *Solution) {
	if c.md.isPar[s] {
		sys.SetDirichlet(0, sol.C0[s])
	}
}
