package boundary

import (
	"math"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/integrators"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// maxBacktrack caps the step halvings of the line search.
const maxBacktrack = 20

// network solves several coupled E-steps by damped Newton on the scaled
// unknowns [c for each participating species, φ for each E-step].
type network struct {
	md  *Model
	m   int
	k   int
	pos []int

	bal    []species
	g      []float64
	wO, wR []float64
	// last is the previous converged flux, dimensional, used as the
	// starting guess.
	last []float64

	x, trial   []float64
	res, rtry  []float64
	scale      []float64
	jac        *mat.Dense
	lu         mat.LU
	rhs, delta *mat.VecDense
}

func newNetwork(md *Model) *network {
	m, k := len(md.parts), md.mech.NumESteps()
	n := m + k
	nw := &network{
		md:    md,
		m:     m,
		k:     k,
		pos:   make([]int, md.mech.NumSpecies()),
		bal:   make([]species, m),
		g:     make([]float64, k),
		wO:    make([]float64, k),
		wR:    make([]float64, k),
		last:  make([]float64, k),
		x:     make([]float64, n),
		trial: make([]float64, n),
		res:   make([]float64, n),
		rtry:  make([]float64, n),
		scale: make([]float64, n),
		jac:   mat.NewDense(n, n, nil),
		rhs:   mat.NewVecDense(n, nil),
		delta: mat.NewVecDense(n, nil),
	}
	for i := range nw.pos {
		nw.pos[i] = -1
	}
	for i, s := range md.parts {
		nw.pos[s] = i
	}
	return nw
}

func (nw *network) residual(x, dst []float64) float64 {
	md := nw.md
	for i, s := range md.parts {
		r := nw.bal[i].a*x[i] - nw.bal[i].b
		for k := 0; k < nw.k; k++ {
			r -= nu(md.mech.EStep(k), s) * x[nw.m+k]
		}
		dst[i] = r
	}
	for k := 0; k < nw.k; k++ {
		e := md.mech.EStep(k)
		dst[nw.m+k] = nw.g[k]*x[nw.m+k] - nw.wO[k]*x[nw.pos[e.O]] + nw.wR[k]*x[nw.pos[e.R]]
	}
	return floats.Norm(dst, math.Inf(1))
}

// jacobian fills the row-equilibrated Jacobian and records the row scales.
func (nw *network) jacobian() {
	md := nw.md
	nw.jac.Zero()
	for i, s := range md.parts {
		nw.jac.Set(i, i, nw.bal[i].a)
		for k := 0; k < nw.k; k++ {
			nw.jac.Set(i, nw.m+k, -nu(md.mech.EStep(k), s))
		}
	}
	for k := 0; k < nw.k; k++ {
		e := md.mech.EStep(k)
		row := nw.m + k
		nw.jac.Set(row, row, nw.g[k])
		nw.jac.Set(row, nw.pos[e.O], nw.jac.At(row, nw.pos[e.O])-nw.wO[k])
		nw.jac.Set(row, nw.pos[e.R], nw.jac.At(row, nw.pos[e.R])+nw.wR[k])
	}
	n := nw.m + nw.k
	for i := 0; i < n; i++ {
		mx := 0.0
		for j := 0; j < n; j++ {
			mx = math.Max(mx, math.Abs(nw.jac.At(i, j)))
		}
		if mx == 0 {
			mx = 1
		}
		nw.scale[i] = 1 / mx
		for j := 0; j < n; j++ {
			nw.jac.Set(i, j, nw.jac.At(i, j)*nw.scale[i])
		}
	}
}

func (nw *network) ComputeFlux(in *Input, out *Solution) error {
	md := nw.md
	opts := md.opts
	cref := md.cref(in)
	sc := md.scaleFlux(in, cref)

	for k := 0; k < nw.k; k++ {
		nw.g[k], nw.wO[k], nw.wR[k] = md.kinetic(k, in.E, in.Dt)
		nw.x[nw.m+k] = nw.last[k] * sc
	}
	for i, s := range md.parts {
		nw.bal[i] = md.balance(in, s, cref)
		nw.x[i] = in.COld[s] / cref
	}

	norm := nw.residual(nw.x, nw.res)
	it := 0
	for ; norm > opts.Tolerance; it++ {
		if it >= opts.MaxIter {
			return &echem.SurfaceSolverDivergedError{Iterations: it, Residual: norm, Reason: "iteration cap reached"}
		}
		nw.jacobian()
		nw.lu.Factorize(nw.jac)
		if c := nw.lu.Cond(); c > conditionLimit || math.IsNaN(c) {
			return &echem.SurfaceSolverDivergedError{Iterations: it, Residual: norm, Reason: "ill-conditioned surface Jacobian"}
		}
		for i, r := range nw.res {
			nw.rhs.SetVec(i, -r*nw.scale[i])
		}
		if err := nw.lu.SolveVecTo(nw.delta, false, nw.rhs); err != nil {
			return &echem.SurfaceSolverDivergedError{Iterations: it, Residual: norm, Reason: err.Error()}
		}

		step := opts.Damping
		accepted := false
		for try := 0; try < maxBacktrack; try++ {
			for i := range nw.x {
				nw.trial[i] = nw.x[i] + step*nw.delta.AtVec(i)
			}
			tn := nw.residual(nw.trial, nw.rtry)
			if tn <= opts.Tolerance || tn < (1-1e-4*step)*norm {
				copy(nw.x, nw.trial)
				copy(nw.res, nw.rtry)
				norm = tn
				accepted = true
				break
			}
			step /= 2
		}
		if !accepted {
			return &echem.SurfaceSolverDivergedError{Iterations: it + 1, Residual: norm, Reason: "line search failed"}
		}
	}

	for i, s := range md.parts {
		out.C0[s] = nw.x[i] * cref
	}
	for k := 0; k < nw.k; k++ {
		out.J[k] = nw.x[nw.m+k] / sc
		nw.last[k] = out.J[k]
	}
	out.Iterations = it
	return nil
}

func (nw *network) AssembleBoundaryRow(sys *integrators.System, s int, sol *Solution) {
	if nw.md.isPar[s] {
		sys.SetDirichlet(0, sol.C0[s])
	}
}
