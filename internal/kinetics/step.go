package kinetics

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/voltsim/internal/echem"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Splitting orders the reaction and diffusion sub-steps within a time step.
type Splitting int

const (
	// Lie runs diffuse(dt) then react(dt).
	Lie Splitting = iota
	// Strang runs react(dt/2), diffuse(dt), react(dt/2).
	Strang
)

func (s Splitting) String() string {
	if s == Strang {
		return "strang"
	}
	return "lie"
}

func ParseSplitting(name string) (Splitting, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lie":
		return Lie, nil
	case "strang":
		return Strang, nil
	}
	return Lie, fmt.Errorf("unknown splitting %q", name)
}

const (
	DefaultTolerance = 1e-10
	DefaultMaxIter   = 50
	expCacheSize     = 16
)

// Stepper advances node concentration vectors through one reaction
// sub-step. It caches matrix exponentials per dt and holds scratch space,
// so each engine owns its own Stepper.
type Stepper struct {
	net     *Network
	tol     float64
	maxIter int

	k        *mat.Dense
	expCache map[float64]*mat.Dense

	jac   *mat.Dense
	lu    mat.LU
	old   []float64
	cur   []float64
	deriv []float64
	res   *mat.VecDense
	delta *mat.VecDense
}

// NewStepper uses tol and maxIter for the Newton solve of nonlinear
// networks. Non-positive values select the defaults.
func NewStepper(net *Network, tol float64, maxIter int) *Stepper {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	n := net.Species()
	s := &Stepper{
		net:      net,
		tol:      tol,
		maxIter:  maxIter,
		expCache: make(map[float64]*mat.Dense),
		old:      make([]float64, n),
		cur:      make([]float64, n),
		deriv:    make([]float64, n),
	}
	if n > 0 {
		s.jac = mat.NewDense(n, n, nil)
		s.res = mat.NewVecDense(n, nil)
		s.delta = mat.NewVecDense(n, nil)
	}
	if net.Linear() && !net.Empty() {
		s.k = mat.NewDense(n, n, nil)
		net.Jacobian(s.old, s.k)
	}
	return s
}

func (s *Stepper) Network() *Network { return s.net }

func (s *Stepper) propagator(dt float64) *mat.Dense {
	if e, ok := s.expCache[dt]; ok {
		return e
	}
	if len(s.expCache) >= expCacheSize {
		clear(s.expCache)
	}
	var kdt, e mat.Dense
	kdt.Scale(dt, s.k)
	e.Exp(&kdt)
	s.expCache[dt] = &e
	return &e
}

// StepNode advances c in place by dt and returns the Newton iteration count
// (zero for the exponential update). When Newton fails c is left unchanged
// and the error wraps echem.ErrReactionNotConverged.
func (s *Stepper) StepNode(c []float64, dt float64) (int, error) {
	if s.net.Empty() || dt <= 0 {
		return 0, nil
	}
	if s.k != nil {
		e := s.propagator(dt)
		copy(s.old, c)
		src := mat.NewVecDense(len(c), s.old)
		dst := mat.NewVecDense(len(c), c)
		dst.MulVec(e, src)
		return 0, nil
	}
	return s.implicit(c, dt)
}

// implicit solves c − c_old − dt·S·r(c) = 0 by Newton from c_old.
func (s *Stepper) implicit(c []float64, dt float64) (int, error) {
	n := len(c)
	copy(s.old, c)
	copy(s.cur, c)
	scale := math.Max(floats.Norm(s.old, math.Inf(1)), 1e-300)

	for it := 1; it <= s.maxIter; it++ {
		s.net.Derivative(s.cur, s.deriv)
		for i := 0; i < n; i++ {
			s.res.SetVec(i, -(s.cur[i] - s.old[i] - dt*s.deriv[i]))
		}
		s.net.Jacobian(s.cur, s.jac)
		s.jac.Scale(-dt, s.jac)
		for i := 0; i < n; i++ {
			s.jac.Set(i, i, s.jac.At(i, i)+1)
		}
		s.lu.Factorize(s.jac)
		if err := s.lu.SolveVecTo(s.delta, false, s.res); err != nil {
			return it, fmt.Errorf("%w: %v", echem.ErrReactionNotConverged, err)
		}
		step := 0.0
		for i := 0; i < n; i++ {
			d := s.delta.AtVec(i)
			s.cur[i] += d
			step = math.Max(step, math.Abs(d))
		}
		if math.IsNaN(step) || math.IsInf(step, 0) {
			break
		}
		if step <= s.tol*scale {
			copy(c, s.cur)
			return it, nil
		}
	}
	return s.maxIter, fmt.Errorf("%w: no convergence in %d iterations", echem.ErrReactionNotConverged, s.maxIter)
}

// FieldReport summarizes one reaction sub-step over a whole field.
type FieldReport struct {
	Iterations   int
	MaxIter      int
	NonConverged int
}

// StepField reacts every node of the species-major fields, the far-field
// node included since it carries the homogeneous bulk solution. Nodes that
// fail keep their previous values; the returned error then wraps
// echem.ErrReactionNotConverged.
func (s *Stepper) StepField(fields [][]float64, dt float64) (FieldReport, error) {
	var rep FieldReport
	if s.net.Empty() || len(fields) == 0 {
		return rep, nil
	}
	nodes := len(fields[0])
	c := make([]float64, len(fields))
	var firstErr error
	for node := 0; node < nodes; node++ {
		for sp := range fields {
			c[sp] = fields[sp][node]
		}
		it, err := s.StepNode(c, dt)
		rep.Iterations += it
		rep.MaxIter = max(rep.MaxIter, it)
		if err != nil {
			rep.NonConverged++
			if firstErr == nil {
				firstErr = fmt.Errorf("node %d: %w", node, err)
			}
			continue
		}
		for sp := range fields {
			fields[sp][node] = c[sp]
		}
	}
	return rep, firstErr
}
