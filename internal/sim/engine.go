package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/voltsim/internal/boundary"
	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/grid"
	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/mechanism"
	"github.com/san-kum/voltsim/internal/waveform"
)

// State is the mutable state of one run.
type State struct {
	// Fields[s][node] is the concentration of species s.
	Fields [][]float64
	// Surface caches the last accepted surface concentrations.
	Surface []float64
	// Flux holds the mean reduction flux per E-step over the last
	// converged sub-step.
	Flux []float64
}

// Engine advances one mechanism on one grid through a waveform. The
// mechanism and grid are shared read-only; everything else is per run.
type Engine struct {
	mech      *mechanism.Mechanism
	grid      *grid.Grid
	opts      Options
	metrics   []Metric
	observers []Observer
}

func New(m *mechanism.Mechanism, g *grid.Grid, opts Options) *Engine {
	return &Engine{
		mech:      m,
		grid:      g,
		opts:      opts.withDefaults(),
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (e *Engine) AddMetric(m Metric)     { e.metrics = append(e.metrics, m) }
func (e *Engine) AddObserver(o Observer) { e.observers = append(e.observers, o) }

// SimulatePlanar1D runs mechanism m on grid g through waveform w.
func SimulatePlanar1D(ctx context.Context, m *mechanism.Mechanism, g *grid.Grid, w waveform.Waveform, opts Options) (*Result, error) {
	return New(m, g, opts).Run(ctx, w)
}

// run holds the per-run working set.
type run struct {
	e        *Engine
	log      *slog.Logger
	state    State
	diff     []*integrators.Diffuser
	bnd      *boundary.Model
	in       *boundary.Input
	sol      *boundary.Solution
	react    *kinetics.Stepper
	smooth   int
	cscale   float64
	snapAt   map[int]bool
	res      *Result
	diag     *Diagnostics
	currents []float64
}

// Run validates the waveform, locks the mechanism and simulates every
// sample. Cancellation is honored between samples and returns the records so
// far with the context error. A singular banded system aborts with
// *SimulationAbortedError; every other numerical problem is flagged.
func (e *Engine) Run(ctx context.Context, w waveform.Waveform) (*Result, error) {
	if e.mech == nil || e.grid == nil {
		return nil, errors.New("sim: engine needs a mechanism and a grid")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	e.mech.Lock()

	start := time.Now()
	r := e.newRun(len(w))
	defer e.opts.Pool.Put(r.state.Fields)

	info := RunInfo{Samples: len(w), Species: r.res.Species, Observables: r.res.Observables, Duration: w.Duration()}
	for _, o := range e.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.OnRunStart(info)
		}
	}
	for _, m := range e.metrics {
		m.Reset()
	}
	r.log.Info("run started",
		"samples", len(w),
		"species", e.mech.NumSpecies(),
		"nodes", e.grid.N(),
		"boundary", r.bnd.Kind().String(),
		"scheme", e.opts.Scheme.String(),
		"splitting", e.opts.Splitting.String())

	plan := e.opts.DtPolicy.Plan(w)
	initial := r.conservedTotals()

	r.record(0, w[0], 0, 0)
	r.smooth = StartupSubsteps
	var runErr error
	for i := 1; i < len(w); i++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}
		flags, iters, err := r.sample(w[i-1], w[i], max(plan[i], 1), i)
		if err != nil {
			runErr = &SimulationAbortedError{Sample: i, Time: w[i].T, Partial: r.res, Err: err}
			break
		}
		r.record(i, w[i], flags, iters)
	}

	r.finish(initial, start)
	for _, o := range e.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.OnRunEnd(r.res, runErr)
		}
	}
	if runErr != nil {
		r.log.Error("run stopped", "err", runErr, "samples", len(r.res.Records))
		return r.res, runErr
	}

	d := r.diag
	if !d.Clean() {
		r.log.Warn("run finished with flagged samples",
			"negative", d.NegativeSamples,
			"surface_non_converged", d.SurfaceNonConverged,
			"reaction_non_converged", d.ReactionNonConverged)
	}
	r.log.Info("run finished", "samples", d.Samples, "elapsed", r.res.Elapsed, "newton_iterations", d.NewtonIterations)
	return r.res, nil
}

func (e *Engine) newRun(samples int) *run {
	m, g := e.mech, e.grid
	ns, nk, n := m.NumSpecies(), m.NumESteps(), g.N()

	r := &run{
		e:   e,
		log: e.opts.Logger.With("component", "engine"),
		state: State{
			Fields:  e.opts.Pool.Get(ns, n),
			Surface: make([]float64, ns),
			Flux:    make([]float64, nk),
		},
		diff: make([]*integrators.Diffuser, ns),
		bnd: boundary.NewModel(m, g.H(), boundary.Options{
			Area:        e.opts.Area,
			Temperature: e.opts.Temperature,
			Tolerance:   e.opts.SurfaceTolerance,
			MaxIter:     e.opts.SurfaceMaxIter,
			Damping:     e.opts.SurfaceDamping,
		}),
		in: &boundary.Input{
			P:     make([]float64, ns),
			Q:     make([]float64, ns),
			COld:  make([]float64, ns),
			C1Old: make([]float64, ns),
		},
		react:    kinetics.NewStepper(m.Network(), e.opts.ReactionTolerance, e.opts.ReactionMaxIter),
		snapAt:   make(map[int]bool, len(e.opts.SnapshotAt)),
		currents: make([]float64, nk),
	}
	r.sol = r.bnd.NewSolution()
	for s := 0; s < ns; s++ {
		bulk := m.Species(s).Bulk
		for i := range r.state.Fields[s] {
			r.state.Fields[s][i] = bulk
		}
		r.state.Surface[s] = bulk
		r.diff[s] = integrators.NewDiffuser(g)
		r.cscale = math.Max(r.cscale, bulk)
	}
	if r.cscale == 0 {
		r.cscale = 1
	}
	for _, i := range e.opts.SnapshotAt {
		r.snapAt[i] = true
	}

	obs := m.Observables()
	names := make([]string, len(obs))
	for k, o := range obs {
		names[k] = o.Name
	}
	r.res = &Result{
		Species:     m.SpeciesNames(),
		Observables: names,
		Records:     make([]Record, 0, samples),
		Metrics:     make(map[string]float64),
	}
	r.diag = &r.res.Diagnostics
	r.diag.Closed = m.Closed()
	r.diag.StabilityLimit = g.StabilityLimit(m.MaxD())
	r.diag.MinConcentration = math.Inf(1)
	r.diag.MinSubstep = math.Inf(1)
	r.minConcentration()
	return r
}

// sample advances from prev to cur in n equal sub-steps with the potential
// interpolated linearly.
func (r *run) sample(prev, cur waveform.Sample, n, index int) (Flags, int, error) {
	var flags Flags
	iters := 0
	h := (cur.T - prev.T) / float64(n)
	if r.bnd.F()*math.Abs(cur.E-prev.E) > JumpThreshold {
		r.smooth = max(r.smooth, StartupSubsteps)
	}
	r.diag.MinSubstep = math.Min(r.diag.MinSubstep, h)
	r.diag.Substeps += n

	for j := 1; j <= n; j++ {
		e := prev.E + (cur.E-prev.E)*float64(j)/float64(n)
		if r.e.opts.Splitting == kinetics.Strang {
			flags |= r.reactAll(h/2, index)
		}

		it, diverged, err := r.diffuse(e, h)
		if err != nil {
			return flags, iters, err
		}
		iters += it
		if diverged {
			flags |= FlagSurfaceDiverged
		}

		if r.e.opts.Splitting == kinetics.Strang {
			flags |= r.reactAll(h/2, index)
		} else {
			flags |= r.reactAll(h, index)
		}
	}

	if r.minConcentration() < -r.e.opts.NegativeTolerance*r.cscale {
		flags |= FlagNegative
	}
	if flags.Has(FlagSurfaceDiverged) {
		r.diag.SurfaceNonConverged++
		r.diag.SurfaceNonConvergedAt = append(r.diag.SurfaceNonConvergedAt, index)
	}
	if flags.Has(FlagReactionDiverged) {
		r.diag.ReactionNonConverged++
		r.diag.ReactionNonConvergedAt = append(r.diag.ReactionNonConvergedAt, index)
	}
	if flags.Has(FlagNegative) {
		r.diag.NegativeSamples++
	}
	return flags, iters, nil
}

// diffuse assembles every species, solves the surface problem and then the
// banded systems. Only banded-solver failures are returned.
func (r *run) diffuse(e, dt float64) (int, bool, error) {
	m := r.e.mech
	fields := r.state.Fields
	scheme := r.e.opts.Scheme
	if r.smooth > 0 {
		r.smooth--
		if scheme != integrators.BackwardEuler {
			scheme = integrators.BackwardEuler
			r.diag.StartupSubsteps++
		}
	}
	for s := range fields {
		sp := m.Species(s)
		// The far-field node holds the bulk solution, which may itself react.
		r.diff[s].Assemble(fields[s], sp.D, dt, scheme, fields[s][len(fields[s])-1])
		if !r.bnd.Participates(s) {
			continue
		}
		p, q, err := r.diff[s].Reduce()
		if err != nil {
			return 0, false, fmt.Errorf("species %s: %w", sp.Name, err)
		}
		r.in.P[s], r.in.Q[s] = p, q
		r.in.COld[s] = fields[s][0]
		r.in.C1Old[s] = fields[s][1]
	}

	diverged := false
	iters := 0
	if r.bnd.Kind() != boundary.Inert {
		r.in.E, r.in.Dt, r.in.Theta = e, dt, scheme.Theta()
		if err := r.bnd.Solve(r.in, r.sol); err != nil {
			diverged = true
			var de *echem.SurfaceSolverDivergedError
			if errors.As(err, &de) {
				iters = de.Iterations
			}
			r.log.Debug("surface solve failed, reusing previous surface state", "e", e, "err", err)
			copy(r.sol.C0, r.state.Surface)
			copy(r.sol.J, r.state.Flux)
		} else {
			iters = r.sol.Iterations
			copy(r.state.Flux, r.sol.J)
		}
	}

	for s := range fields {
		r.bnd.AssembleBoundaryRow(r.diff[s].System(), s, r.sol)
		if _, err := r.diff[s].Solve(fields[s]); err != nil {
			return iters, diverged, fmt.Errorf("species %s: %w", m.Species(s).Name, err)
		}
		r.state.Surface[s] = fields[s][0]
	}
	return iters, diverged, nil
}

func (r *run) reactAll(dt float64, index int) Flags {
	rep, err := r.react.StepField(r.state.Fields, dt)
	r.diag.NewtonIterations += rep.Iterations
	r.diag.MaxNewtonIterations = max(r.diag.MaxNewtonIterations, rep.MaxIter)
	if err != nil {
		r.log.Debug("reaction sub-step did not converge", "sample", index, "nodes", rep.NonConverged, "err", err)
		return FlagReactionDiverged
	}
	return 0
}

func (r *run) minConcentration() float64 {
	lo := math.Inf(1)
	for _, f := range r.state.Fields {
		for _, v := range f {
			lo = math.Min(lo, v)
		}
	}
	r.diag.MinConcentration = math.Min(r.diag.MinConcentration, lo)
	return lo
}

func (r *run) record(index int, s waveform.Sample, flags Flags, iters int) {
	total := 0.0
	if index > 0 && len(r.currents) > 0 {
		total = r.bnd.Currents(r.state.Flux, r.currents)
	}
	rec := Record{
		Index:            index,
		T:                s.T,
		E:                s.E,
		StepCurrents:     append([]float64(nil), r.currents...),
		Total:            total,
		Flags:            flags,
		NewtonIterations: iters,
	}
	r.diag.NewtonIterations += iters
	r.diag.MaxNewtonIterations = max(r.diag.MaxNewtonIterations, iters)
	r.diag.Samples++
	r.res.Records = append(r.res.Records, rec)

	if r.snapAt[index] {
		r.res.Snapshots = append(r.res.Snapshots, r.snapshot(index, s.T))
	}
	for _, m := range r.e.metrics {
		m.Observe(rec)
	}
	for _, o := range r.e.observers {
		o.OnSample(rec)
	}
}

func (r *run) snapshot(index int, t float64) Snapshot {
	fields := r.state.Fields
	n := r.e.grid.N()
	c := make([][]float64, n)
	for node := 0; node < n; node++ {
		c[node] = make([]float64, len(fields))
		for s := range fields {
			c[node][s] = fields[s][node]
		}
	}
	return Snapshot{Index: index, T: t, C: c}
}

// conservedTotals projects the integrated species amounts onto the
// conserved combinations of the homogeneous network.
func (r *run) conservedTotals() []float64 {
	amounts := make([]float64, len(r.state.Fields))
	for s, f := range r.state.Fields {
		amounts[s] = r.e.grid.Integrate(f)
	}
	return kinetics.Totals(r.react.Network().Conserved(), amounts)
}

func (r *run) finish(initial []float64, start time.Time) {
	final := r.conservedTotals()
	scale, worst := 0.0, 0.0
	for k := range initial {
		scale = math.Max(scale, math.Abs(initial[k]))
		worst = math.Max(worst, math.Abs(final[k]-initial[k]))
	}
	if scale > 0 {
		r.diag.MassBalanceResidual = worst / scale
	}
	for _, m := range r.e.metrics {
		r.res.Metrics[m.Name()] = m.Value()
	}
	r.res.Elapsed = time.Since(start)
}
