package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/san-kum/voltsim/internal/grid"
	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/mechanism"
	"github.com/san-kum/voltsim/internal/sim"
	"github.com/san-kum/voltsim/internal/waveform"
)

func (s SpeciesConfig) spec() mechanism.SpeciesSpec {
	return mechanism.SpeciesSpec{D: s.D, Bulk: s.Bulk, Charge: s.Charge, MolarMass: s.MolarMass}
}

func (k KineticsConfig) kinetics() (mechanism.Kinetics, error) {
	mode, err := mechanism.ParseMode(k.Mode)
	if err != nil {
		return mechanism.Kinetics{}, err
	}
	out := mechanism.Kinetics{Mode: mode, N: k.N, E0: k.E0, K0: k.K0, Alpha: k.Alpha}
	if out.N == 0 {
		out.N = 1
	}
	if out.Alpha == 0 {
		out.Alpha = 0.5
	}
	return out, nil
}

func terms(in []TermConfig) []mechanism.Coef {
	out := make([]mechanism.Coef, len(in))
	for i, t := range in {
		n := t.Count
		if n == 0 {
			n = 1
		}
		out[i] = mechanism.Coef{Species: t.Species, Count: n}
	}
	return out
}

// Draft turns the mechanism section into an uncompiled draft.
func (m MechanismConfig) Draft() (*mechanism.Draft, error) {
	if m.Tag != "" {
		mp := &mechanism.Mapping{
			Roles:   m.Roles,
			Species: make(map[string]mechanism.SpeciesSpec, len(m.Species)),
		}
		for _, s := range m.Species {
			mp.Species[s.Name] = s.spec()
		}
		for i, e := range m.ESteps {
			k, err := e.kinetics()
			if err != nil {
				return nil, fmt.Errorf("e_steps[%d]: %w", i, err)
			}
			mp.E = append(mp.E, k)
		}
		for _, c := range m.CSteps {
			mp.C = append(mp.C, mechanism.Rates{Kf: c.Kf, Kr: c.Kr})
		}
		return mechanism.FromTag(m.Tag, mp)
	}

	d := mechanism.NewDraft()
	for _, s := range m.Species {
		d.Species(s.Name, s.spec())
	}
	for i, e := range m.ESteps {
		k, err := e.kinetics()
		if err != nil {
			return nil, fmt.Errorf("e_steps[%d]: %w", i, err)
		}
		d.EStep(mechanism.EStepSpec{Oxidized: e.Oxidized, Reduced: e.Reduced, Kinetics: k})
	}
	for _, c := range m.CSteps {
		d.CStep(mechanism.CStepSpec{
			Reactants: terms(c.Reactants),
			Products:  terms(c.Products),
			Rates:     mechanism.Rates{Kf: c.Kf, Kr: c.Kr},
		})
	}
	return d, nil
}

// BuildMechanism compiles the mechanism section.
func (c *Config) BuildMechanism() (*mechanism.Mechanism, error) {
	d, err := c.Mechanism.Draft()
	if err != nil {
		return nil, err
	}
	return d.Compile()
}

// BuildWaveform generates the potential program.
func (c *Config) BuildWaveform() (waveform.Waveform, error) {
	w := c.Waveform
	switch w.Kind {
	case "cv":
		ret := w.Start
		if w.Return != nil {
			ret = *w.Return
		}
		return waveform.CVScan(w.Start, w.Vertex, ret, max(w.Cycles, 1), w.ScanRate, w.Dt)
	case "lsv":
		return waveform.LSVScan(w.Start, w.End, w.ScanRate, w.Dt)
	case "step":
		ts, err := waveform.UniformUntil(0, w.Duration, w.Dt)
		if err != nil {
			return nil, err
		}
		return waveform.Step(w.Start, w.End, w.TStep, ts)
	case "file":
		f, err := os.Open(w.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return waveform.ReadCSV(f)
	}
	return nil, fmt.Errorf("unknown waveform kind %q", w.Kind)
}

// BuildGrid sizes the grid for mechanism m over waveform w. An explicit node
// count wins; otherwise the grid follows the diffusion length and the
// largest time step the engine will take.
func (c *Config) BuildGrid(m *mechanism.Mechanism, w waveform.Waveform) (*grid.Grid, error) {
	maxD := m.MaxD()
	if c.Grid.Nodes > 0 {
		length := c.Grid.Length
		if length == 0 {
			length = 6 * math.Sqrt(maxD*w.Duration())
		}
		return grid.New(length, c.Grid.Nodes)
	}
	dt := w.MaxStep()
	if p := c.Engine.DtPolicy; p.Kind != "" && p.Kind != "fixed" && p.MaxDt > 0 {
		dt = math.Min(dt, p.MaxDt)
	}
	return grid.Auto(maxD, w.Duration(), dt, c.Grid.Lambda)
}

func (p DtPolicyConfig) policy() sim.DtPolicy {
	switch p.Kind {
	case "subdivide":
		return sim.Subdivide{MaxDt: p.MaxDt}
	case "refine":
		return sim.RefineNearVertex{MaxDt: p.MaxDt, Factor: p.Factor, Window: p.Window}
	}
	return sim.Fixed{}
}

// EngineOptions converts the engine section. A nil logger means the default.
func (c *Config) EngineOptions(logger *slog.Logger) (sim.Options, error) {
	e := c.Engine
	scheme, err := integrators.ParseScheme(e.Scheme)
	if err != nil {
		return sim.Options{}, err
	}
	split, err := kinetics.ParseSplitting(e.Splitting)
	if err != nil {
		return sim.Options{}, err
	}
	opts := sim.DefaultOptions()
	opts.Scheme = scheme
	opts.Splitting = split
	opts.DtPolicy = e.DtPolicy.policy()
	opts.Area = e.Area
	opts.Temperature = e.Temperature
	opts.SurfaceTolerance = e.SurfaceTolerance
	opts.SurfaceMaxIter = e.SurfaceMaxIter
	opts.SurfaceDamping = e.SurfaceDamping
	opts.ReactionTolerance = e.ReactionTolerance
	opts.ReactionMaxIter = e.ReactionMaxIter
	opts.SnapshotAt = append([]int(nil), e.Snapshots...)
	opts.Logger = logger
	return opts, nil
}
