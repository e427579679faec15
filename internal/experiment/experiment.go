package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/grid"
	"github.com/san-kum/voltsim/internal/mechanism"
	"github.com/san-kum/voltsim/internal/sim"
	"github.com/san-kum/voltsim/internal/waveform"
)

// Experiment turns one config into a ready engine.
type Experiment struct {
	cfg    *config.Config
	mech   *mechanism.Mechanism
	wave   waveform.Waveform
	grid   *grid.Grid
	opts   sim.Options
	engine *sim.Engine
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup compiles the mechanism, generates the waveform, sizes the grid and
// attaches the metrics.
func (e *Experiment) Setup(logger *slog.Logger, metrics []sim.Metric) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	m, err := e.cfg.BuildMechanism()
	if err != nil {
		return fmt.Errorf("mechanism: %w", err)
	}
	w, err := e.cfg.BuildWaveform()
	if err != nil {
		return fmt.Errorf("waveform: %w", err)
	}
	g, err := e.cfg.BuildGrid(m, w)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	opts, err := e.cfg.EngineOptions(logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.mech, e.wave, e.grid, e.opts = m, w, g, opts
	e.engine = sim.New(m, g, opts)
	for _, mt := range metrics {
		e.engine.AddMetric(mt)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.engine == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.engine.Run(ctx, e.wave)
}

// Engine returns the underlying engine for adding observers.
func (e *Experiment) Engine() *sim.Engine { return e.engine }

func (e *Experiment) Config() *config.Config          { return e.cfg }
func (e *Experiment) Mechanism() *mechanism.Mechanism { return e.mech }
func (e *Experiment) Waveform() waveform.Waveform     { return e.wave }
func (e *Experiment) Grid() *grid.Grid                { return e.grid }
func (e *Experiment) Options() sim.Options            { return e.opts }

// Job packages the experiment for sim.Sweep.
func (e *Experiment) Job(name string, metrics []sim.Metric) sim.Job {
	return sim.Job{
		Name:      name,
		Mechanism: e.mech,
		Grid:      e.grid,
		Waveform:  e.wave,
		Options:   e.opts,
		Metrics:   metrics,
	}
}
