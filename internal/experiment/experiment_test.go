package experiment

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/sim"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func shortCV() *config.Config {
	cfg := config.GetPreset("e_reversible")
	cfg.Waveform.Start, cfg.Waveform.Vertex = 0.2, -0.2
	cfg.Waveform.Return = nil
	cfg.Waveform.Dt = 0.01
	return cfg
}

func TestExperimentRunsPreset(t *testing.T) {
	reg := NewRegistry()
	exp := New(shortCV())
	_, err := exp.Run(context.Background())
	assert.Error(t, err, "run before setup")

	require.NoError(t, exp.Setup(quiet(), reg.DefaultMetrics()))
	assert.NotNil(t, exp.Engine())
	assert.Equal(t, []string{"O", "R"}, exp.Mechanism().SpeciesNames())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(exp.Waveform()), res.Len())
	assert.Less(t, res.Metrics["peak_cathodic"], 0.0)
	assert.Greater(t, res.Metrics["peak_anodic"], 0.0)
	assert.Equal(t, 1.0, res.Metrics["clean_fraction"])
}

func TestSetupRejectsBadConfig(t *testing.T) {
	cfg := shortCV()
	cfg.Mechanism.ESteps[0].Reduced = "O"
	err := New(cfg).Setup(quiet(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mechanism")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"charge", "clean_fraction", "newton_iterations_mean", "peak_anodic", "peak_cathodic"}, reg.ListMetrics())

	a, err := reg.GetMetric("charge")
	require.NoError(t, err)
	b, err := reg.GetMetric("charge")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = reg.GetMetric("energy")
	assert.Error(t, err)

	ms, err := reg.Metrics(nil)
	require.NoError(t, err)
	assert.Len(t, ms, 4)
	_, err = reg.Metrics([]string{"charge", "nope"})
	assert.Error(t, err)
}

func TestSweepPoints(t *testing.T) {
	s, err := NewSweep([]string{"k0", "scan_rate"}, [][]float64{{1, 2}, {0.1, 0.2, 0.3}})
	require.NoError(t, err)
	pts := s.Points()
	require.Len(t, pts, 6)
	assert.Equal(t, map[string]float64{"k0": 1, "scan_rate": 0.1}, pts[0])
	assert.Equal(t, map[string]float64{"k0": 1, "scan_rate": 0.2}, pts[1])
	assert.Equal(t, map[string]float64{"k0": 2, "scan_rate": 0.3}, pts[5])
	assert.Equal(t, "k0=2,scan_rate=0.3", Point{Params: pts[5]}.Label(s.Params()))

	_, err = NewSweep([]string{"mass"}, [][]float64{{1}})
	assert.Error(t, err)
	_, err = NewSweep([]string{"k0"}, [][]float64{{}})
	assert.Error(t, err)
	_, err = NewSweep([]string{"k0"}, nil)
	assert.Error(t, err)
}

func TestSweepRun(t *testing.T) {
	base := shortCV()
	base.Mechanism.ESteps[0].Mode = "bv"
	base.Metrics = []string{"peak_cathodic"}

	s, err := NewSweep([]string{"k0"}, [][]float64{{1e-4, 1e-2, 1}})
	require.NoError(t, err)
	pts, err := s.Run(context.Background(), base, NewRegistry(), quiet(), 2)
	require.NoError(t, err)
	require.Len(t, pts, 3)

	// Faster transfer gives a larger cathodic peak.
	best, val, ok := Best(pts, "peak_cathodic")
	require.True(t, ok)
	assert.Equal(t, 1.0, best.Params["k0"])
	assert.Equal(t, val, pts[2].Result.Metrics["peak_cathodic"])

	// The base config is untouched.
	assert.Zero(t, base.Mechanism.ESteps[0].K0)

	_, _, ok = Best(pts, "missing")
	assert.False(t, ok)
}

func TestSweepObserverSeesEveryJob(t *testing.T) {
	s, err := NewSweep([]string{"scan_rate"}, [][]float64{{0.1, 0.2}})
	require.NoError(t, err)
	var samples atomic.Int64
	s.Observe(sim.ObserverFunc(func(sim.Record) { samples.Add(1) }))

	pts, err := s.Run(context.Background(), shortCV(), NewRegistry(), quiet(), 0)
	require.NoError(t, err)
	want := int64(pts[0].Result.Len() + pts[1].Result.Len())
	assert.Equal(t, want, samples.Load())
}
