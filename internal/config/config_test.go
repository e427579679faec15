package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/sim"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	if cfg.Waveform.Dt <= 0 {
		t.Error("dt should be positive")
	}
	m, err := cfg.BuildMechanism()
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "R"}, m.SpeciesNames())
	assert.Equal(t, 1, m.NumESteps())
}

func TestPresetsBuild(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			require.NotNil(t, cfg)
			require.NoError(t, cfg.Validate())

			m, err := cfg.BuildMechanism()
			require.NoError(t, err)
			w, err := cfg.BuildWaveform()
			require.NoError(t, err)
			g, err := cfg.BuildGrid(m, w)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, g.N(), 3)
			_, err = cfg.EngineOptions(nil)
			require.NoError(t, err)
		})
	}
}

func TestGetPresetNotFound(t *testing.T) {
	assert.Nil(t, GetPreset("nonexistent"))
}

func TestGetPresetReturnsCopies(t *testing.T) {
	a := GetPreset("ec")
	a.Mechanism.Species[0].Bulk = 42
	b := GetPreset("ec")
	assert.NotEqual(t, 42.0, b.Mechanism.Species[0].Bulk)
}

func TestListPresets(t *testing.T) {
	assert.Equal(t, []string{"ce", "closed_ab", "e_quasi", "e_reversible", "ec", "ee"}, ListPresets())
}

func TestParseValidates(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing species",
			yaml: "waveform: {kind: lsv, start: 0.2, end: -0.2, scan_rate: 0.1, dt: 0.01}\n",
			want: "Species",
		},
		{
			name: "negative diffusion",
			yaml: `
mechanism:
  species: [{name: O, d: -1, bulk: 1e-6}]
waveform: {kind: lsv, start: 0.2, end: -0.2, scan_rate: 0.1, dt: 0.01}
`,
			want: "D",
		},
		{
			name: "unknown tag",
			yaml: `
mechanism:
  tag: ECE
  species: [{name: O, d: 1e-5, bulk: 1e-6}]
waveform: {kind: lsv, start: 0.2, end: -0.2, scan_rate: 0.1, dt: 0.01}
`,
			want: "mechtag",
		},
		{
			name: "bad scheme",
			yaml: `
mechanism:
  species: [{name: O, d: 1e-5, bulk: 1e-6}]
waveform: {kind: lsv, start: 0.2, end: -0.2, scan_rate: 0.1, dt: 0.01}
engine: {scheme: rk4}
`,
			want: "Scheme",
		},
		{
			name: "cv without scan rate",
			yaml: `
mechanism:
  species: [{name: O, d: 1e-5, bulk: 1e-6}]
waveform: {kind: cv, start: 0.2, vertex: -0.2, dt: 0.01}
`,
			want: "scan_rate",
		},
		{
			name: "file without path",
			yaml: `
mechanism:
  species: [{name: O, d: 1e-5, bulk: 1e-6}]
waveform: {kind: file, dt: 0.01}
`,
			want: "File",
		},
		{
			name: "step missing species",
			yaml: `
mechanism:
  species: [{name: O, d: 1e-5, bulk: 1e-6}]
  e_steps: [{o: O, mode: nernst}]
waveform: {kind: step, duration: 1, dt: 0.01}
`,
			want: "needs o and r",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseExplicitMechanism(t *testing.T) {
	cfg, err := Parse([]byte(`
name: dimer
mechanism:
  species:
    - {name: O, d: 1e-5, bulk: 1e-6}
    - {name: R, d: 1e-5}
    - {name: D, d: 5e-6}
  e_steps:
    - {o: O, r: R, mode: bv, k0: 0.01, alpha: 0.4, e0: -0.1}
  c_steps:
    - reactants: [{species: R, count: 2}]
      products: [{species: D}]
      kf: 1e6
waveform: {kind: lsv, start: 0.2, end: -0.4, scan_rate: 0.1, dt: 0.01}
engine: {scheme: be, splitting: strang, dt_policy: {kind: subdivide, max_dt: 0.005}, snapshots: [0, 10]}
`))
	require.NoError(t, err)

	m, err := cfg.BuildMechanism()
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "R", "D"}, m.SpeciesNames())
	e := m.EStep(0)
	assert.InDelta(t, 0.4, e.Alpha, 1e-15)
	assert.Equal(t, 1, e.N)
	c := m.CStep(0)
	assert.Equal(t, 2, c.Reactants[0].Order)

	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, integrators.BackwardEuler, opts.Scheme)
	assert.Equal(t, kinetics.Strang, opts.Splitting)
	assert.Equal(t, sim.Subdivide{MaxDt: 0.005}, opts.DtPolicy)
	assert.Equal(t, []int{0, 10}, opts.SnapshotAt)

	w, err := cfg.BuildWaveform()
	require.NoError(t, err)
	g, err := cfg.BuildGrid(m, w)
	require.NoError(t, err)
	// the grid follows the sub-step, not the sample spacing
	assert.InDelta(t, 0.45, 1e-5*0.005/(g.H()*g.H()), 0.05)
}

func TestMechanismErrorsSurface(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mechanism.ESteps[0].Reduced = "X"
	cfg.Mechanism.ESteps[0].Oxidized = "X"
	_, err := cfg.BuildMechanism()
	assert.ErrorIs(t, err, echem.ErrInvalidMechanism)

	cfg = GetPreset("ec")
	cfg.Mechanism.Roles = map[string]string{"O": "O"}
	_, err = cfg.BuildMechanism()
	assert.ErrorIs(t, err, echem.ErrAmbiguousMechanism)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("ee")
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "tag: EE"))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestFileWaveform(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "w.csv")
	require.NoError(t, os.WriteFile(csv, []byte("t,E\n0,0.2\n0.01,0.1\n0.02,0\n"), 0644))

	cfg := DefaultConfig()
	cfg.Waveform = WaveformConfig{Kind: "file", File: csv, Dt: 0.01}
	require.NoError(t, cfg.Validate())
	w, err := cfg.BuildWaveform()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.1, 0}, w.Potentials())
}

func TestPresetRuns(t *testing.T) {
	cfg := GetPreset("closed_ab")
	cfg.Waveform.Duration = 0.5
	m, err := cfg.BuildMechanism()
	require.NoError(t, err)
	w, err := cfg.BuildWaveform()
	require.NoError(t, err)
	g, err := cfg.BuildGrid(m, w)
	require.NoError(t, err)
	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)

	res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, opts)
	require.NoError(t, err)
	assert.True(t, res.Diagnostics.Closed)
	assert.Less(t, res.Diagnostics.MassBalanceResidual, 1e-9)
}

func TestClone(t *testing.T) {
	cfg := GetPreset("ec")
	cp := cfg.Clone()
	assert.Equal(t, cfg.Mechanism.Species, cp.Mechanism.Species)

	cp.Mechanism.Species[0].D = 1
	cp.Mechanism.Roles["O"] = "Q"
	*cp.Waveform.Return = 9
	assert.Equal(t, DefaultD, cfg.Mechanism.Species[0].D)
	assert.Equal(t, "O", cfg.Mechanism.Roles["O"])
	assert.Equal(t, 0.3, *cfg.Waveform.Return)
}
