package sim

import (
	"strings"
	"time"
)

// Flags mark a sample whose numbers should not be trusted.
type Flags uint8

const (
	// FlagNegative marks a concentration below the negativity tolerance.
	FlagNegative Flags = 1 << iota
	// FlagSurfaceDiverged marks a failed surface solve; the previous surface
	// state was reused.
	FlagSurfaceDiverged
	// FlagReactionDiverged marks a reaction sub-step that kept old values at
	// some node.
	FlagReactionDiverged
)

func (f Flags) Has(x Flags) bool { return f&x != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "ok"
	}
	var parts []string
	if f.Has(FlagNegative) {
		parts = append(parts, "negative")
	}
	if f.Has(FlagSurfaceDiverged) {
		parts = append(parts, "surface-diverged")
	}
	if f.Has(FlagReactionDiverged) {
		parts = append(parts, "reaction-diverged")
	}
	return strings.Join(parts, "|")
}

// Record is the output of one waveform sample. Currents are in A with
// oxidation positive.
type Record struct {
	Index            int       `json:"index"`
	T                float64   `json:"t"`
	E                float64   `json:"e"`
	StepCurrents     []float64 `json:"step_currents"`
	Total            float64   `json:"total"`
	Flags            Flags     `json:"flags"`
	NewtonIterations int       `json:"newton_iterations"`
}

// Snapshot holds the concentration profile after a sample as C[node][species].
type Snapshot struct {
	Index int         `json:"index"`
	T     float64     `json:"t"`
	C     [][]float64 `json:"c"`
}

// Diagnostics summarize a run.
type Diagnostics struct {
	Samples                int     `json:"samples"`
	NegativeSamples        int     `json:"negative_samples"`
	MinConcentration       float64 `json:"min_concentration"`
	SurfaceNonConverged    int     `json:"surface_non_converged"`
	SurfaceNonConvergedAt  []int   `json:"surface_non_converged_at,omitempty"`
	ReactionNonConverged   int     `json:"reaction_non_converged"`
	ReactionNonConvergedAt []int   `json:"reaction_non_converged_at,omitempty"`
	NewtonIterations       int     `json:"newton_iterations"`
	MaxNewtonIterations    int     `json:"max_newton_iterations"`
	MassBalanceResidual    float64 `json:"mass_balance_residual"`
	Closed                 bool    `json:"closed"`
	StabilityLimit         float64 `json:"stability_limit"`
	MinSubstep             float64 `json:"min_substep"`
	Substeps               int     `json:"substeps"`
	// StartupSubsteps counts sub-steps run as Backward Euler after the
	// start or a potential jump.
	StartupSubsteps int `json:"startup_substeps"`
}

// Clean reports a run without flagged samples.
func (d Diagnostics) Clean() bool {
	return d.NegativeSamples == 0 && d.SurfaceNonConverged == 0 && d.ReactionNonConverged == 0
}

// Result is the finalized output of a run. It is read-only once returned.
type Result struct {
	Species     []string           `json:"species"`
	Observables []string           `json:"observables"`
	Records     []Record           `json:"records"`
	Snapshots   []Snapshot         `json:"snapshots,omitempty"`
	Diagnostics Diagnostics        `json:"diagnostics"`
	Metrics     map[string]float64 `json:"metrics"`
	Elapsed     time.Duration      `json:"elapsed"`
}

func (r *Result) Len() int { return len(r.Records) }

func (r *Result) Times() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.T
	}
	return out
}

func (r *Result) Potentials() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.E
	}
	return out
}

func (r *Result) TotalCurrent() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Total
	}
	return out
}

// StepCurrent is the current trace of E-step k.
func (r *Result) StepCurrent(k int) []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		if k < len(rec.StepCurrents) {
			out[i] = rec.StepCurrents[k]
		}
	}
	return out
}

// Snapshot returns the profile recorded after sample index, if requested.
func (r *Result) Snapshot(index int) (Snapshot, bool) {
	for _, s := range r.Snapshots {
		if s.Index == index {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Metric accumulates a scalar over the records of a run.
type Metric interface {
	Name() string
	Observe(r Record)
	Value() float64
	Reset()
}

// Observer sees every record as it is produced.
type Observer interface {
	OnSample(r Record)
}

// RunInfo describes a run about to start.
type RunInfo struct {
	Samples     int
	Species     []string
	Observables []string
	Duration    float64
}

// RunObserver is an Observer that also wants run boundaries.
type RunObserver interface {
	Observer
	OnRunStart(info RunInfo)
	OnRunEnd(res *Result, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Record)

func (f ObserverFunc) OnSample(r Record) { f(r) }
