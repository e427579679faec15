package sim

import (
	"log/slog"
	"math"

	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/waveform"
)

// DefaultNegativeTolerance is the fraction of the largest bulk concentration
// a value may dip below zero before the sample is flagged.
const DefaultNegativeTolerance = 1e-9

// StartupSubsteps is how many Backward Euler sub-steps replace the chosen
// scheme at the start of a run and after a potential jump. They damp the
// high-frequency error Crank–Nicolson leaves undamped on steep grids.
const StartupSubsteps = 2

// JumpThreshold is the potential change, in units of RT/F, across one
// sample interval above which the interval counts as a jump.
const JumpThreshold = 2.0

// DtPolicy decides how many equal sub-steps each waveform interval gets.
type DtPolicy interface {
	// Plan returns the sub-step count for every sample; entry 0 is unused.
	Plan(w waveform.Waveform) []int
}

// Fixed takes one sub-step per waveform interval.
type Fixed struct{}

func (Fixed) Plan(w waveform.Waveform) []int {
	plan := make([]int, len(w))
	for i := range plan {
		plan[i] = 1
	}
	return plan
}

// Subdivide splits every interval so no sub-step exceeds MaxDt.
type Subdivide struct {
	MaxDt float64
}

func (p Subdivide) Plan(w waveform.Waveform) []int {
	plan := make([]int, len(w))
	for i := 1; i < len(w); i++ {
		plan[i] = substeps(w[i].T-w[i-1].T, p.MaxDt)
	}
	return plan
}

// RefineNearVertex behaves like Subdivide and additionally multiplies the
// sub-step count by Factor within Window samples of a scan vertex or
// potential jump.
type RefineNearVertex struct {
	MaxDt  float64
	Factor int
	Window int
}

func (p RefineNearVertex) Plan(w waveform.Waveform) []int {
	plan := Subdivide{MaxDt: p.MaxDt}.Plan(w)
	factor := max(p.Factor, 1)
	window := max(p.Window, 1)
	refined := make([]bool, len(w))
	for _, v := range w.Vertices() {
		for i := max(1, v-window+1); i <= min(len(w)-1, v+window); i++ {
			refined[i] = true
		}
	}
	for i := 1; i < len(w); i++ {
		if refined[i] {
			plan[i] *= factor
		}
	}
	return plan
}

func substeps(dt, maxDt float64) int {
	if !(maxDt > 0) || dt <= maxDt {
		return 1
	}
	return int(math.Ceil(dt/maxDt - 1e-9))
}

// Options configure one run.
type Options struct {
	Scheme    integrators.Scheme
	Splitting kinetics.Splitting
	DtPolicy  DtPolicy

	// Area is the electrode area in cm².
	Area float64
	// Temperature in K.
	Temperature float64

	SurfaceTolerance  float64
	SurfaceMaxIter    int
	SurfaceDamping    float64
	ReactionTolerance float64
	ReactionMaxIter   int
	NegativeTolerance float64

	// SnapshotAt lists the sample indices whose profiles are kept.
	SnapshotAt []int

	Logger *slog.Logger
	// Pool, when set, supplies the field buffers. Runs of the same size may
	// share one pool.
	Pool *FieldPool
}

// DefaultOptions is Crank–Nicolson with Lie splitting, one sub-step per
// sample and a 1 cm² electrode at 25 °C.
func DefaultOptions() Options {
	return Options{
		Scheme:            integrators.CrankNicolson,
		Splitting:         kinetics.Lie,
		DtPolicy:          Fixed{},
		Area:              1,
		NegativeTolerance: DefaultNegativeTolerance,
	}
}

func (o Options) withDefaults() Options {
	if o.DtPolicy == nil {
		o.DtPolicy = Fixed{}
	}
	if o.Area <= 0 {
		o.Area = 1
	}
	if o.NegativeTolerance <= 0 {
		o.NegativeTolerance = DefaultNegativeTolerance
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
