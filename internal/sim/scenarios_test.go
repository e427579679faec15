package sim_test

import (
	"context"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/voltsim/internal/analysis"
	"github.com/san-kum/voltsim/internal/grid"
	"github.com/san-kum/voltsim/internal/integrators"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/mechanism"
	"github.com/san-kum/voltsim/internal/sim"
	"github.com/san-kum/voltsim/internal/waveform"
)

const (
	dCoef = 1e-5
	cBulk = 1e-6
	// potential increment per sample in the voltammetry scenarios
	dE = 0.5e-3
)

func quietOptions() sim.Options {
	opts := sim.DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return opts
}

func nernst(e0 float64) mechanism.Kinetics {
	return mechanism.Kinetics{Mode: mechanism.Nernst, N: 1, E0: e0}
}

func butlerVolmer(k0 float64) mechanism.Kinetics {
	return mechanism.Kinetics{Mode: mechanism.ButlerVolmer, N: 1, K0: k0, Alpha: 0.5}
}

func couple(kin mechanism.Kinetics) *mechanism.Mechanism {
	m, err := mechanism.NewDraft().
		Species("O", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
		Species("R", mechanism.SpeciesSpec{D: dCoef}).
		EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: kin}).
		Compile()
	Expect(err).NotTo(HaveOccurred())
	return m
}

func cvJob(m *mechanism.Mechanism, rate float64) sim.Job {
	dt := dE / rate
	w, err := waveform.CVScan(0.3, -0.3, 0.3, 1, rate, dt)
	Expect(err).NotTo(HaveOccurred())
	g, err := grid.Auto(m.MaxD(), w.Duration(), dt, 0.45)
	Expect(err).NotTo(HaveOccurred())
	return sim.Job{Mechanism: m, Grid: g, Waveform: w, Options: quietOptions()}
}

func runJob(job sim.Job) *sim.Result {
	res, err := sim.SimulatePlanar1D(context.Background(), job.Mechanism, job.Grid, job.Waveform, job.Options)
	Expect(err).NotTo(HaveOccurred())
	return res
}

func peaksOf(res *sim.Result) analysis.Peaks {
	p := analysis.FindPeaks(res.Potentials(), res.TotalCurrent())
	Expect(p.Cathodic.Index).To(BeNumerically(">", 0))
	Expect(p.Anodic.Index).To(BeNumerically(">", 0))
	return p
}

func potentialStep(e, dt, duration float64) waveform.Waveform {
	ts, err := waveform.UniformUntil(0, duration, dt)
	Expect(err).NotTo(HaveOccurred())
	w, err := waveform.Step(e, e, 0, ts)
	Expect(err).NotTo(HaveOccurred())
	return w
}

var _ = Describe("Cyclic voltammetry of a reversible couple", Ordered, func() {
	var (
		res   *sim.Result
		peaks analysis.Peaks
	)

	BeforeAll(func() {
		res = runJob(cvJob(couple(nernst(0)), 0.1))
		peaks = peaksOf(res)
	})

	It("keeps every sample clean", func() {
		Expect(res.Diagnostics.Clean()).To(BeTrue())
		Expect(res.Diagnostics.MinConcentration).To(BeNumerically(">", -1e-9*cBulk))
	})

	It("places the cathodic peak 28.5 mV past E0", func() {
		offset := analysis.ReversiblePeakOffset(1, 0)
		Expect(peaks.Cathodic.E).To(BeNumerically("~", -offset, 2e-3))
		Expect(peaks.Cathodic.I).To(BeNumerically("<", 0))
	})

	It("separates the peaks by about 59 mV around E0", func() {
		Expect(analysis.PeakSeparation(peaks)).To(And(BeNumerically(">=", 0.057), BeNumerically("<=", 0.064)))
		Expect(analysis.MidPeakPotential(peaks)).To(BeNumerically("~", 0, 5e-3))
	})

	It("matches the Randles–Ševčík peak current", func() {
		want := analysis.RandlesSevcik(1, 1, cBulk, dCoef, 0.1, 0)
		Expect(-peaks.Cathodic.I / want).To(BeNumerically("~", 1, 0.03))
	})

	It("returns a smaller anodic peak against the zero baseline", func() {
		ratio := math.Abs(peaks.Anodic.I / peaks.Cathodic.I)
		Expect(ratio).To(And(BeNumerically(">", 0.5), BeNumerically("<", 1.1)))
	})
})

// triangleJob scans an R-only solution 0 → 1 → 0 V with one sample per 10 mV
// and a hundred sub-steps per sample.
func triangleJob(rate float64) sim.Job {
	m, err := mechanism.NewDraft().
		Species("O", mechanism.SpeciesSpec{D: dCoef}).
		Species("R", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
		EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: nernst(0.5)}).
		Compile()
	Expect(err).NotTo(HaveOccurred())
	dt := 0.01 / rate
	w, err := waveform.CVScan(0, 1, 0, 1, rate, dt)
	Expect(err).NotTo(HaveOccurred())
	g, err := grid.Auto(dCoef, w.Duration(), dt/100, 0.45)
	Expect(err).NotTo(HaveOccurred())
	opts := quietOptions()
	opts.DtPolicy = sim.Subdivide{MaxDt: dt / 100}
	return sim.Job{Mechanism: m, Grid: g, Waveform: w, Options: opts}
}

var _ = Describe("Triangular scan 0 → 1 → 0 V at 1 V/s", Ordered, func() {
	var (
		res   *sim.Result
		peaks analysis.Peaks
	)

	BeforeAll(func() {
		job := triangleJob(1)
		Expect(job.Waveform[1].T).To(BeNumerically("~", 0.01, 1e-12))
		res = runJob(job)
		peaks = peaksOf(res)
	})

	It("runs clean under the default scheme", func() {
		Expect(res.Diagnostics.Clean()).To(BeTrue())
		Expect(res.Len()).To(Equal(201))
	})

	It("oxidizes on the way out and reduces on the way back", func() {
		vertex := 100
		Expect(res.Records[vertex].E).To(BeNumerically("~", 1, 1e-12))
		Expect(peaks.Anodic.Index).To(BeNumerically("<", vertex))
		Expect(peaks.Cathodic.Index).To(BeNumerically(">", vertex))
		for _, rec := range res.Records[1:vertex] {
			Expect(rec.Total).To(BeNumerically(">=", 0), "E=%g", rec.E)
		}
	})

	It("gives a symmetric peak pair around E0", func() {
		offset := analysis.ReversiblePeakOffset(1, 0)
		Expect(peaks.Anodic.E).To(BeNumerically("~", 0.5+offset, 0.01))
		Expect(peaks.Cathodic.E).To(BeNumerically("~", 0.5-offset, 0.01))
		Expect(analysis.PeakSeparation(peaks)).To(And(BeNumerically(">=", 0.05), BeNumerically("<=", 0.07)))
		Expect(analysis.MidPeakPotential(peaks)).To(BeNumerically("~", 0.5, 0.006))
	})

	It("matches the Randles–Ševčík peak current", func() {
		want := analysis.RandlesSevcik(1, 1, cBulk, dCoef, 1, 0)
		Expect(peaks.Anodic.I / want).To(BeNumerically("~", 1, 0.05))
		ratio := math.Abs(peaks.Cathodic.I / peaks.Anodic.I)
		Expect(ratio).To(And(BeNumerically(">", 0.5), BeNumerically("<", 1.1)))
	})

	It("scales the peak current with the square root of the scan rate", func() {
		rates := []float64{0.5, 1, 2}
		jobs := make([]sim.Job, len(rates))
		for i, v := range rates {
			jobs[i] = triangleJob(v)
		}
		results, err := sim.Sweep(context.Background(), jobs, 0)
		Expect(err).NotTo(HaveOccurred())
		norm := make([]float64, len(rates))
		for i, r := range results {
			norm[i] = peaksOf(r).Anodic.I / math.Sqrt(rates[i])
		}
		for i := 1; i < len(norm); i++ {
			Expect(norm[i] / norm[0]).To(BeNumerically("~", 1, 0.01))
		}
	})
})

var _ = Describe("Potential step under Crank–Nicolson", func() {
	It("stays cathodic and follows Cottrell", func() {
		m := couple(nernst(0))
		dt := 0.01
		w := potentialStep(-0.2, dt, 1)
		g, err := grid.Auto(dCoef, 1, dt, 0.45)
		Expect(err).NotTo(HaveOccurred())

		res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, quietOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Diagnostics.Clean()).To(BeTrue())
		for _, rec := range res.Records[1:] {
			Expect(rec.Total).To(BeNumerically("<", 0), "t=%g", rec.T)
		}
		for _, idx := range []int{20, 50, 100} {
			rec := res.Records[idx]
			want := analysis.Cottrell(1, 1, cBulk, dCoef, rec.T)
			Expect(-rec.Total/want).To(BeNumerically("~", 1, 0.04), "t=%g", rec.T)
		}
	})
})

var _ = Describe("Scan rate dependence", func() {
	It("scales the reversible peak current with the square root of the scan rate", func() {
		rates := []float64{0.05, 0.1, 0.2}
		jobs := make([]sim.Job, len(rates))
		for i, v := range rates {
			jobs[i] = cvJob(couple(nernst(0)), v)
		}
		results, err := sim.Sweep(context.Background(), jobs, 0)
		Expect(err).NotTo(HaveOccurred())

		norm := make([]float64, len(rates))
		for i, res := range results {
			norm[i] = -peaksOf(res).Cathodic.I / math.Sqrt(rates[i])
		}
		for i := 1; i < len(norm); i++ {
			Expect(norm[i] / norm[0]).To(BeNumerically("~", 1, 0.01))
		}
	})
})

var _ = Describe("Butler–Volmer kinetics", func() {
	It("approaches the Nernstian voltammogram as k0 grows", func() {
		ref := runJob(cvJob(couple(nernst(0)), 0.1))
		ip := math.Abs(peaksOf(ref).Cathodic.I)

		deviation := func(res *sim.Result) float64 {
			worst := 0.0
			for i, rec := range res.Records {
				worst = math.Max(worst, math.Abs(rec.Total-ref.Records[i].Total))
			}
			return worst / ip
		}

		var prev = math.Inf(1)
		for _, k0 := range []float64{1e-3, 1e-2, 1, 10} {
			dev := deviation(runJob(cvJob(couple(butlerVolmer(k0)), 0.1)))
			Expect(dev).To(BeNumerically("<", prev), "k0=%g", k0)
			prev = dev
		}
		Expect(prev).To(BeNumerically("<", 0.02))
	})

	It("widens the peak separation for slow electron transfer", func() {
		res := runJob(cvJob(couple(butlerVolmer(1e-3)), 0.1))
		Expect(analysis.PeakSeparation(peaksOf(res))).To(BeNumerically(">", 0.1))
	})
})

var _ = Describe("EC mechanism", func() {
	spec := mechanism.SpeciesSpec{D: dCoef}
	ox := mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}
	rates := mechanism.Rates{Kf: 5}

	tagged := func() *mechanism.Mechanism {
		d, err := mechanism.FromTag("EC", &mechanism.Mapping{
			Roles:   map[string]string{"O": "O", "R": "R", "P": "P"},
			Species: map[string]mechanism.SpeciesSpec{"O": ox, "R": spec, "P": spec},
			E:       []mechanism.Kinetics{nernst(0)},
			C:       []mechanism.Rates{rates},
		})
		Expect(err).NotTo(HaveOccurred())
		m, err := d.Compile()
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	It("simulates the tag exactly like the hand-written mechanism", func() {
		manual, err := mechanism.NewDraft().
			Species("O", ox).Species("R", spec).Species("P", spec).
			EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: nernst(0)}).
			CStep(mechanism.CStepSpec{
				Reactants: []mechanism.Coef{{Species: "R", Count: 1}},
				Products:  []mechanism.Coef{{Species: "P", Count: 1}},
				Rates:     rates,
			}).
			Compile()
		Expect(err).NotTo(HaveOccurred())

		a := runJob(cvJob(tagged(), 0.1))
		b := runJob(cvJob(manual, 0.1))
		Expect(a.TotalCurrent()).To(Equal(b.TotalCurrent()))
		Expect(a.Species).To(Equal(b.Species))
	})

	It("consumes the reduced form before the return sweep", func() {
		plain := peaksOf(runJob(cvJob(couple(nernst(0)), 0.1)))
		ec := peaksOf(runJob(cvJob(tagged(), 0.1)))
		Expect(math.Abs(ec.Anodic.I / ec.Cathodic.I)).To(BeNumerically("<", math.Abs(plain.Anodic.I/plain.Cathodic.I)))
	})
})

var _ = Describe("Closed homogeneous networks", func() {
	first := func() *mechanism.Mechanism {
		m, err := mechanism.NewDraft().
			Species("A", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
			Species("B", mechanism.SpeciesSpec{D: 2 * dCoef}).
			CStep(mechanism.CStepSpec{
				Reactants: []mechanism.Coef{{Species: "A", Count: 1}},
				Products:  []mechanism.Coef{{Species: "B", Count: 1}},
				Rates:     mechanism.Rates{Kf: 2, Kr: 1},
			}).
			Compile()
		Expect(err).NotTo(HaveOccurred())
		return m
	}
	dimer := func() *mechanism.Mechanism {
		m, err := mechanism.NewDraft().
			Species("A", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
			Species("B", mechanism.SpeciesSpec{D: dCoef}).
			CStep(mechanism.CStepSpec{
				Reactants: []mechanism.Coef{{Species: "A", Count: 2}},
				Products:  []mechanism.Coef{{Species: "B", Count: 1}},
				Rates:     mechanism.Rates{Kf: 1e6, Kr: 0.5},
			}).
			Compile()
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	DescribeTable("conserve mass to round-off",
		func(build func() *mechanism.Mechanism, dt float64, splitting kinetics.Splitting, scheme integrators.Scheme) {
			m := build()
			w := potentialStep(0, dt, 2)
			g, err := grid.Auto(m.MaxD(), w.Duration(), dt, 0.45)
			Expect(err).NotTo(HaveOccurred())
			opts := quietOptions()
			opts.Splitting = splitting
			opts.Scheme = scheme

			res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Diagnostics.Closed).To(BeTrue())
			Expect(res.Diagnostics.MassBalanceResidual).To(BeNumerically("<", 1e-9))
			Expect(res.Diagnostics.Clean()).To(BeTrue())
		},
		Entry("first order, small steps", first, 0.01, kinetics.Lie, integrators.CrankNicolson),
		Entry("first order, large steps", first, 0.5, kinetics.Lie, integrators.BackwardEuler),
		Entry("first order, Strang", first, 0.1, kinetics.Strang, integrators.CrankNicolson),
		Entry("dimerization, small steps", dimer, 0.01, kinetics.Lie, integrators.CrankNicolson),
		Entry("dimerization, large steps", dimer, 0.5, kinetics.Strang, integrators.BackwardEuler),
	)

	It("relaxes to the equilibrium ratio", func() {
		m := first()
		w := potentialStep(0, 0.05, 20)
		g, err := grid.Auto(m.MaxD(), w.Duration(), 0.05, 0.45)
		Expect(err).NotTo(HaveOccurred())
		opts := quietOptions()
		opts.SnapshotAt = []int{len(w) - 1}

		res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, opts)
		Expect(err).NotTo(HaveOccurred())
		snap, ok := res.Snapshot(len(w) - 1)
		Expect(ok).To(BeTrue())
		for _, c := range snap.C {
			Expect(c[1] / c[0]).To(BeNumerically("~", 2, 1e-6))
		}
	})
})

var _ = Describe("Two-electron mechanisms", func() {
	It("doubles the Cottrell current when both steps are driven", func() {
		m, err := mechanism.NewDraft().
			Species("O", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
			Species("I", mechanism.SpeciesSpec{D: dCoef}).
			Species("R", mechanism.SpeciesSpec{D: dCoef}).
			EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "I", Kinetics: nernst(0)}).
			EStep(mechanism.EStepSpec{Oxidized: "I", Reduced: "R", Kinetics: nernst(-0.3)}).
			Compile()
		Expect(err).NotTo(HaveOccurred())

		dt := 1e-3
		w := potentialStep(-0.8, dt, 1)
		g, err := grid.Auto(dCoef, 1, dt, 0.45)
		Expect(err).NotTo(HaveOccurred())
		opts := quietOptions()
		opts.Scheme = integrators.BackwardEuler

		res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Observables).To(HaveLen(2))
		for _, idx := range []int{500, 1000} {
			rec := res.Records[idx]
			want := analysis.Cottrell(2, 1, cBulk, dCoef, rec.T)
			Expect(-rec.Total / want).To(BeNumerically("~", 1, 0.03))
			Expect(rec.StepCurrents[1] / rec.StepCurrents[0]).To(BeNumerically("~", 1, 0.02))
		}
	})

	It("flags every sample of a contradictory couple without aborting", func() {
		m, err := mechanism.NewDraft().
			Species("O", mechanism.SpeciesSpec{D: dCoef, Bulk: cBulk}).
			Species("R", mechanism.SpeciesSpec{D: dCoef}).
			EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: nernst(0)}).
			EStep(mechanism.EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: nernst(0.2)}).
			Compile()
		Expect(err).NotTo(HaveOccurred())

		w := potentialStep(0.1, 0.01, 0.2)
		g, err := grid.Auto(dCoef, w.Duration(), 0.01, 0.45)
		Expect(err).NotTo(HaveOccurred())

		res, err := sim.SimulatePlanar1D(context.Background(), m, g, w, quietOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Len()).To(Equal(len(w)))
		Expect(res.Diagnostics.SurfaceNonConverged).To(Equal(len(w) - 1))
		for _, rec := range res.Records[1:] {
			Expect(rec.Flags.Has(sim.FlagSurfaceDiverged)).To(BeTrue())
		}
	})
})

var _ = Describe("Cancellation", func() {
	It("stops after the sample that observed it", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m := couple(nernst(0))
		w := potentialStep(-0.2, 0.01, 1)
		g, err := grid.Auto(dCoef, 1, 0.01, 0.45)
		Expect(err).NotTo(HaveOccurred())
		eng := sim.New(m, g, quietOptions())
		eng.AddObserver(sim.ObserverFunc(func(r sim.Record) {
			if r.Index == 10 {
				cancel()
			}
		}))

		res, err := eng.Run(ctx, w)
		Expect(err).To(MatchError(context.Canceled))
		Expect(res.Len()).To(Equal(11))
		Expect(res.Records[10].Total).To(BeNumerically("<", 0))
	})
})
