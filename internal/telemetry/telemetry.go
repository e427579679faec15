// Package telemetry exports run progress as Prometheus metrics. A Recorder
// only holds collector handles, so one Recorder may observe many concurrent
// runs.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/voltsim/internal/sim"
)

type Recorder struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	inFlight      prometheus.Gauge
	samples       prometheus.Counter
	flagged       *prometheus.CounterVec
	newtonIters   prometheus.Histogram
	runDuration   prometheus.Histogram
	massResidual  prometheus.Gauge
	lastPotential prometheus.Gauge
}

var _ sim.RunObserver = (*Recorder)(nil)

// NewRecorder registers the voltsim collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voltsim_runs_started_total",
			Help: "Runs started",
		}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltsim_runs_finished_total",
			Help: "Runs finished by outcome",
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "voltsim_runs_in_flight",
			Help: "Runs currently executing",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "voltsim_samples_total",
			Help: "Waveform samples simulated",
		}),
		flagged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voltsim_flagged_samples_total",
			Help: "Samples carrying a diagnostic flag, by flag",
		}, []string{"flag"}),
		newtonIters: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltsim_surface_newton_iterations",
			Help:    "Surface Newton iterations per sample",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltsim_run_duration_seconds",
			Help:    "Wall time per run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		massResidual: f.NewGauge(prometheus.GaugeOpts{
			Name: "voltsim_mass_balance_residual",
			Help: "Relative mass-balance residual of the last closed run",
		}),
		lastPotential: f.NewGauge(prometheus.GaugeOpts{
			Name: "voltsim_potential_volts",
			Help: "Potential of the most recent sample",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) OnRunStart(sim.RunInfo) {
	r.runsStarted.Inc()
	r.inFlight.Inc()
}

func (r *Recorder) OnSample(rec sim.Record) {
	r.samples.Inc()
	r.newtonIters.Observe(float64(rec.NewtonIterations))
	r.lastPotential.Set(rec.E)
	for _, f := range []sim.Flags{sim.FlagNegative, sim.FlagSurfaceDiverged, sim.FlagReactionDiverged} {
		if rec.Flags.Has(f) {
			r.flagged.WithLabelValues(f.String()).Inc()
		}
	}
}

func (r *Recorder) OnRunEnd(res *sim.Result, err error) {
	r.inFlight.Dec()
	r.runsFinished.WithLabelValues(outcome(err)).Inc()
	if res == nil {
		return
	}
	r.runDuration.Observe(res.Elapsed.Seconds())
	if res.Diagnostics.Closed {
		r.massResidual.Set(res.Diagnostics.MassBalanceResidual)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "aborted"
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("serving metrics", "addr", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
