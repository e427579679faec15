package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/voltsim/internal/metrics"
	"github.com/san-kum/voltsim/internal/sim"
)

// Registry maps metric names to constructors. Every call builds fresh
// instances, so concurrent runs never share metric state.
type Registry struct {
	metrics map[string]func() sim.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]func() sim.Metric),
	}

	r.metrics["charge"] = func() sim.Metric { return metrics.NewCharge() }
	r.metrics["peak_cathodic"] = func() sim.Metric { return metrics.NewCathodicPeak() }
	r.metrics["peak_anodic"] = func() sim.Metric { return metrics.NewAnodicPeak() }
	r.metrics["clean_fraction"] = func() sim.Metric { return metrics.NewCleanFraction() }
	r.metrics["newton_iterations_mean"] = func() sim.Metric { return metrics.NewNewtonEffort() }

	return r
}

func (r *Registry) GetMetric(name string) (sim.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(), nil
}

// Metrics builds the named metrics, or the defaults when names is empty.
func (r *Registry) Metrics(names []string) ([]sim.Metric, error) {
	if len(names) == 0 {
		return r.DefaultMetrics(), nil
	}
	out := make([]sim.Metric, 0, len(names))
	for _, n := range names {
		m, err := r.GetMetric(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		metrics.NewCharge(),
		metrics.NewCathodicPeak(),
		metrics.NewAnodicPeak(),
		metrics.NewCleanFraction(),
	}
}
