package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/sim"
)

// setters apply one swept parameter to a config copy. Kinetic parameters
// apply to every step of their kind.
var setters = map[string]func(c *config.Config, v float64){
	"k0": func(c *config.Config, v float64) {
		for i := range c.Mechanism.ESteps {
			c.Mechanism.ESteps[i].K0 = v
		}
	},
	"alpha": func(c *config.Config, v float64) {
		for i := range c.Mechanism.ESteps {
			c.Mechanism.ESteps[i].Alpha = v
		}
	},
	"e0": func(c *config.Config, v float64) {
		if len(c.Mechanism.ESteps) > 0 {
			c.Mechanism.ESteps[0].E0 = v
		}
	},
	"kf": func(c *config.Config, v float64) {
		for i := range c.Mechanism.CSteps {
			c.Mechanism.CSteps[i].Kf = v
		}
	},
	"kr": func(c *config.Config, v float64) {
		for i := range c.Mechanism.CSteps {
			c.Mechanism.CSteps[i].Kr = v
		}
	},
	"scan_rate":   func(c *config.Config, v float64) { c.Waveform.ScanRate = v },
	"dt":          func(c *config.Config, v float64) { c.Waveform.Dt = v },
	"area":        func(c *config.Config, v float64) { c.Engine.Area = v },
	"temperature": func(c *config.Config, v float64) { c.Engine.Temperature = v },
}

// Parameters lists the names a sweep accepts.
func Parameters() []string {
	names := make([]string, 0, len(setters))
	for n := range setters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Point is one combination of swept values and its result.
type Point struct {
	Params map[string]float64
	Result *sim.Result
}

// Label names the point by its values in parameter order.
func (p Point) Label(params []string) string {
	parts := make([]string, len(params))
	for i, n := range params {
		parts[i] = fmt.Sprintf("%s=%g", n, p.Params[n])
	}
	return strings.Join(parts, ",")
}

// Sweep runs the cartesian product of parameter ranges over a base config.
type Sweep struct {
	paramNames []string
	ranges     [][]float64
	observers  []sim.Observer
}

func NewSweep(params []string, ranges [][]float64) (*Sweep, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("sweep: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := setters[p]; !ok {
			return nil, fmt.Errorf("sweep: unknown parameter %q (have %s)", p, strings.Join(Parameters(), ", "))
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("sweep: parameter %q has no values", p)
		}
	}
	return &Sweep{paramNames: params, ranges: ranges}, nil
}

func (s *Sweep) Params() []string { return append([]string(nil), s.paramNames...) }

// Observe attaches o to every job. o sees jobs concurrently.
func (s *Sweep) Observe(o sim.Observer) { s.observers = append(s.observers, o) }

// Points enumerates every combination, the last parameter varying fastest.
func (s *Sweep) Points() []map[string]float64 {
	var out []map[string]float64
	s.enumerate(0, make(map[string]float64), &out)
	return out
}

func (s *Sweep) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(s.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := s.paramNames[depth]
	for _, val := range s.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		s.enumerate(depth+1, newParams, out)
	}
}

// Run builds one experiment per point from base and runs them through
// sim.Sweep with at most limit in flight. Each job gets fresh metrics from
// the registry.
func (s *Sweep) Run(ctx context.Context, base *config.Config, reg *Registry, logger *slog.Logger, limit int) ([]Point, error) {
	points := s.Points()
	jobs := make([]sim.Job, len(points))
	out := make([]Point, len(points))
	for i, params := range points {
		cfg := base.Clone()
		for name, v := range params {
			setters[name](cfg, v)
		}
		exp := New(cfg)
		if err := exp.Setup(logger, nil); err != nil {
			return nil, fmt.Errorf("sweep point %s: %w", Point{Params: params}.Label(s.paramNames), err)
		}
		ms, err := reg.Metrics(cfg.Metrics)
		if err != nil {
			return nil, err
		}
		out[i].Params = params
		jobs[i] = exp.Job(out[i].Label(s.paramNames), ms)
		jobs[i].Observers = append(jobs[i].Observers, s.observers...)
	}

	results, err := sim.Sweep(ctx, jobs, limit)
	for i, r := range results {
		out[i].Result = r
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// Best returns the point with the smallest value of metric. Points without a
// result or without the metric are skipped.
func Best(points []Point, metric string) (Point, float64, bool) {
	best := math.Inf(1)
	var bestPoint Point
	found := false
	for _, p := range points {
		if p.Result == nil {
			continue
		}
		val, ok := p.Result.Metrics[metric]
		if !ok {
			continue
		}
		if val < best {
			best, bestPoint, found = val, p, true
		}
	}
	return bestPoint, best, found
}
