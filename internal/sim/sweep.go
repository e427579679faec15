package sim

import (
	"context"
	"fmt"
	"runtime"

	"github.com/san-kum/voltsim/internal/grid"
	"github.com/san-kum/voltsim/internal/mechanism"
	"github.com/san-kum/voltsim/internal/waveform"
	"golang.org/x/sync/errgroup"
)

// Job is one independent run of a sweep. Mechanism and Grid may be shared
// between jobs; Metrics must not be, and shared Observers must be safe for
// concurrent use.
type Job struct {
	Name      string
	Mechanism *mechanism.Mechanism
	Grid      *grid.Grid
	Waveform  waveform.Waveform
	Options   Options
	Metrics   []Metric
	Observers []Observer
}

// Sweep runs jobs concurrently, at most limit at a time (GOMAXPROCS when
// limit <= 0). Results keep the job order. The first failing job cancels the
// rest and its error is returned.
func Sweep(ctx context.Context, jobs []Job, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	// Lock up front so concurrent engines only ever read the mechanisms.
	for _, j := range jobs {
		if j.Mechanism != nil {
			j.Mechanism.Lock()
		}
	}

	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		g.Go(func() error {
			eng := New(job.Mechanism, job.Grid, job.Options)
			for _, m := range job.Metrics {
				eng.AddMetric(m)
			}
			for _, o := range job.Observers {
				eng.AddObserver(o)
			}
			res, err := eng.Run(ctx, job.Waveform)
			results[i] = res
			if err != nil {
				return fmt.Errorf("job %d (%s): %w", i, job.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
