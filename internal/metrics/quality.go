package metrics

import (
	"github.com/san-kum/voltsim/internal/sim"
)

// CleanFraction is the share of samples that carry no flags.
type CleanFraction struct {
	name    string
	flagged int
	samples int
}

func NewCleanFraction() *CleanFraction {
	return &CleanFraction{
		name: "clean_fraction",
	}
}

func (c *CleanFraction) Name() string {
	return c.name
}

func (c *CleanFraction) Observe(r sim.Record) {
	c.samples++
	if r.Flags != 0 {
		c.flagged++
	}
}

func (c *CleanFraction) Value() float64 {
	if c.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(c.flagged)/float64(c.samples)
}

func (c *CleanFraction) Reset() {
	c.flagged = 0
	c.samples = 0
}

// NewtonEffort is the mean number of surface Newton iterations per sample.
type NewtonEffort struct {
	name    string
	sum     int
	samples int
}

func NewNewtonEffort() *NewtonEffort {
	return &NewtonEffort{
		name: "newton_iterations_mean",
	}
}

func (n *NewtonEffort) Name() string {
	return n.name
}

func (n *NewtonEffort) Observe(r sim.Record) {
	n.sum += r.NewtonIterations
	n.samples++
}

func (n *NewtonEffort) Value() float64 {
	if n.samples == 0 {
		return 0
	}
	return float64(n.sum) / float64(n.samples)
}

func (n *NewtonEffort) Reset() {
	n.sum = 0
	n.samples = 0
}
