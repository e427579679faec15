package metrics

import (
	"github.com/san-kum/voltsim/internal/sim"
)

// Charge integrates the total current over time with the trapezoid rule.
type Charge struct {
	name    string
	total   float64
	last    sim.Record
	samples int
}

func NewCharge() *Charge {
	return &Charge{name: "charge"}
}

func (c *Charge) Name() string { return c.name }

func (c *Charge) Observe(r sim.Record) {
	if c.samples > 0 {
		c.total += 0.5 * (r.Total + c.last.Total) * (r.T - c.last.T)
	}
	c.last = r
	c.samples++
}

func (c *Charge) Value() float64 { return c.total }

func (c *Charge) Reset() {
	c.total = 0
	c.last = sim.Record{}
	c.samples = 0
}

// PeakCurrent tracks the extreme total current in one direction: the most
// negative for cathodic, the most positive for anodic.
type PeakCurrent struct {
	name     string
	cathodic bool
	peak     float64
	at       float64
}

func NewCathodicPeak() *PeakCurrent {
	return &PeakCurrent{name: "peak_cathodic", cathodic: true}
}

func NewAnodicPeak() *PeakCurrent {
	return &PeakCurrent{name: "peak_anodic"}
}

func (p *PeakCurrent) Name() string { return p.name }

func (p *PeakCurrent) Observe(r sim.Record) {
	if (p.cathodic && r.Total < p.peak) || (!p.cathodic && r.Total > p.peak) {
		p.peak = r.Total
		p.at = r.E
	}
}

func (p *PeakCurrent) Value() float64 { return p.peak }

// Potential is where the peak was seen.
func (p *PeakCurrent) Potential() float64 { return p.at }

func (p *PeakCurrent) Reset() {
	p.peak = 0
	p.at = 0
}
