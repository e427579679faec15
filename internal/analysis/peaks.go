package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Peak is an extremum of a current trace.
type Peak struct {
	Index int     `json:"index"`
	E     float64 `json:"e"`
	I     float64 `json:"i"`
}

// Peaks holds the cathodic (most negative) and anodic (most positive)
// extrema. A side without current of its sign has Index −1.
type Peaks struct {
	Cathodic Peak `json:"cathodic"`
	Anodic   Peak `json:"anodic"`
}

// FindPeaks locates the extrema of current i against potential e.
func FindPeaks(e, i []float64) Peaks {
	p := Peaks{Cathodic: Peak{Index: -1}, Anodic: Peak{Index: -1}}
	if len(i) == 0 || len(e) != len(i) {
		return p
	}
	if lo := floats.MinIdx(i); i[lo] < 0 {
		p.Cathodic = Peak{Index: lo, E: e[lo], I: i[lo]}
	}
	if hi := floats.MaxIdx(i); i[hi] > 0 {
		p.Anodic = Peak{Index: hi, E: e[hi], I: i[hi]}
	}
	return p
}

// PeakSeparation is Epa − Epc, NaN when either peak is missing.
func PeakSeparation(p Peaks) float64 {
	if p.Cathodic.Index < 0 || p.Anodic.Index < 0 {
		return math.NaN()
	}
	return p.Anodic.E - p.Cathodic.E
}

// MidPeakPotential is (Epa + Epc)/2, NaN when either peak is missing.
func MidPeakPotential(p Peaks) float64 {
	if p.Cathodic.Index < 0 || p.Anodic.Index < 0 {
		return math.NaN()
	}
	return 0.5 * (p.Anodic.E + p.Cathodic.E)
}

// Charge integrates current over time with the trapezoid rule (C).
func Charge(t, i []float64) float64 {
	q := 0.0
	for k := 1; k < len(t) && k < len(i); k++ {
		q += 0.5 * (i[k] + i[k-1]) * (t[k] - t[k-1])
	}
	return q
}
