// Package waveform builds and validates potential programs: ordered (E, t)
// samples with strictly increasing time.
package waveform

import (
	"fmt"
	"math"

	"github.com/san-kum/voltsim/internal/echem"
	"gonum.org/v1/gonum/floats"
)

// Sample is one point of a potential program.
type Sample struct {
	E float64 `json:"e"`
	T float64 `json:"t"`
}

// Waveform is an ordered potential program.
type Waveform []Sample

// Validate checks that w is non-empty, finite and strictly increasing in time.
// Time errors are *echem.NonMonotonicTimeError.
func (w Waveform) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no samples", echem.ErrInvalidWaveform)
	}
	for i, s := range w {
		if math.IsNaN(s.E) || math.IsInf(s.E, 0) || math.IsNaN(s.T) || math.IsInf(s.T, 0) {
			return fmt.Errorf("%w: sample %d is not finite", echem.ErrInvalidWaveform, i)
		}
		if i > 0 && !(s.T > w[i-1].T) {
			return &echem.NonMonotonicTimeError{Index: i, Prev: w[i-1].T, T: s.T}
		}
	}
	return nil
}

func (w Waveform) Times() []float64 {
	out := make([]float64, len(w))
	for i, s := range w {
		out[i] = s.T
	}
	return out
}

func (w Waveform) Potentials() []float64 {
	out := make([]float64, len(w))
	for i, s := range w {
		out[i] = s.E
	}
	return out
}

// Duration is the time spanned by the program.
func (w Waveform) Duration() float64 {
	if len(w) < 2 {
		return 0
	}
	return w[len(w)-1].T - w[0].T
}

// MaxStep is the largest interval between consecutive samples.
func (w Waveform) MaxStep() float64 {
	dt := 0.0
	for i := 1; i < len(w); i++ {
		dt = math.Max(dt, w[i].T-w[i-1].T)
	}
	return dt
}

// Vertices returns the indices where the scan direction reverses or the
// potential jumps. Only interior samples qualify.
func (w Waveform) Vertices() []int {
	var out []int
	for i := 1; i < len(w)-1; i++ {
		a := (w[i].E - w[i-1].E) / (w[i].T - w[i-1].T)
		b := (w[i+1].E - w[i].E) / (w[i+1].T - w[i].T)
		if a*b < 0 || (a == 0) != (b == 0) {
			out = append(out, i)
		}
	}
	return out
}

// FromArrays pairs potentials with times and validates the result.
func FromArrays(e, t []float64) (Waveform, error) {
	if len(e) != len(t) {
		return nil, fmt.Errorf("%w: %d potentials for %d times", echem.ErrInvalidWaveform, len(e), len(t))
	}
	w := make(Waveform, len(t))
	for i := range t {
		w[i] = Sample{E: e[i], T: t[i]}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Uniform returns n times start, start+dt, ...
func Uniform(start, dt float64, n int) ([]float64, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: dt must be finite and positive", echem.ErrInvalidWaveform)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: need at least one time point", echem.ErrInvalidWaveform)
	}
	t := make([]float64, n)
	for i := range t {
		t[i] = start + dt*float64(i)
	}
	return t, nil
}

// UniformUntil returns start, start+dt, ..., end. (end−start)/dt must be an
// integer.
func UniformUntil(start, end, dt float64) ([]float64, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: dt must be finite and positive", echem.ErrInvalidWaveform)
	}
	if !(end >= start) || math.IsInf(end, 0) {
		return nil, fmt.Errorf("%w: end %g before start %g", echem.ErrInvalidWaveform, end, start)
	}
	steps := (end - start) / dt
	k := math.Round(steps)
	if math.Abs(steps-k) > 1e-9*math.Max(1, k) {
		return nil, fmt.Errorf("%w: span %g is not a whole number of dt=%g", echem.ErrInvalidWaveform, end-start, dt)
	}
	return Uniform(start, dt, int(k)+1)
}

// LSV ramps linearly from start to end over the times t.
func LSV(start, end float64, t []float64) (Waveform, error) {
	e := make([]float64, len(t))
	if len(t) == 1 {
		e[0] = start
	} else if len(t) > 1 {
		floats.Span(e, start, end)
	}
	return FromArrays(e, t)
}

// LSVScan ramps from start to end at scanRate (V/s) sampled every dt.
func LSVScan(start, end, scanRate, dt float64) (Waveform, error) {
	if scanRate == 0 || math.IsNaN(scanRate) || math.IsInf(scanRate, 0) {
		return nil, fmt.Errorf("%w: scan rate must be finite and non-zero", echem.ErrInvalidWaveform)
	}
	t, err := UniformUntil(0, math.Abs(end-start)/math.Abs(scanRate), dt)
	if err != nil {
		return nil, err
	}
	return LSV(start, end, t)
}

// Step holds before until tStep and after from tStep on.
func Step(before, after, tStep float64, t []float64) (Waveform, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: no samples", echem.ErrInvalidWaveform)
	}
	if math.IsNaN(tStep) || tStep < t[0] || tStep > t[len(t)-1] {
		return nil, fmt.Errorf("%w: step time %g outside [%g, %g]", echem.ErrInvalidWaveform, tStep, t[0], t[len(t)-1])
	}
	e := make([]float64, len(t))
	for i, ti := range t {
		if ti >= tStep {
			e[i] = after
		} else {
			e[i] = before
		}
	}
	return FromArrays(e, t)
}

// CV is a triangular program start → vertex → ret repeated cycles times over
// the times t. Time is split between the two legs in proportion to their
// potential spans, so both legs share one scan rate.
func CV(start, vertex, ret float64, cycles int, t []float64) (Waveform, error) {
	if cycles < 1 {
		return nil, fmt.Errorf("%w: cycles must be at least 1", echem.ErrInvalidWaveform)
	}
	if len(t) <= 1 {
		return FromArrays([]float64{start}[:len(t)], t)
	}
	span := t[len(t)-1] - t[0]
	if !(span > 0) {
		return nil, fmt.Errorf("%w: time grid must span a positive duration", echem.ErrInvalidWaveform)
	}
	d1, d2 := math.Abs(vertex-start), math.Abs(ret-vertex)
	e := make([]float64, len(t))
	if d1 == 0 && d2 == 0 {
		for i := range e {
			e[i] = start
		}
		return FromArrays(e, t)
	}
	split := d1 / (d1 + d2)
	for i, ti := range t {
		u := (ti - t[0]) / span * float64(cycles)
		frac := u - math.Floor(u)
		if frac < split {
			e[i] = start + frac/split*(vertex-start)
		} else {
			e[i] = vertex + (frac-split)/(1-split)*(ret-vertex)
		}
	}
	e[len(e)-1] = ret
	return FromArrays(e, t)
}

// CVScan builds a CV at scanRate (V/s) sampled every dt.
func CVScan(start, vertex, ret float64, cycles int, scanRate, dt float64) (Waveform, error) {
	if scanRate == 0 || math.IsNaN(scanRate) || math.IsInf(scanRate, 0) {
		return nil, fmt.Errorf("%w: scan rate must be finite and non-zero", echem.ErrInvalidWaveform)
	}
	if cycles < 1 {
		return nil, fmt.Errorf("%w: cycles must be at least 1", echem.ErrInvalidWaveform)
	}
	one := (math.Abs(vertex-start) + math.Abs(ret-vertex)) / math.Abs(scanRate)
	t, err := UniformUntil(0, one*float64(cycles), dt)
	if err != nil {
		return nil, err
	}
	return CV(start, vertex, ret, cycles, t)
}

// Concat joins programs end to end. Each following program is shifted so its
// first sample lands on the previous last time, and that duplicated join
// sample is dropped.
func Concat(parts ...Waveform) (Waveform, error) {
	var out Waveform
	for i, p := range parts {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: part %d is empty", echem.ErrInvalidWaveform, i)
		}
		if len(out) == 0 {
			out = append(out, p...)
			continue
		}
		shift := out[len(out)-1].T - p[0].T
		for _, s := range p[1:] {
			out = append(out, Sample{E: s.E, T: s.T + shift})
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
