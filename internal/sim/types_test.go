package sim

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/san-kum/voltsim/internal/echem"
)

func tinyResult() *Result {
	return &Result{
		Records: []Record{
			{Index: 0, T: 0, E: 0.2, StepCurrents: []float64{0, 0}},
			{Index: 1, T: 0.1, E: 0.1, StepCurrents: []float64{-1, -2}, Total: -3},
			{Index: 2, T: 0.2, E: 0.0, StepCurrents: []float64{-2}, Total: -2},
		},
		Snapshots: []Snapshot{{Index: 2, T: 0.2}},
	}
}

func TestResultAccessors(t *testing.T) {
	r := tinyResult()

	tests := []struct {
		name string
		got  []float64
		want []float64
	}{
		{"times", r.Times(), []float64{0, 0.1, 0.2}},
		{"potentials", r.Potentials(), []float64{0.2, 0.1, 0}},
		{"total", r.TotalCurrent(), []float64{0, -3, -2}},
		{"step 0", r.StepCurrent(0), []float64{0, -1, -2}},
		{"step 1 short record", r.StepCurrent(1), []float64{0, -2, 0}},
		{"missing step", r.StepCurrent(5), []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestResultSnapshot(t *testing.T) {
	r := tinyResult()
	if s, ok := r.Snapshot(2); !ok || s.T != 0.2 {
		t.Errorf("Snapshot(2) = %v, %v", s, ok)
	}
	if _, ok := r.Snapshot(1); ok {
		t.Error("Snapshot(1) should not exist")
	}
}

func TestDiagnosticsClean(t *testing.T) {
	tests := []struct {
		name  string
		diag  Diagnostics
		clean bool
	}{
		{"zero", Diagnostics{}, true},
		{"iterations only", Diagnostics{NewtonIterations: 40, Samples: 10}, true},
		{"negative", Diagnostics{NegativeSamples: 1}, false},
		{"surface", Diagnostics{SurfaceNonConverged: 2}, false},
		{"reaction", Diagnostics{ReactionNonConverged: 1}, false},
	}
	for _, tt := range tests {
		if got := tt.diag.Clean(); got != tt.clean {
			t.Errorf("%s: Clean() = %v, want %v", tt.name, got, tt.clean)
		}
	}
}

func TestSimulationAbortedError(t *testing.T) {
	cause := &echem.SingularSystemError{Row: 0}
	err := fmt.Errorf("run: %w", &SimulationAbortedError{Sample: 3, Time: 0.3, Err: cause})

	if !errors.Is(err, echem.ErrSimulationAborted) {
		t.Error("should match ErrSimulationAborted")
	}
	if !errors.Is(err, echem.ErrSingularSystem) {
		t.Error("should match the cause")
	}
	var ab *SimulationAbortedError
	if !errors.As(err, &ab) || ab.Sample != 3 {
		t.Errorf("errors.As gave %v", ab)
	}
}

func TestObserverFunc(t *testing.T) {
	var seen []int
	var o Observer = ObserverFunc(func(r Record) { seen = append(seen, r.Index) })
	o.OnSample(Record{Index: 4})
	o.OnSample(Record{Index: 5})
	if !reflect.DeepEqual(seen, []int{4, 5}) {
		t.Errorf("seen = %v", seen)
	}
}
