package integrators

import (
	"errors"
	"testing"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveKnownSystem(t *testing.T) {
	// [2 1 0; 1 3 1; 0 1 2] x = [4 10 8] has x = [1 2 3].
	lower := []float64{0, 1, 1}
	diag := []float64{2, 3, 2}
	upper := []float64{1, 1, 0}
	rhs := []float64{4, 10, 8}

	x, err := NewSolver().Solve(lower, diag, upper, rhs, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, x, 1e-12)
}

func TestSolveReusesScratch(t *testing.T) {
	s := NewSolver()
	for _, n := range []int{5, 5, 9, 3} {
		lower := make([]float64, n)
		diag := make([]float64, n)
		upper := make([]float64, n)
		rhs := make([]float64, n)
		for i := range diag {
			lower[i], diag[i], upper[i], rhs[i] = -1, 4, -1, 2
		}
		x, err := s.Solve(lower, diag, upper, rhs, nil)
		require.NoError(t, err)
		for i := range x {
			r := diag[i] * x[i]
			if i > 0 {
				r += lower[i] * x[i-1]
			}
			if i < n-1 {
				r += upper[i] * x[i+1]
			}
			assert.InDelta(t, rhs[i], r, 1e-12)
		}
	}
}

func TestSolveSingular(t *testing.T) {
	tests := []struct {
		name             string
		lower, diag, upp []float64
		row              int
	}{
		{"zero first pivot", []float64{0, 1, 1}, []float64{0, 3, 2}, []float64{1, 1, 0}, 0},
		{"eliminated pivot", []float64{0, 1, 0}, []float64{1, 1, 1}, []float64{1, 0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSolver().Solve(tt.lower, tt.diag, tt.upp, []float64{1, 1, 1}, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, echem.ErrSingularSystem))

			var se *echem.SingularSystemError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.row, se.Row)
		})
	}
}

func TestReduceToSurfaceMatchesFullSolve(t *testing.T) {
	n := 12
	lower := make([]float64, n)
	diag := make([]float64, n)
	upper := make([]float64, n)
	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], diag[i], upper[i] = -0.7, 2.5, -0.9
		rhs[i] = float64(i%4) + 0.5
	}
	lower[0] = 0
	diag[n-1], lower[n-1], rhs[n-1] = 1, 0, 1.25

	s := NewSolver()
	p, q, err := s.ReduceToSurface(lower, diag, upper, rhs)
	require.NoError(t, err)

	for _, c0 := range []float64{0, 0.3, 2} {
		d := append([]float64(nil), diag...)
		u := append([]float64(nil), upper...)
		r := append([]float64(nil), rhs...)
		d[0], u[0], r[0] = 1, 0, c0

		x, err := s.Solve(lower, d, u, r, nil)
		require.NoError(t, err)
		assert.InDelta(t, p+q*c0, x[1], 1e-12)
	}
}
