package mechanism

import (
	"errors"
	"sync"
	"testing"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ferro() SpeciesSpec   { return SpeciesSpec{D: 1e-5, Bulk: 1e-6, Charge: Charge(3)} }
func ferroII() SpeciesSpec { return SpeciesSpec{D: 1e-5, Charge: Charge(2)} }

func simpleE() *Draft {
	return NewDraft().
		Species("Fe3", ferro()).
		Species("Fe2", ferroII()).
		EStep(EStepSpec{Oxidized: "Fe3", Reduced: "Fe2", Kinetics: Kinetics{Mode: ButlerVolmer, N: 1, K0: 0.01, Alpha: 0.5}})
}

func TestCompileRegistryOrder(t *testing.T) {
	d := NewDraft().
		EStep(EStepSpec{Oxidized: "B", Reduced: "A", Kinetics: Kinetics{Mode: Nernst, N: 1}}).
		CStep(CStepSpec{Reactants: []Coef{{"A", 1}}, Products: []Coef{{"C", 1}}, Rates: Rates{Kf: 1}}).
		Species("A", SpeciesSpec{D: 1e-5}).
		Species("B", SpeciesSpec{D: 1e-5, Bulk: 1e-6}).
		Species("C", SpeciesSpec{D: 1e-5})

	assert.Equal(t, []string{"B", "A", "C"}, d.Names())
	m, err := d.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, m.SpeciesNames())

	s := m.Stoichiometry()
	require.NotNil(t, s)
	assert.Equal(t, 0.0, s.At(0, 0))
	assert.Equal(t, -1.0, s.At(1, 0))
	assert.Equal(t, 1.0, s.At(2, 0))

	e := m.ElectrodeStoichiometry()
	assert.Equal(t, -1.0, e.At(0, 0))
	assert.Equal(t, 1.0, e.At(1, 0))

	obs := m.Observables()
	require.Len(t, obs, 1)
	assert.Equal(t, 0, obs[0].EStep)
	assert.False(t, m.Closed())
}

func TestCompileErrors(t *testing.T) {
	bv := Kinetics{Mode: ButlerVolmer, N: 1, K0: 0.01, Alpha: 0.5}
	tests := []struct {
		name  string
		draft func() *Draft
		want  string
	}{
		{"unknown species", func() *Draft {
			return NewDraft().Species("O", ferro()).EStep(EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: bv})
		}, `unknown species "R"`},
		{"fractional coefficient", func() *Draft {
			return NewDraft().Species("A", ferro()).Species("B", ferro()).
				CStep(CStepSpec{Reactants: []Coef{{"A", 1.5}}, Products: []Coef{{"B", 1}}, Rates: Rates{Kf: 1}})
		}, "positive integer"},
		{"negative coefficient", func() *Draft {
			return NewDraft().Species("A", ferro()).Species("B", ferro()).
				CStep(CStepSpec{Reactants: []Coef{{"A", -1}}, Products: []Coef{{"B", 1}}, Rates: Rates{Kf: 1}})
		}, "positive integer"},
		{"zero participants", func() *Draft {
			return NewDraft().Species("A", ferro()).
				CStep(CStepSpec{Reactants: []Coef{{"A", 1}}, Products: []Coef{{"A", 1}}, Rates: Rates{Kf: 1}})
		}, "zero net participants"},
		{"conflicting modes", func() *Draft {
			return simpleE().EStep(EStepSpec{Oxidized: "Fe2", Reduced: "Fe3", Kinetics: Kinetics{Mode: Nernst, N: 1}})
		}, "already defined"},
		{"charge imbalance", func() *Draft {
			return NewDraft().Species("O", ferro()).Species("R", ferro()).
				EStep(EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: bv})
		}, "charge imbalance"},
		{"c-step charge imbalance", func() *Draft {
			return NewDraft().Species("A", ferro()).Species("B", ferroII()).
				CStep(CStepSpec{Reactants: []Coef{{"A", 1}}, Products: []Coef{{"B", 1}}, Rates: Rates{Kf: 1}})
		}, "charge imbalance"},
		{"mass imbalance", func() *Draft {
			return NewDraft().
				Species("A", SpeciesSpec{D: 1e-5, MolarMass: 30}).
				Species("B", SpeciesSpec{D: 1e-5, MolarMass: 50}).
				CStep(CStepSpec{Reactants: []Coef{{"A", 2}}, Products: []Coef{{"B", 1}}, Rates: Rates{Kf: 1}})
		}, "mass imbalance"},
		{"bad alpha", func() *Draft {
			return NewDraft().Species("O", ferro()).Species("R", ferroII()).
				EStep(EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: Kinetics{N: 1, K0: 1, Alpha: 1}})
		}, "alpha"},
		{"zero electrons", func() *Draft {
			return NewDraft().Species("O", SpeciesSpec{D: 1e-5}).Species("R", SpeciesSpec{D: 1e-5}).
				EStep(EStepSpec{Oxidized: "O", Reduced: "R", Kinetics: Kinetics{Mode: Nernst}})
		}, "electron count"},
		{"same species", func() *Draft {
			return NewDraft().Species("O", ferro()).EStep(EStepSpec{Oxidized: "O", Reduced: "O", Kinetics: bv})
		}, "both"},
		{"no rates", func() *Draft {
			return NewDraft().Species("A", ferro()).Species("B", ferro()).
				CStep(CStepSpec{Reactants: []Coef{{"A", 1}}, Products: []Coef{{"B", 1}}})
		}, "both zero"},
		{"negative diffusion", func() *Draft {
			return NewDraft().Species("A", SpeciesSpec{D: -1})
		}, "diffusion coefficient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.draft().Compile()
			require.Error(t, err)
			assert.True(t, errors.Is(err, echem.ErrInvalidMechanism))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMassBalanceAccepted(t *testing.T) {
	_, err := NewDraft().
		Species("A", SpeciesSpec{D: 1e-5, MolarMass: 25}).
		Species("B", SpeciesSpec{D: 1e-5, MolarMass: 50}).
		CStep(CStepSpec{Reactants: []Coef{{"A", 2}}, Products: []Coef{{"B", 1}}, Rates: Rates{Kf: 1}}).
		Compile()
	assert.NoError(t, err)
}

func TestLockLifecycle(t *testing.T) {
	m, err := simpleE().Compile()
	require.NoError(t, err)

	require.NoError(t, m.SetBulk("Fe3", 2e-6))
	require.NoError(t, m.SetEStepKinetics(0, Kinetics{Mode: ButlerVolmer, N: 1, K0: 1, Alpha: 0.4}))
	assert.ErrorIs(t, m.SetEStepKinetics(0, Kinetics{Mode: ButlerVolmer, N: 1, K0: -1, Alpha: 0.4}), echem.ErrInvalidMechanism)
	assert.ErrorIs(t, m.SetBulk("nope", 1), echem.ErrInvalidMechanism)

	clone := m.Clone()
	m.Lock()
	m.Lock()
	assert.True(t, m.Locked())

	assert.ErrorIs(t, m.SetBulk("Fe3", 1e-6), echem.ErrMechanismLocked)
	assert.ErrorIs(t, m.SetEStepKinetics(0, Kinetics{Mode: Nernst, N: 1}), echem.ErrMechanismLocked)
	assert.ErrorIs(t, m.SetCStepRates(0, Rates{Kf: 1}), echem.ErrMechanismLocked)

	assert.False(t, clone.Locked())
	require.NoError(t, clone.SetBulk("Fe3", 5e-6))
	assert.Equal(t, 2e-6, m.Species(0).Bulk)
	assert.Equal(t, 5e-6, clone.Species(0).Bulk)
	assert.Equal(t, 0.4, m.EStep(0).Alpha)
}

func TestLockedReadsAreConcurrent(t *testing.T) {
	m, err := simpleE().Compile()
	require.NoError(t, err)
	m.Lock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Network()
			_ = m.EStep(0)
			_ = m.MaxD()
		}()
	}
	wg.Wait()
}

func TestSettersCannotWriteAfterLock(t *testing.T) {
	for round := 0; round < 50; round++ {
		m, err := simpleE().Compile()
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			last float64
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := 1.0; ; v++ {
				err := m.SetBulk("Fe3", v*1e-9)
				if errors.Is(err, echem.ErrMechanismLocked) {
					return
				}
				if err == nil {
					last = v * 1e-9
				}
			}
		}()
		m.Lock()
		frozen := m.Species(0).Bulk
		wg.Wait()

		assert.Equal(t, frozen, m.Species(0).Bulk, "round %d", round)
		if last > 0 {
			assert.Equal(t, last, frozen, "round %d", round)
		}
	}
}
