package mechanism

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/kinetics"
	"gonum.org/v1/gonum/mat"
)

// Species is a compiled species.
type Species struct {
	Name      string
	D         float64
	Bulk      float64
	Charge    *int
	MolarMass float64
}

// EStep is a compiled electrode step referencing species by index.
type EStep struct {
	O, R int
	Kinetics
}

// CStep is a compiled homogeneous step.
type CStep struct {
	Reactants []kinetics.Term
	Products  []kinetics.Term
	Rates
}

// Observable is one current trace, produced by one E-step.
type Observable struct {
	Name  string
	EStep int
}

// Mechanism is a compiled mechanism.
type Mechanism struct {
	species []Species
	index   map[string]int
	esteps  []EStep
	csteps  []CStep
	stoich  *mat.Dense
	elec    *mat.Dense
	obs     []Observable

	// mu orders setters against Lock; reads after Lock need no lock.
	mu     sync.Mutex
	locked atomic.Bool
}

func (m *Mechanism) NumSpecies() int { return len(m.species) }
func (m *Mechanism) NumESteps() int  { return len(m.esteps) }
func (m *Mechanism) NumCSteps() int  { return len(m.csteps) }

// Closed reports a mechanism without electrode steps.
func (m *Mechanism) Closed() bool { return len(m.esteps) == 0 }

func (m *Mechanism) Species(i int) Species { return m.species[i] }

// SpeciesIndex looks a species up by name.
func (m *Mechanism) SpeciesIndex(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

func (m *Mechanism) SpeciesNames() []string {
	out := make([]string, len(m.species))
	for i, s := range m.species {
		out[i] = s.Name
	}
	return out
}

func (m *Mechanism) EStep(k int) EStep { return m.esteps[k] }

func (m *Mechanism) CStep(j int) CStep {
	c := m.csteps[j]
	c.Reactants = append([]kinetics.Term(nil), c.Reactants...)
	c.Products = append([]kinetics.Term(nil), c.Products...)
	return c
}

// Stoichiometry is the species × C-steps matrix, nil without C-steps.
func (m *Mechanism) Stoichiometry() mat.Matrix {
	if m.stoich == nil {
		return nil
	}
	return m.stoich
}

// ElectrodeStoichiometry is the species × E-steps matrix of the reduction
// direction: −1 on the oxidized species and +1 on the reduced one.
func (m *Mechanism) ElectrodeStoichiometry() mat.Matrix {
	if m.elec == nil {
		return nil
	}
	return m.elec
}

func (m *Mechanism) Observables() []Observable {
	return append([]Observable(nil), m.obs...)
}

// MaxD is the largest diffusion coefficient.
func (m *Mechanism) MaxD() float64 {
	d := 0.0
	for _, s := range m.species {
		d = max(d, s.D)
	}
	return d
}

// Network builds the homogeneous reaction network from the current rates.
func (m *Mechanism) Network() *kinetics.Network {
	rs := make([]kinetics.Reaction, len(m.csteps))
	for j, c := range m.csteps {
		rs[j] = kinetics.Reaction{Reactants: c.Reactants, Products: c.Products, Kf: c.Kf, Kr: c.Kr}
	}
	return kinetics.NewNetwork(len(m.species), rs)
}

// Lock freezes the mechanism. It is idempotent. A setter either completes
// before Lock returns or fails with ErrMechanismLocked.
func (m *Mechanism) Lock() {
	m.mu.Lock()
	m.locked.Store(true)
	m.mu.Unlock()
}

func (m *Mechanism) Locked() bool { return m.locked.Load() }

// mutate runs fn under mu unless the mechanism is locked.
func (m *Mechanism) mutate(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked.Load() {
		return echem.ErrMechanismLocked
	}
	return fn()
}

// SetEStepKinetics replaces the kinetics of E-step k.
func (m *Mechanism) SetEStepKinetics(k int, kin Kinetics) error {
	return m.mutate(func() error { return m.setEStepKinetics(k, kin) })
}

func (m *Mechanism) setEStepKinetics(k int, kin Kinetics) error {
	if k < 0 || k >= len(m.esteps) {
		return fmt.Errorf("%w: no E-step %d", echem.ErrInvalidMechanism, k)
	}
	if p := checkKinetics(kin); p != "" {
		return fmt.Errorf("%w: E-step %d: %s", echem.ErrInvalidMechanism, k, p)
	}
	m.esteps[k].Kinetics = kin
	return nil
}

// SetCStepRates replaces the rate constants of C-step j.
func (m *Mechanism) SetCStepRates(j int, r Rates) error {
	return m.mutate(func() error { return m.setCStepRates(j, r) })
}

func (m *Mechanism) setCStepRates(j int, r Rates) error {
	if j < 0 || j >= len(m.csteps) {
		return fmt.Errorf("%w: no C-step %d", echem.ErrInvalidMechanism, j)
	}
	if p := checkRates(r); p != "" {
		return fmt.Errorf("%w: C-step %d: %s", echem.ErrInvalidMechanism, j, p)
	}
	m.csteps[j].Rates = r
	return nil
}

// SetBulk changes the bulk concentration of a species.
func (m *Mechanism) SetBulk(name string, c float64) error {
	return m.mutate(func() error { return m.setBulk(name, c) })
}

func (m *Mechanism) setBulk(name string, c float64) error {
	i, ok := m.index[name]
	if !ok {
		return fmt.Errorf("%w: unknown species %q", echem.ErrInvalidMechanism, name)
	}
	if !(c >= 0) || isInf(c) {
		return fmt.Errorf("%w: species %q: bulk must be finite and non-negative", echem.ErrInvalidMechanism, name)
	}
	m.species[i].Bulk = c
	return nil
}

// Clone returns an unlocked deep copy.
func (m *Mechanism) Clone() *Mechanism {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Mechanism{
		species: append([]Species(nil), m.species...),
		index:   make(map[string]int, len(m.index)),
		esteps:  append([]EStep(nil), m.esteps...),
		csteps:  make([]CStep, len(m.csteps)),
		obs:     append([]Observable(nil), m.obs...),
	}
	for k, v := range m.index {
		c.index[k] = v
	}
	for j := range m.csteps {
		c.csteps[j] = m.CStep(j)
	}
	if m.stoich != nil {
		c.stoich = mat.DenseCopyOf(m.stoich)
	}
	if m.elec != nil {
		c.elec = mat.DenseCopyOf(m.elec)
	}
	return c
}
