// Package mechanism describes an electrochemical mechanism (species, electrode
// E-steps and homogeneous C-steps) and compiles it into the index-based form
// the engine runs.
//
// A mechanism moves through three states. A Draft is a mutable builder whose
// species are registered on first reference. Compile validates it and returns
// a *Mechanism whose kinetic parameters can still be tuned. The first engine
// run locks the Mechanism, after which tuning fails with
// echem.ErrMechanismLocked and the value may be shared between goroutines.
package mechanism

import (
	"fmt"
	"strings"
)

// Mode selects the electrode kinetics of an E-step.
type Mode int

const (
	ButlerVolmer Mode = iota
	Nernst
)

func (m Mode) String() string {
	if m == Nernst {
		return "nernst"
	}
	return "butler-volmer"
}

// ParseMode accepts "nernst", "bv" and "butler-volmer".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nernst", "reversible":
		return Nernst, nil
	case "", "bv", "butler-volmer", "butlervolmer":
		return ButlerVolmer, nil
	}
	return ButlerVolmer, fmt.Errorf("unknown electrode mode %q", s)
}

// SpeciesSpec defines a species. Charge is optional; charge balance is only
// checked for steps whose species all declare one. MolarMass (g/mol) is
// likewise optional and enables the mass-balance check.
type SpeciesSpec struct {
	D         float64
	Bulk      float64
	Charge    *int
	MolarMass float64
}

// Charge returns a pointer for SpeciesSpec.Charge.
func Charge(z int) *int { return &z }

// Kinetics are the tunable parameters of an E-step. K0 is ignored in Nernst
// mode.
type Kinetics struct {
	Mode  Mode
	N     int
	E0    float64
	K0    float64
	Alpha float64
}

// Rates are the tunable parameters of a C-step.
type Rates struct {
	Kf, Kr float64
}

// EStepSpec is Oxidized + N e ⇌ Reduced at the electrode.
type EStepSpec struct {
	Oxidized string
	Reduced  string
	Kinetics
}

// Coef is a species with its stoichiometric coefficient. Coefficients must be
// positive integers; they are floats so that a bad input can be reported
// instead of truncated.
type Coef struct {
	Species string
	Count   float64
}

// CStepSpec is Σ reactants ⇌ Σ products in solution.
type CStepSpec struct {
	Reactants []Coef
	Products  []Coef
	Rates
}

// Draft is the mutable builder for a mechanism.
type Draft struct {
	names  []string
	index  map[string]int
	specs  map[string]SpeciesSpec
	esteps []EStepSpec
	csteps []CStepSpec
}

func NewDraft() *Draft {
	return &Draft{
		index: make(map[string]int),
		specs: make(map[string]SpeciesSpec),
	}
}

func (d *Draft) assign(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	i := len(d.names)
	d.index[name] = i
	d.names = append(d.names, name)
	return i
}

// Species defines (or redefines) a species.
func (d *Draft) Species(name string, spec SpeciesSpec) *Draft {
	d.assign(name)
	d.specs[name] = spec
	return d
}

// EStep appends an electrode step.
func (d *Draft) EStep(spec EStepSpec) *Draft {
	d.assign(spec.Oxidized)
	d.assign(spec.Reduced)
	d.esteps = append(d.esteps, spec)
	return d
}

// CStep appends a homogeneous step.
func (d *Draft) CStep(spec CStepSpec) *Draft {
	spec.Reactants = append([]Coef(nil), spec.Reactants...)
	spec.Products = append([]Coef(nil), spec.Products...)
	for _, c := range spec.Reactants {
		d.assign(c.Species)
	}
	for _, c := range spec.Products {
		d.assign(c.Species)
	}
	d.csteps = append(d.csteps, spec)
	return d
}

// Names returns the registered species in first-reference order.
func (d *Draft) Names() []string {
	return append([]string(nil), d.names...)
}
