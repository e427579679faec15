package mechanism

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/voltsim/internal/echem"
	"github.com/san-kum/voltsim/internal/kinetics"
	"gonum.org/v1/gonum/mat"
)

// massTol is the relative tolerance of the mass-balance check.
const massTol = 1e-6

// CompileError lists every problem found in a draft. It matches
// echem.ErrInvalidMechanism.
type CompileError struct {
	Problems []string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s", echem.ErrInvalidMechanism, strings.Join(e.Problems, "; "))
}

func (e *CompileError) Unwrap() error { return echem.ErrInvalidMechanism }

func isInf(x float64) bool { return math.IsInf(x, 0) }

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func checkKinetics(k Kinetics) string {
	switch {
	case k.N < 1:
		return fmt.Sprintf("electron count must be at least 1, got %d", k.N)
	case !finite(k.E0):
		return "E0 must be finite"
	case k.Mode == ButlerVolmer && !(k.Alpha > 0 && k.Alpha < 1):
		return fmt.Sprintf("alpha must lie in (0, 1), got %g", k.Alpha)
	case k.Mode == ButlerVolmer && !(k.K0 > 0):
		return fmt.Sprintf("k0 must be positive for Butler-Volmer, got %g", k.K0)
	case k.Mode != ButlerVolmer && k.Mode != Nernst:
		return fmt.Sprintf("unknown mode %d", k.Mode)
	}
	return ""
}

func checkRates(r Rates) string {
	switch {
	case !(r.Kf >= 0) || !(r.Kr >= 0) || isInf(r.Kf) || isInf(r.Kr):
		return fmt.Sprintf("rate constants must be finite and non-negative, got kf=%g kr=%g", r.Kf, r.Kr)
	case r.Kf == 0 && r.Kr == 0:
		return "kf and kr are both zero"
	}
	return ""
}

type pair struct{ a, b int }

func unordered(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// Compile validates the draft and builds a Mechanism. Every problem found is
// reported in one *CompileError.
func (d *Draft) Compile() (*Mechanism, error) {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	m := &Mechanism{
		species: make([]Species, len(d.names)),
		index:   make(map[string]int, len(d.names)),
	}
	for i, name := range d.names {
		m.index[name] = i
		spec, ok := d.specs[name]
		if !ok {
			addf("unknown species %q", name)
		}
		if strings.TrimSpace(name) == "" {
			addf("species %d has an empty name", i)
		}
		if !(spec.D >= 0) || isInf(spec.D) {
			addf("species %q: diffusion coefficient must be finite and non-negative", name)
		}
		if !(spec.Bulk >= 0) || isInf(spec.Bulk) {
			addf("species %q: bulk concentration must be finite and non-negative", name)
		}
		if spec.MolarMass < 0 || !finite(spec.MolarMass) {
			addf("species %q: molar mass must be finite and non-negative", name)
		}
		m.species[i] = Species{Name: name, D: spec.D, Bulk: spec.Bulk, Charge: spec.Charge, MolarMass: spec.MolarMass}
	}

	modes := make(map[pair]Mode)
	for k, e := range d.esteps {
		o, r := d.index[e.Oxidized], d.index[e.Reduced]
		if o == r {
			addf("E-step %d: oxidized and reduced species are both %q", k, e.Oxidized)
			continue
		}
		if p := checkKinetics(e.Kinetics); p != "" {
			addf("E-step %d: %s", k, p)
		}
		key := unordered(o, r)
		if prev, ok := modes[key]; ok && prev != e.Mode {
			addf("E-step %d: %s/%s already defined with %s kinetics", k, e.Oxidized, e.Reduced, prev)
		} else if !ok {
			modes[key] = e.Mode
		}
		zo, zr := m.species[o].Charge, m.species[r].Charge
		if zo != nil && zr != nil && *zo-e.N != *zr {
			addf("E-step %d: charge imbalance, z(%s) - %d != z(%s)", k, e.Oxidized, e.N, e.Reduced)
		}
		mo, mr := m.species[o].MolarMass, m.species[r].MolarMass
		if mo > 0 && mr > 0 && math.Abs(mo-mr) > massTol*math.Max(mo, mr) {
			addf("E-step %d: mass imbalance between %s and %s", k, e.Oxidized, e.Reduced)
		}
		m.esteps = append(m.esteps, EStep{O: o, R: r, Kinetics: e.Kinetics})
		m.obs = append(m.obs, Observable{Name: fmt.Sprintf("E%d %s/%s", k+1, e.Oxidized, e.Reduced), EStep: len(m.esteps) - 1})
	}

	for j, c := range d.csteps {
		reactants, rp := d.terms(c.Reactants)
		products, pp := d.terms(c.Products)
		for _, p := range append(rp, pp...) {
			addf("C-step %d: %s", j, p)
		}
		if p := checkRates(c.Rates); p != "" {
			addf("C-step %d: %s", j, p)
		}
		if len(rp)+len(pp) == 0 {
			if p := d.checkBalance(m, reactants, products); p != "" {
				addf("C-step %d: %s", j, p)
			}
		}
		m.csteps = append(m.csteps, CStep{Reactants: reactants, Products: products, Rates: c.Rates})
	}

	if len(problems) > 0 {
		return nil, &CompileError{Problems: problems}
	}

	ns := len(m.species)
	if len(m.csteps) > 0 && ns > 0 {
		m.stoich = mat.NewDense(ns, len(m.csteps), nil)
		for j, c := range m.csteps {
			for _, t := range c.Reactants {
				m.stoich.Set(t.Species, j, m.stoich.At(t.Species, j)-float64(t.Order))
			}
			for _, t := range c.Products {
				m.stoich.Set(t.Species, j, m.stoich.At(t.Species, j)+float64(t.Order))
			}
		}
	}
	if len(m.esteps) > 0 {
		m.elec = mat.NewDense(ns, len(m.esteps), nil)
		for k, e := range m.esteps {
			m.elec.Set(e.O, k, -1)
			m.elec.Set(e.R, k, 1)
		}
	}
	return m, nil
}

// terms converts coefficients, merging repeated species.
func (d *Draft) terms(coefs []Coef) ([]kinetics.Term, []string) {
	var out []kinetics.Term
	var problems []string
	seen := make(map[int]int)
	for _, c := range coefs {
		if c.Count <= 0 || c.Count != math.Trunc(c.Count) || isInf(c.Count) {
			problems = append(problems, fmt.Sprintf("coefficient of %q must be a positive integer, got %g", c.Species, c.Count))
			continue
		}
		i := d.index[c.Species]
		if at, ok := seen[i]; ok {
			out[at].Order += int(c.Count)
			continue
		}
		seen[i] = len(out)
		out = append(out, kinetics.Term{Species: i, Order: int(c.Count)})
	}
	return out, problems
}

func (d *Draft) checkBalance(m *Mechanism, reactants, products []kinetics.Term) string {
	net := make(map[int]int)
	for _, t := range reactants {
		net[t.Species] -= t.Order
	}
	for _, t := range products {
		net[t.Species] += t.Order
	}
	participants := 0
	for _, v := range net {
		if v != 0 {
			participants++
		}
	}
	if participants == 0 {
		return "zero net participants"
	}

	charged, massed := true, true
	charge, mass, scale := 0, 0.0, 0.0
	for i, v := range net {
		s := m.species[i]
		if s.Charge == nil {
			charged = false
		} else {
			charge += v * *s.Charge
		}
		if s.MolarMass <= 0 {
			massed = false
		} else {
			mass += float64(v) * s.MolarMass
			scale = math.Max(scale, math.Abs(float64(v))*s.MolarMass)
		}
	}
	if charged && charge != 0 {
		return fmt.Sprintf("charge imbalance of %d", charge)
	}
	if massed && math.Abs(mass) > massTol*scale {
		return fmt.Sprintf("mass imbalance of %g g/mol", mass)
	}
	return ""
}
