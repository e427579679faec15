package mechanism

import (
	"fmt"
	"strings"

	"github.com/san-kum/voltsim/internal/echem"
)

// Mapping binds the roles of a mechanism tag to species names and optionally
// supplies species definitions and step parameters. Missing kinetics default
// to a one-electron Nernstian couple at E0 = 0; missing rates to kf = 1.
type Mapping struct {
	Roles   map[string]string
	Species map[string]SpeciesSpec
	E       []Kinetics
	C       []Rates
}

type tagLayout struct {
	roles []string
	build func(d *Draft, name func(string) string, kin func(int) Kinetics, rates func(int) Rates)
}

var tags = map[string]tagLayout{
	"E": {
		roles: []string{"O", "R"},
		build: func(d *Draft, name func(string) string, kin func(int) Kinetics, _ func(int) Rates) {
			d.EStep(EStepSpec{Oxidized: name("O"), Reduced: name("R"), Kinetics: kin(0)})
		},
	},
	"EC": {
		roles: []string{"O", "R", "P"},
		build: func(d *Draft, name func(string) string, kin func(int) Kinetics, rates func(int) Rates) {
			d.EStep(EStepSpec{Oxidized: name("O"), Reduced: name("R"), Kinetics: kin(0)})
			d.CStep(CStepSpec{
				Reactants: []Coef{{Species: name("R"), Count: 1}},
				Products:  []Coef{{Species: name("P"), Count: 1}},
				Rates:     rates(0),
			})
		},
	},
	"CE": {
		roles: []string{"Z", "O", "R"},
		build: func(d *Draft, name func(string) string, kin func(int) Kinetics, rates func(int) Rates) {
			d.CStep(CStepSpec{
				Reactants: []Coef{{Species: name("Z"), Count: 1}},
				Products:  []Coef{{Species: name("O"), Count: 1}},
				Rates:     rates(0),
			})
			d.EStep(EStepSpec{Oxidized: name("O"), Reduced: name("R"), Kinetics: kin(0)})
		},
	},
	"EE": {
		roles: []string{"O", "I", "R"},
		build: func(d *Draft, name func(string) string, kin func(int) Kinetics, _ func(int) Rates) {
			d.EStep(EStepSpec{Oxidized: name("O"), Reduced: name("I"), Kinetics: kin(0)})
			d.EStep(EStepSpec{Oxidized: name("I"), Reduced: name("R"), Kinetics: kin(1)})
		},
	},
}

// Tags lists the supported shorthand tags.
func Tags() []string { return []string{"E", "EC", "CE", "EE"} }

// Roles returns the roles a tag needs mapped.
func Roles(tag string) ([]string, bool) {
	l, ok := tags[strings.ToUpper(tag)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), l.roles...), true
}

// FromTag expands a shorthand tag into a Draft. Without a mapping for every
// role the tag is ambiguous and no species are guessed.
func FromTag(tag string, m *Mapping) (*Draft, error) {
	key := strings.ToUpper(strings.TrimSpace(tag))
	layout, ok := tags[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", echem.ErrInvalidMechanism, tag)
	}
	if m == nil || len(m.Roles) == 0 {
		return nil, fmt.Errorf("%w: tag %q needs a species mapping for %s",
			echem.ErrAmbiguousMechanism, key, strings.Join(layout.roles, ", "))
	}
	for _, role := range layout.roles {
		if strings.TrimSpace(m.Roles[role]) == "" {
			return nil, fmt.Errorf("%w: tag %q has no species for role %s", echem.ErrAmbiguousMechanism, key, role)
		}
	}

	d := NewDraft()
	name := func(role string) string { return m.Roles[role] }
	kin := func(k int) Kinetics {
		if k < len(m.E) {
			return m.E[k]
		}
		return Kinetics{Mode: Nernst, N: 1, Alpha: 0.5, K0: 1}
	}
	rates := func(j int) Rates {
		if j < len(m.C) {
			return m.C[j]
		}
		return Rates{Kf: 1}
	}

	// Register species in role order so indices follow the tag.
	for _, role := range layout.roles {
		n := name(role)
		if spec, ok := m.Species[n]; ok {
			d.Species(n, spec)
		} else {
			d.assign(n)
		}
	}
	layout.build(d, name, kin, rates)
	return d, nil
}
