package config

import "sort"

func couple(d float64) []SpeciesConfig {
	return []SpeciesConfig{
		{Name: "O", D: d, Bulk: DefaultBulk},
		{Name: "R", D: d},
	}
}

func cv(start, vertex float64, rate, dt float64) WaveformConfig {
	return WaveformConfig{Kind: "cv", Start: start, Vertex: vertex, Return: ptr(start), Cycles: 1, ScanRate: rate, Dt: dt}
}

func engine() EngineConfig {
	return EngineConfig{Scheme: "cn", Splitting: "lie", Area: DefaultArea, Temperature: DefaultTemperature}
}

// Presets build fresh configs so callers may edit them.
var Presets = map[string]func() *Config{
	"e_reversible": DefaultConfig,
	"e_quasi": func() *Config {
		return &Config{
			Name: "e_quasi",
			Mechanism: MechanismConfig{
				Species: couple(DefaultD),
				ESteps: []EStepConfig{
					{Oxidized: "O", Reduced: "R", KineticsConfig: KineticsConfig{Mode: "bv", N: 1, K0: 1e-3, Alpha: 0.5}},
				},
			},
			Grid:     GridConfig{Lambda: DefaultLambda},
			Waveform: cv(0.5, -0.5, DefaultScanRate, 5e-3),
			Engine:   engine(),
		}
	},
	"ec": func() *Config {
		return &Config{
			Name: "ec",
			Mechanism: MechanismConfig{
				Tag:     "EC",
				Roles:   map[string]string{"O": "O", "R": "R", "P": "P"},
				Species: append(couple(DefaultD), SpeciesConfig{Name: "P", D: DefaultD}),
				ESteps:  []EStepConfig{{KineticsConfig: KineticsConfig{Mode: "nernst", N: 1}}},
				CSteps:  []CStepConfig{{Kf: 1}},
			},
			Grid:     GridConfig{Lambda: DefaultLambda},
			Waveform: cv(0.3, -0.3, DefaultScanRate, 5e-3),
			Engine:   engine(),
		}
	},
	"ce": func() *Config {
		return &Config{
			Name: "ce",
			Mechanism: MechanismConfig{
				Tag:   "CE",
				Roles: map[string]string{"Z": "Z", "O": "O", "R": "R"},
				Species: []SpeciesConfig{
					{Name: "Z", D: DefaultD, Bulk: DefaultBulk / 1.1},
					{Name: "O", D: DefaultD, Bulk: DefaultBulk / 11},
					{Name: "R", D: DefaultD},
				},
				ESteps: []EStepConfig{{KineticsConfig: KineticsConfig{Mode: "nernst", N: 1}}},
				CSteps: []CStepConfig{{Kf: 1, Kr: 10}},
			},
			Grid:     GridConfig{Lambda: DefaultLambda},
			Waveform: cv(0.3, -0.3, DefaultScanRate, 5e-3),
			Engine:   engine(),
		}
	},
	"ee": func() *Config {
		return &Config{
			Name: "ee",
			Mechanism: MechanismConfig{
				Tag:   "EE",
				Roles: map[string]string{"O": "O", "I": "I", "R": "R"},
				Species: []SpeciesConfig{
					{Name: "O", D: DefaultD, Bulk: DefaultBulk},
					{Name: "I", D: DefaultD},
					{Name: "R", D: DefaultD},
				},
				ESteps: []EStepConfig{
					{KineticsConfig: KineticsConfig{Mode: "nernst", N: 1, E0: 0}},
					{KineticsConfig: KineticsConfig{Mode: "nernst", N: 1, E0: -0.2}},
				},
			},
			Grid:     GridConfig{Lambda: DefaultLambda},
			Waveform: cv(0.3, -0.6, DefaultScanRate, 5e-3),
			Engine:   engine(),
		}
	},
	"closed_ab": func() *Config {
		return &Config{
			Name: "closed_ab",
			Mechanism: MechanismConfig{
				Species: []SpeciesConfig{
					{Name: "A", D: DefaultD, Bulk: DefaultBulk},
					{Name: "B", D: DefaultD},
				},
				CSteps: []CStepConfig{{
					Reactants: []TermConfig{{Species: "A", Count: 1}},
					Products:  []TermConfig{{Species: "B", Count: 1}},
					Kf:        2,
					Kr:        1,
				}},
			},
			Grid:     GridConfig{Lambda: DefaultLambda},
			Waveform: WaveformConfig{Kind: "step", Duration: 5, Dt: 0.01},
			Engine:   EngineConfig{Scheme: "cn", Splitting: "strang", Area: DefaultArea, Temperature: DefaultTemperature},
		}
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
