package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/voltsim/internal/mechanism"
)

const (
	DefaultD           = 1e-5
	DefaultBulk        = 1e-6
	DefaultScanRate    = 0.1
	DefaultDt          = 1e-3
	DefaultLambda      = 0.45
	DefaultArea        = 1.0
	DefaultTemperature = 298.15
)

// Config describes one run: the mechanism, the grid, the potential program
// and the engine options.
type Config struct {
	Name      string          `yaml:"name,omitempty"`
	Mechanism MechanismConfig `yaml:"mechanism"`
	Grid      GridConfig      `yaml:"grid"`
	Waveform  WaveformConfig  `yaml:"waveform"`
	Engine    EngineConfig    `yaml:"engine"`
	Metrics   []string        `yaml:"metrics,omitempty"`
}

// MechanismConfig is either a shorthand tag with a role mapping or an explicit
// list of steps. With a tag, e_steps and c_steps only supply kinetics and
// rates in tag order.
type MechanismConfig struct {
	Tag     string            `yaml:"tag,omitempty" validate:"omitempty,mechtag"`
	Roles   map[string]string `yaml:"roles,omitempty"`
	Species []SpeciesConfig   `yaml:"species" validate:"required,min=1,dive"`
	ESteps  []EStepConfig     `yaml:"e_steps,omitempty" validate:"dive"`
	CSteps  []CStepConfig     `yaml:"c_steps,omitempty" validate:"dive"`
}

type SpeciesConfig struct {
	Name      string  `yaml:"name" validate:"required"`
	D         float64 `yaml:"d" validate:"gt=0"`
	Bulk      float64 `yaml:"bulk" validate:"gte=0"`
	Charge    *int    `yaml:"charge,omitempty"`
	MolarMass float64 `yaml:"molar_mass,omitempty" validate:"gte=0"`
}

type KineticsConfig struct {
	Mode  string  `yaml:"mode" validate:"omitempty,oneof=nernst reversible bv butler-volmer butlervolmer"`
	N     int     `yaml:"n" validate:"gte=0"`
	E0    float64 `yaml:"e0"`
	K0    float64 `yaml:"k0" validate:"gte=0"`
	Alpha float64 `yaml:"alpha" validate:"gte=0,lte=1"`
}

type EStepConfig struct {
	Oxidized       string `yaml:"o,omitempty"`
	Reduced        string `yaml:"r,omitempty"`
	KineticsConfig `yaml:",inline"`
}

type TermConfig struct {
	Species string  `yaml:"species" validate:"required"`
	Count   float64 `yaml:"count" validate:"gte=0"`
}

type CStepConfig struct {
	Reactants []TermConfig `yaml:"reactants,omitempty" validate:"dive"`
	Products  []TermConfig `yaml:"products,omitempty" validate:"dive"`
	Kf        float64      `yaml:"kf" validate:"gte=0"`
	Kr        float64      `yaml:"kr" validate:"gte=0"`
}

// GridConfig sizes the spatial grid. Zero nodes picks the grid from the
// diffusion length of the run.
type GridConfig struct {
	Length float64 `yaml:"length,omitempty" validate:"gte=0"`
	Nodes  int     `yaml:"nodes,omitempty" validate:"omitempty,gte=3"`
	Lambda float64 `yaml:"lambda,omitempty" validate:"gte=0"`
}

type WaveformConfig struct {
	Kind     string   `yaml:"kind" validate:"required,oneof=cv lsv step file"`
	Start    float64  `yaml:"start"`
	Vertex   float64  `yaml:"vertex,omitempty"`
	Return   *float64 `yaml:"return,omitempty"`
	End      float64  `yaml:"end,omitempty"`
	Cycles   int      `yaml:"cycles,omitempty" validate:"gte=0"`
	ScanRate float64  `yaml:"scan_rate,omitempty" validate:"gte=0"`
	Dt       float64  `yaml:"dt" validate:"gt=0"`
	Duration float64  `yaml:"duration,omitempty" validate:"gte=0"`
	TStep    float64  `yaml:"t_step,omitempty" validate:"gte=0"`
	File     string   `yaml:"file,omitempty" validate:"required_if=Kind file"`
}

type DtPolicyConfig struct {
	Kind   string  `yaml:"kind,omitempty" validate:"omitempty,oneof=fixed subdivide refine"`
	MaxDt  float64 `yaml:"max_dt,omitempty" validate:"gte=0"`
	Factor int     `yaml:"factor,omitempty" validate:"gte=0"`
	Window int     `yaml:"window,omitempty" validate:"gte=0"`
}

type EngineConfig struct {
	Scheme            string         `yaml:"scheme,omitempty" validate:"omitempty,oneof=cn crank-nicolson cranknicolson be backward-euler backwardeuler implicit-euler"`
	Splitting         string         `yaml:"splitting,omitempty" validate:"omitempty,oneof=lie strang"`
	DtPolicy          DtPolicyConfig `yaml:"dt_policy,omitempty"`
	Area              float64        `yaml:"area,omitempty" validate:"gte=0"`
	Temperature       float64        `yaml:"temperature,omitempty" validate:"gte=0"`
	SurfaceTolerance  float64        `yaml:"surface_tolerance,omitempty" validate:"gte=0"`
	SurfaceMaxIter    int            `yaml:"surface_max_iter,omitempty" validate:"gte=0"`
	SurfaceDamping    float64        `yaml:"surface_damping,omitempty" validate:"gte=0,lte=1"`
	ReactionTolerance float64        `yaml:"reaction_tolerance,omitempty" validate:"gte=0"`
	ReactionMaxIter   int            `yaml:"reaction_max_iter,omitempty" validate:"gte=0"`
	Snapshots         []int          `yaml:"snapshots,omitempty" validate:"dive,gte=0"`
}

func ptr(v float64) *float64 { return &v }

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("mechtag", func(fl validator.FieldLevel) bool {
		_, ok := mechanism.Roles(fl.Field().String())
		return ok
	})
}

// DefaultConfig is a reversible one-electron couple swept at 100 mV/s.
func DefaultConfig() *Config {
	return &Config{
		Name: "e_reversible",
		Mechanism: MechanismConfig{
			Species: []SpeciesConfig{
				{Name: "O", D: DefaultD, Bulk: DefaultBulk},
				{Name: "R", D: DefaultD},
			},
			ESteps: []EStepConfig{
				{Oxidized: "O", Reduced: "R", KineticsConfig: KineticsConfig{Mode: "nernst", N: 1, Alpha: 0.5}},
			},
		},
		Grid: GridConfig{Lambda: DefaultLambda},
		Waveform: WaveformConfig{
			Kind:     "cv",
			Start:    0.3,
			Vertex:   -0.3,
			Return:   ptr(0.3),
			Cycles:   1,
			ScanRate: DefaultScanRate,
			Dt:       5e-3,
		},
		Engine: EngineConfig{
			Scheme:      "cn",
			Splitting:   "lie",
			Area:        DefaultArea,
			Temperature: DefaultTemperature,
		},
	}
}

// Parse decodes YAML on top of an empty config and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints and the parts of the description that
// need more than one field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	w := c.Waveform
	switch w.Kind {
	case "cv", "lsv":
		if w.ScanRate <= 0 {
			return fmt.Errorf("invalid config: %s waveform needs a positive scan_rate", w.Kind)
		}
	case "step":
		if w.Duration <= 0 {
			return errors.New("invalid config: step waveform needs a positive duration")
		}
	}
	if c.Mechanism.Tag == "" {
		for i, e := range c.Mechanism.ESteps {
			if e.Oxidized == "" || e.Reduced == "" {
				return fmt.Errorf("invalid config: e_steps[%d] needs o and r", i)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	m := &out.Mechanism
	if c.Mechanism.Roles != nil {
		m.Roles = make(map[string]string, len(c.Mechanism.Roles))
		for k, v := range c.Mechanism.Roles {
			m.Roles[k] = v
		}
	}
	m.Species = append([]SpeciesConfig(nil), c.Mechanism.Species...)
	for i, s := range m.Species {
		if s.Charge != nil {
			z := *s.Charge
			m.Species[i].Charge = &z
		}
	}
	m.ESteps = append([]EStepConfig(nil), c.Mechanism.ESteps...)
	m.CSteps = append([]CStepConfig(nil), c.Mechanism.CSteps...)
	for i, cs := range m.CSteps {
		m.CSteps[i].Reactants = append([]TermConfig(nil), cs.Reactants...)
		m.CSteps[i].Products = append([]TermConfig(nil), cs.Products...)
	}
	if c.Waveform.Return != nil {
		out.Waveform.Return = ptr(*c.Waveform.Return)
	}
	out.Engine.Snapshots = append([]int(nil), c.Engine.Snapshots...)
	out.Metrics = append([]string(nil), c.Metrics...)
	return &out
}
