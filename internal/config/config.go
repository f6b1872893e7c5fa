package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
)

const (
	DefaultDt          = 1.0
	DefaultSteps       = 200
	DefaultThermoEvery = 10
	DefaultLattice     = 6
	DefaultSpacing     = 3.8
	DefaultJitter      = 0.15
	DefaultCharge      = 0.4
	DefaultTemperature = 300.0
	DefaultMaxNbors    = 256
	DefaultSkin        = 2.0
	DefaultGPUSplit    = 1.0
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	System SystemConfig        `yaml:"system"`
	Types  []forcefield.Type   `yaml:"types"`
	Pair   forcefield.Settings `yaml:"pair"`
	Device device.Properties   `yaml:"device"`
	Run    RunConfig           `yaml:"run"`
	Log    LogConfig           `yaml:"log"`
}

// SystemConfig describes a jittered cubic lattice of Lattice³ atoms. Atoms
// are bonded in chains of Chain consecutive atoms along x; Chain < 2 leaves
// them unbonded.
type SystemConfig struct {
	Lattice     int     `yaml:"lattice"`
	Spacing     float64 `yaml:"spacing"`
	Jitter      float64 `yaml:"jitter"`
	Charge      float64 `yaml:"charge"`
	Chain       int     `yaml:"chain"`
	Temperature float64 `yaml:"temperature"`
	Seed        int64   `yaml:"seed"`
}

type RunConfig struct {
	Steps       int     `yaml:"steps"`
	Dt          float64 `yaml:"dt"`
	ThermoEvery int     `yaml:"thermo_every"`
	MaxNbors    int     `yaml:"max_nbors"`
	Skin        float64 `yaml:"skin"`
	CellSize    float64 `yaml:"cell_size"`
	GPUSplit    float64 `yaml:"gpu_split"`
	Save        bool    `yaml:"save"`
	DataDir     string  `yaml:"data_dir"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// DefaultTypes is a small CHARMM-like type set: aliphatic carbon, hydroxyl
// oxygen and peptide nitrogen.
func DefaultTypes() []forcefield.Type {
	return []forcefield.Type{
		{Name: "CT2", Epsilon: 0.055, Sigma: 3.875, Mass: 12.011},
		{Name: "OH1", Epsilon: 0.1521, Sigma: 3.1506, Mass: 15.999},
		{Name: "NH1", Epsilon: 0.2, Sigma: 3.296, Mass: 14.007},
	}
}

func DefaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			Lattice:     DefaultLattice,
			Spacing:     DefaultSpacing,
			Jitter:      DefaultJitter,
			Charge:      DefaultCharge,
			Chain:       4,
			Temperature: DefaultTemperature,
			Seed:        1,
		},
		Types:  DefaultTypes(),
		Pair:   forcefield.DefaultSettings(),
		Device: device.DefaultProperties(),
		Run: RunConfig{
			Steps:       DefaultSteps,
			Dt:          DefaultDt,
			ThermoEvery: DefaultThermoEvery,
			MaxNbors:    DefaultMaxNbors,
			Skin:        DefaultSkin,
			GPUSplit:    DefaultGPUSplit,
			DataDir:     "./data",
		},
		Log: LogConfig{Level: "info", Encoding: "console"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields that cannot be caught later with a useful
// message. Pair settings are checked when coefficients are derived.
func (c *Config) Validate() error {
	var errs []error
	if c.System.Lattice < 2 {
		errs = append(errs, fmt.Errorf("system.lattice must be at least 2, got %d", c.System.Lattice))
	}
	if c.System.Spacing <= 0 {
		errs = append(errs, fmt.Errorf("system.spacing must be positive, got %g", c.System.Spacing))
	}
	if c.System.Jitter < 0 || c.System.Jitter >= c.System.Spacing/2 {
		errs = append(errs, fmt.Errorf("system.jitter must be in [0, spacing/2), got %g", c.System.Jitter))
	}
	if c.System.Temperature < 0 {
		errs = append(errs, fmt.Errorf("system.temperature must be non-negative, got %g", c.System.Temperature))
	}
	if len(c.Types) == 0 {
		errs = append(errs, errors.New("types must not be empty"))
	}
	for i, t := range c.Types {
		if t.Mass <= 0 {
			errs = append(errs, fmt.Errorf("types[%d] (%s) mass must be positive", i, t.Name))
		}
	}
	if c.Run.Steps < 0 {
		errs = append(errs, fmt.Errorf("run.steps must be non-negative, got %d", c.Run.Steps))
	}
	if c.Run.Dt <= 0 {
		errs = append(errs, fmt.Errorf("run.dt must be positive, got %g", c.Run.Dt))
	}
	if c.Run.MaxNbors <= 0 {
		errs = append(errs, fmt.Errorf("run.max_nbors must be positive, got %d", c.Run.MaxNbors))
	}
	if c.Run.Skin < 0 {
		errs = append(errs, fmt.Errorf("run.skin must be non-negative, got %g", c.Run.Skin))
	}
	if c.Run.GPUSplit <= 0 || c.Run.GPUSplit > 1 {
		errs = append(errs, fmt.Errorf("run.gpu_split must be in (0,1], got %g", c.Run.GPUSplit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Atoms is the number of atoms the system builds.
func (c *Config) Atoms() int {
	n := c.System.Lattice
	return n * n * n
}
