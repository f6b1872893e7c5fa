package config

import (
	"sort"

	"github.com/san-kum/crmlgpu/internal/forcefield"
)

var Presets = map[string]map[string]*Config{
	"lattice": {
		"small":   lattice(4, 3.8, 0.4, 100),
		"medium":  lattice(8, 3.8, 0.4, 200),
		"large":   lattice(14, 3.8, 0.4, 50),
		"neutral": lattice(6, 3.8, 0, 200),
	},
	"chain": {
		"peptide": chain(6, 4, 1.0),
		"polymer": chain(8, 8, 0.5),
	},
	"types": {
		"geometric": geometric(),
		"many":      manyTypes(129),
	},
}

func lattice(n int, spacing, charge float64, steps int) *Config {
	cfg := DefaultConfig()
	cfg.System.Lattice = n
	cfg.System.Spacing = spacing
	cfg.System.Charge = charge
	cfg.System.Chain = 0
	cfg.Run.Steps = steps
	return cfg
}

func chain(n, length int, dt float64) *Config {
	cfg := DefaultConfig()
	cfg.System.Lattice = n
	cfg.System.Chain = length
	cfg.Run.Dt = dt
	return cfg
}

// geometric runs on the full-table kernel.
func geometric() *Config {
	cfg := DefaultConfig()
	cfg.Pair.Mixing = forcefield.MixGeometric
	return cfg
}

// manyTypes has more types than the shared-types kernel holds, so it runs
// on the full-table kernel with a small block.
func manyTypes(n int) *Config {
	cfg := DefaultConfig()
	cfg.Types = make([]forcefield.Type, n)
	for i := range cfg.Types {
		cfg.Types[i] = forcefield.Type{
			Epsilon: 0.05 + 0.001*float64(i),
			Sigma:   3.2 + 0.005*float64(i),
			Mass:    12.011,
		}
	}
	cfg.Device.BlockSize = 32
	return cfg
}

func GetPreset(group, preset string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	cfg, ok := groupPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListGroups() []string {
	groups := make([]string, 0, len(Presets))
	for g := range Presets {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
