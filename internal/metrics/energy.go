package metrics

import (
	"math"

	"github.com/san-kum/crmlgpu/internal/md"
)

// Energy is the mean total energy over the observed steps.
type Energy struct {
	name        string
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy {
	return &Energy{name: "energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(th md.Thermo) {
	e.totalEnergy += th.Total
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyDrift is the largest deviation of the total energy from its first
// sample, per atom.
type EnergyDrift struct {
	name          string
	atoms         int
	initialEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift(atoms int) *EnergyDrift {
	if atoms < 1 {
		atoms = 1
	}
	return &EnergyDrift{
		name:  "energy_drift",
		atoms: atoms,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(th md.Thermo) {
	if e.samples == 0 {
		e.initialEnergy = th.Total
	}
	e.samples++

	drift := math.Abs(th.Total-e.initialEnergy) / float64(e.atoms)
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
