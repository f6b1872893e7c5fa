// Package md drives short molecular dynamics runs on top of the device pair
// evaluator: it builds systems, keeps the neighbor table current, integrates
// with velocity Verlet and reports thermodynamic output.
package md

import (
	"github.com/san-kum/crmlgpu/internal/atom"
)

// CHARMM real units: kcal/mol, Å, fs, amu, K, atm.
const (
	Boltz  = 0.0019872067
	Mvv2e  = 48.88821291 * 48.88821291
	Ftm2v  = 1 / Mvv2e
	Nktv2p = 68568.415
)

// ForceComputer evaluates pair forces, and energies and virial on request,
// for positions of every atom.
type ForceComputer interface {
	Compute(pos [][3]float64, eflag, vflag bool) (*atom.Answer, error)
}

// Thermo is the thermodynamic output of one step.
type Thermo struct {
	Step        int        `json:"step"`
	Time        float64    `json:"time"`
	EVdwl       float64    `json:"evdwl"`
	ECoul       float64    `json:"ecoul"`
	Potential   float64    `json:"potential"`
	Kinetic     float64    `json:"kinetic"`
	Total       float64    `json:"total"`
	Temperature float64    `json:"temperature"`
	Pressure    float64    `json:"pressure"`
	Virial      [6]float64 `json:"virial"`
	MaxForce    float64    `json:"max_force"`
}

type Metric interface {
	Name() string
	Observe(th Thermo)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(th Thermo)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(th Thermo)

func (f ObserverFunc) OnStep(th Thermo) { f(th) }

type Config struct {
	Steps       int
	Dt          float64
	ThermoEvery int
}

type Result struct {
	Thermo      []Thermo
	StepsTaken  int
	EnergyDrift float64
	Metrics     map[string]float64
}
