package md

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/crmlgpu/internal/config"
	"github.com/san-kum/crmlgpu/internal/forcefield"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

var ErrBadSystem = errors.New("md: invalid system")

// System is the full per-atom state of a run.
type System struct {
	Pos    [][3]float64
	Vel    [][3]float64
	Mass   []float64
	Charge []float64
	Types  []int
	Bonds  [][2]int

	Specials neighbor.Specials
	// Box is the extent used for the pressure volume.
	Box [3]float64
}

func (s *System) N() int { return len(s.Pos) }

func (s *System) validate(ntypes int) error {
	n := s.N()
	if n == 0 {
		return fmt.Errorf("%w: no atoms", ErrBadSystem)
	}
	if len(s.Vel) != n || len(s.Mass) != n || len(s.Charge) != n || len(s.Types) != n {
		return fmt.Errorf("%w: per-atom slices disagree on %d atoms", ErrBadSystem, n)
	}
	for i, t := range s.Types {
		if t < 0 || t >= ntypes {
			return fmt.Errorf("%w: atom %d has type %d of %d", ErrBadSystem, i, t, ntypes)
		}
		if s.Mass[i] <= 0 {
			return fmt.Errorf("%w: atom %d has mass %g", ErrBadSystem, i, s.Mass[i])
		}
	}
	return nil
}

func (s *System) Clone() *System {
	c := &System{
		Pos:    append([][3]float64(nil), s.Pos...),
		Vel:    append([][3]float64(nil), s.Vel...),
		Mass:   append([]float64(nil), s.Mass...),
		Charge: append([]float64(nil), s.Charge...),
		Types:  append([]int(nil), s.Types...),
		Bonds:  append([][2]int(nil), s.Bonds...),
		Box:    s.Box,
	}
	c.Specials = neighbor.FromBonds(c.N(), c.Bonds)
	return c
}

// Kinetic is the kinetic energy in kcal/mol.
func (s *System) Kinetic() float64 {
	ke := 0.0
	for i, v := range s.Vel {
		ke += s.Mass[i] * (v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	return 0.5 * ke * Mvv2e
}

func (s *System) dof() float64 {
	return float64(3*s.N() - 3)
}

func (s *System) Temperature() float64 {
	dof := s.dof()
	if dof <= 0 {
		return 0
	}
	return 2 * s.Kinetic() / (dof * Boltz)
}

func (s *System) Volume() float64 {
	return s.Box[0] * s.Box[1] * s.Box[2]
}

// Pressure combines the kinetic and virial contributions, in atm.
func (s *System) Pressure(virial [6]float64) float64 {
	v := s.Volume()
	if v <= 0 {
		return 0
	}
	return (2*s.Kinetic() + virial[0] + virial[1] + virial[2]) / (3 * v) * Nktv2p
}

// ZeroMomentum removes the center of mass velocity.
func (s *System) ZeroMomentum() {
	var p [3]float64
	total := 0.0
	for i, v := range s.Vel {
		for k := 0; k < 3; k++ {
			p[k] += s.Mass[i] * v[k]
		}
		total += s.Mass[i]
	}
	if total == 0 {
		return
	}
	for i := range s.Vel {
		for k := 0; k < 3; k++ {
			s.Vel[i][k] -= p[k] / total
		}
	}
}

// Thermalize draws Maxwell-Boltzmann velocities at temperature and rescales
// them to hit it exactly after removing the net momentum.
func (s *System) Thermalize(temperature float64, rng *rand.Rand) {
	for i := range s.Vel {
		sd := math.Sqrt(Boltz * temperature / (s.Mass[i] * Mvv2e))
		s.Vel[i] = [3]float64{rng.NormFloat64() * sd, rng.NormFloat64() * sd, rng.NormFloat64() * sd}
	}
	s.ZeroMomentum()
	cur := s.Temperature()
	if cur <= 0 {
		return
	}
	scale := math.Sqrt(temperature / cur)
	for i := range s.Vel {
		for k := 0; k < 3; k++ {
			s.Vel[i][k] *= scale
		}
	}
}

// BuildLattice places Lattice³ atoms on a jittered cubic lattice. Types
// cycle through the type list, charges alternate in sign and the last atom
// of an odd count is neutral.
func BuildLattice(sc config.SystemConfig, types []forcefield.Type) (*System, error) {
	n := sc.Lattice
	if n < 1 || sc.Spacing <= 0 {
		return nil, fmt.Errorf("%w: lattice=%d spacing=%g", ErrBadSystem, n, sc.Spacing)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no atom types", ErrBadSystem)
	}

	rng := rand.New(rand.NewSource(sc.Seed))
	total := n * n * n
	s := &System{
		Pos:    make([][3]float64, 0, total),
		Vel:    make([][3]float64, total),
		Mass:   make([]float64, 0, total),
		Charge: make([]float64, 0, total),
		Types:  make([]int, 0, total),
		Box:    [3]float64{float64(n) * sc.Spacing, float64(n) * sc.Spacing, float64(n) * sc.Spacing},
	}

	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				id := len(s.Pos)
				s.Pos = append(s.Pos, [3]float64{
					float64(x)*sc.Spacing + sc.Jitter*(2*rng.Float64()-1),
					float64(y)*sc.Spacing + sc.Jitter*(2*rng.Float64()-1),
					float64(z)*sc.Spacing + sc.Jitter*(2*rng.Float64()-1),
				})
				t := id % len(types)
				s.Types = append(s.Types, t)
				s.Mass = append(s.Mass, types[t].Mass)

				q := sc.Charge
				if id%2 == 1 {
					q = -q
				}
				if total%2 == 1 && id == total-1 {
					q = 0
				}
				s.Charge = append(s.Charge, q)

				if sc.Chain >= 2 && x%sc.Chain != 0 {
					s.Bonds = append(s.Bonds, [2]int{id - 1, id})
				}
			}
		}
	}

	s.Specials = neighbor.FromBonds(total, s.Bonds)
	if err := s.validate(len(types)); err != nil {
		return nil, err
	}
	if sc.Temperature > 0 {
		s.Thermalize(sc.Temperature, rng)
	}
	return s, nil
}
