package crml_test

import (
	"math"
	"math/rand"

	"github.com/san-kum/crmlgpu/internal/atom"
	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

type system struct {
	pos      [][3]float64
	types    []int
	q        []float64
	nlocal   int
	specials neighbor.Specials
}

func testTypes() []forcefield.Type {
	return []forcefield.Type{
		{Name: "CT", Epsilon: 0.08, Sigma: 3.5, Mass: 12.011},
		{Name: "OH", Epsilon: 0.15, Sigma: 3.1, Mass: 15.999},
		{Name: "HA", Epsilon: 0.02, Sigma: 2.4, Mass: 1.008},
	}
}

func testSettings() forcefield.Settings {
	s := forcefield.DefaultSettings()
	s.CutLJInner = 4
	s.CutLJ = 6
	s.CutCoul = 7
	s.SpecialLJ = [4]float64{1, 0, 0.5, 1}
	s.SpecialCoul = [4]float64{1, 0, 0.5, 1}
	return s
}

func mustDerive(types []forcefield.Type, s forcefield.Settings) *forcefield.Coefficients {
	c, err := forcefield.Derive(types, s)
	if err != nil {
		panic(err)
	}
	return c
}

func newDevice(totalMem int64, blockSize int) *device.Device {
	props := device.DefaultProperties()
	props.Workers = 4
	if totalMem > 0 {
		props.TotalMem = totalMem
	}
	if blockSize > 0 {
		props.BlockSize = blockSize
	}
	dev, err := device.New(props)
	if err != nil {
		panic(err)
	}
	return dev
}

// lattice places n³ atoms on a jittered cubic lattice. The last quarter are
// ghosts, consecutive atoms along x are bonded, and charges alternate.
func lattice(n int, spacing float64, ntypes int, seed int64) *system {
	rng := rand.New(rand.NewSource(seed))
	sys := &system{}
	var bonds [][2]int
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				id := len(sys.pos)
				sys.pos = append(sys.pos, [3]float64{
					float64(x)*spacing + 0.4*(rng.Float64()-0.5),
					float64(y)*spacing + 0.4*(rng.Float64()-0.5),
					float64(z)*spacing + 0.4*(rng.Float64()-0.5),
				})
				sys.types = append(sys.types, id%ntypes)
				q := 0.4
				if id%2 == 1 {
					q = -0.4
				}
				sys.q = append(sys.q, q)
				if x > 0 {
					bonds = append(bonds, [2]int{id - 1, id})
				}
			}
		}
	}
	sys.nlocal = len(sys.pos) * 3 / 4
	sys.specials = neighbor.FromBonds(len(sys.pos), bonds)
	return sys
}

func sizes(sys *system, blockSize int) forcefield.Sizes {
	return forcefield.Sizes{
		Nlocal:     sys.nlocal,
		Nall:       len(sys.pos),
		MaxNbors:   len(sys.pos),
		MaxSpecial: sys.specials.MaxSpecial(),
		GPUSplit:   1,
		BlockSize:  blockSize,
	}
}

// compute uploads sys, builds its neighbor table with a margin past the
// cutoff so the kernel applies the cutoffs itself, and reads back answers.
func compute[N, A device.Float](dev *device.Device, m *crml.Memory[N, A], c *forcefield.Coefficients, sys *system, eflag, vflag bool) (*atom.Answer, error) {
	if err := m.Atom.CastCopyX(sys.pos, sys.types); err != nil {
		return nil, err
	}
	if err := m.Atom.CastCopyQ(sys.q); err != nil {
		return nil, err
	}
	if err := m.Nbor.Build(sys.pos, sys.nlocal, c.Cutoff()+1, m.CellSize(), sys.specials); err != nil {
		return nil, err
	}
	if err := m.Atom.SetInum(sys.nlocal); err != nil {
		return nil, err
	}
	if err := m.Loop(eflag, vflag); err != nil {
		return nil, err
	}
	if err := dev.Synchronize(); err != nil {
		return nil, err
	}
	return m.Atom.GetAnswers(m.Nbor.Ilist(), eflag, vflag)
}

func maxForce(forces [][3]float64) float64 {
	m := 0.0
	for _, f := range forces {
		for _, v := range f {
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}

func maxForceDiff(a, b [][3]float64) float64 {
	m := 0.0
	for i := range a {
		for k := 0; k < 3; k++ {
			m = math.Max(m, math.Abs(a[i][k]-b[i][k]))
		}
	}
	return m
}

func pairSystem(r float64, qi, qj float64) *system {
	return &system{
		pos:      [][3]float64{{0, 0, 0}, {r, 0, 0}},
		types:    []int{0, 0},
		q:        []float64{qi, qj},
		nlocal:   2,
		specials: make(neighbor.Specials, 2),
	}
}
