package atom

import (
	"fmt"

	"github.com/san-kum/crmlgpu/internal/device"
)

// Answer holds host copies of the results of one launch. Energies and the
// virial are already halved for full neighbor lists.
type Answer struct {
	Forces [][3]float64
	EVdwl  float64
	ECoul  float64
	Virial [6]float64
}

// Energy is the total pair energy.
func (a *Answer) Energy() float64 {
	return a.EVdwl + a.ECoul
}

// GetAnswers reads back forces, and energies and virial when requested.
// Row ii of the answer buffers belongs to atom ilist[ii]; forces are
// scattered to atom ids over nall atoms.
func (s *Store[N, A]) GetAnswers(ilist []int32, eflag, vflag bool) (*Answer, error) {
	if !s.allocated {
		return nil, ErrNotAllocated
	}
	inum := s.inum
	if len(ilist) < inum {
		return nil, fmt.Errorf("atom: ilist has %d rows, inum is %d", len(ilist), inum)
	}

	ans := &Answer{Forces: make([][3]float64, s.nall)}
	if inum == 0 {
		return ans, nil
	}

	forces := make([]device.Vec4[A], inum)
	if err := s.Ans.CopyTo(forces); err != nil {
		return nil, err
	}
	for ii := 0; ii < inum; ii++ {
		i := int(ilist[ii])
		if i < 0 || i >= s.nall {
			return nil, fmt.Errorf("atom: ilist[%d]=%d outside [0,%d)", ii, i, s.nall)
		}
		ans.Forces[i] = [3]float64{float64(forces[ii].X), float64(forces[ii].Y), float64(forces[ii].Z)}
	}

	if !eflag && !vflag {
		return ans, nil
	}
	engv := make([]A, inum*EngvFields)
	if err := s.Engv.CopyTo(engv); err != nil {
		return nil, err
	}
	for ii := 0; ii < inum; ii++ {
		if eflag {
			ans.EVdwl += float64(engv[ii])
			ans.ECoul += float64(engv[ii+inum])
		}
		if vflag {
			for k := 0; k < 6; k++ {
				ans.Virial[k] += float64(engv[ii+(2+k)*inum])
			}
		}
	}
	ans.EVdwl *= 0.5
	ans.ECoul *= 0.5
	for k := range ans.Virial {
		ans.Virial[k] *= 0.5
	}
	return ans, nil
}

// GetEnergyRows reads back the per-row van der Waals and Coulomb energies of
// the last launch, zero when it skipped energies. Each row carries half of every
// pair it took part in, so rows of both partners sum to the pair energy.
func (s *Store[N, A]) GetEnergyRows() (evdwl, ecoul []float64, err error) {
	if !s.allocated {
		return nil, nil, ErrNotAllocated
	}
	inum := s.inum
	if inum == 0 {
		return nil, nil, nil
	}
	engv := make([]A, 2*inum)
	if err := s.Engv.CopyTo(engv); err != nil {
		return nil, nil, err
	}
	evdwl = make([]float64, inum)
	ecoul = make([]float64, inum)
	for ii := 0; ii < inum; ii++ {
		evdwl[ii] = 0.5 * float64(engv[ii])
		ecoul[ii] = 0.5 * float64(engv[ii+inum])
	}
	return evdwl, ecoul, nil
}
