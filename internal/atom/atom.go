// Package atom holds the per-atom device data a pair evaluator reads and
// writes: packed positions and types, charges, forces and energy/virial terms.
package atom

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/san-kum/crmlgpu/internal/device"
)

// EngvFields is the number of per-atom accumulation rows in the engv buffer:
// evdwl, ecoul and the six virial components xx, yy, zz, xy, xz, yz.
const EngvFields = 8

var (
	ErrNotAllocated = errors.New("atom: store not allocated")
	ErrCapacity     = errors.New("atom: atom count exceeds store capacity")
	ErrNoCharge     = errors.New("atom: store was initialized without charges")
)

// Store is the atom container for compute precision N and accumulation
// precision A. Positions are packed as (x, y, z, type) in X.
type Store[N, A device.Float] struct {
	X    device.Buffer[device.Vec4[N]]
	Q    device.Buffer[N]
	Ans  device.Buffer[device.Vec4[A]]
	Engv device.Buffer[A]

	hostX []device.Vec4[N]
	hostQ []N

	charge    bool
	maxLocal  int
	maxAll    int
	inum      int
	nall      int
	allocated bool
}

// Init allocates room for nlocal owned atoms and nall owned plus ghost atoms.
func (s *Store[N, A]) Init(dev *device.Device, nlocal, nall int, charge bool) error {
	if s.allocated {
		return fmt.Errorf("atom: store already allocated")
	}
	if nlocal <= 0 || nall < nlocal {
		return fmt.Errorf("%w: nlocal=%d nall=%d", device.ErrInvalidSize, nlocal, nall)
	}

	s.charge = charge
	if err := s.alloc(dev, nlocal, nall); err != nil {
		s.release()
		return err
	}

	s.hostX = make([]device.Vec4[N], nall)
	if charge {
		s.hostQ = make([]N, nall)
	}
	s.maxLocal, s.maxAll = nlocal, nall
	s.allocated = true
	return nil
}

func (s *Store[N, A]) alloc(dev *device.Device, nlocal, nall int) error {
	if err := s.X.Alloc(nall, dev, device.ReadOnly); err != nil {
		return fmt.Errorf("alloc x: %w", err)
	}
	if s.charge {
		if err := s.Q.Alloc(nall, dev, device.ReadOnly); err != nil {
			return fmt.Errorf("alloc q: %w", err)
		}
	}
	if err := s.Ans.Alloc(nlocal, dev, device.WriteOnly); err != nil {
		return fmt.Errorf("alloc ans: %w", err)
	}
	if err := s.Engv.Alloc(nlocal*EngvFields, dev, device.WriteOnly); err != nil {
		return fmt.Errorf("alloc engv: %w", err)
	}
	return nil
}

func (s *Store[N, A]) release() {
	s.X.Clear()
	s.Q.Clear()
	s.Ans.Clear()
	s.Engv.Clear()
}

func (s *Store[N, A]) Clear() {
	if !s.allocated {
		return
	}
	s.allocated = false
	s.release()
	s.hostX, s.hostQ = nil, nil
	s.inum, s.nall = 0, 0
}

func (s *Store[N, A]) Allocated() bool { return s.allocated }
func (s *Store[N, A]) Charge() bool    { return s.charge }
func (s *Store[N, A]) Inum() int       { return s.inum }
func (s *Store[N, A]) Nall() int       { return s.nall }
func (s *Store[N, A]) MaxLocal() int   { return s.maxLocal }

// SetInum sets the number of atoms whose answers the next launch computes.
func (s *Store[N, A]) SetInum(n int) error {
	if n < 0 || n > s.maxLocal {
		return fmt.Errorf("%w: inum=%d capacity=%d", ErrCapacity, n, s.maxLocal)
	}
	s.inum = n
	return nil
}

// CastCopyX packs positions and types into compute precision and uploads them.
func (s *Store[N, A]) CastCopyX(pos [][3]float64, types []int) error {
	if !s.allocated {
		return ErrNotAllocated
	}
	if len(pos) != len(types) {
		return fmt.Errorf("atom: %d positions for %d types", len(pos), len(types))
	}
	if len(pos) > s.maxAll {
		return fmt.Errorf("%w: nall=%d capacity=%d", ErrCapacity, len(pos), s.maxAll)
	}
	for i, p := range pos {
		s.hostX[i] = device.Vec4[N]{X: N(p[0]), Y: N(p[1]), Z: N(p[2]), W: N(types[i])}
	}
	s.nall = len(pos)
	return s.X.CopyFrom(s.hostX[:s.nall])
}

func (s *Store[N, A]) CastCopyQ(q []float64) error {
	if !s.allocated {
		return ErrNotAllocated
	}
	if !s.charge {
		return ErrNoCharge
	}
	if len(q) > s.maxAll {
		return fmt.Errorf("%w: nall=%d capacity=%d", ErrCapacity, len(q), s.maxAll)
	}
	for i, v := range q {
		s.hostQ[i] = N(v)
	}
	return s.Q.CopyFrom(s.hostQ[:len(q)])
}

// BytesPerAtom is the device footprint added by one more atom.
func (s *Store[N, A]) BytesPerAtom() int {
	b := device.SizeOf[device.Vec4[N]]() + device.SizeOf[device.Vec4[A]]() + EngvFields*device.SizeOf[A]()
	if s.charge {
		b += device.SizeOf[N]()
	}
	return int(b)
}

func (s *Store[N, A]) HostMemoryUsage() float64 {
	b := int64(cap(s.hostX))*device.SizeOf[device.Vec4[N]]() + int64(cap(s.hostQ))*device.SizeOf[N]()
	return float64(b) + float64(unsafe.Sizeof(*s))
}
