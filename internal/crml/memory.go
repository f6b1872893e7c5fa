package crml

import (
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/pair"
)

// PairName is the style name reported in the device banner and logs.
const PairName = "lj/charmm/coul/long"

const (
	// MaxBioSharedTypes is the capacity of the per-type table staged in
	// block memory by kernel_pair_fast.
	MaxBioSharedTypes = 128
	// SharedTypesMinBlock is the smallest block size that can stage the
	// per-type table cooperatively.
	SharedTypesMinBlock = 64
)

var (
	ErrAlreadyInitialized  = errors.New("crml: already initialized")
	ErrNotInitialized      = errors.New("crml: not initialized")
	ErrBadParams           = errors.New("crml: invalid parameters")
	ErrSharedTypesCapacity = errors.New("crml: too many atom types for the shared-types kernel")
	ErrStaleNeighbors      = errors.New("crml: neighbor table does not cover inum")
)

// Memory owns the device-resident CHARMM coefficient tables and dispatches
// the pair kernel over the base layer's atoms and neighbors.
type Memory[N, A device.Float] struct {
	pair.Base[N, A]

	lj1  device.Buffer[device.Vec4[N]]
	ljd  device.Buffer[device.Vec2[N]]
	spLJ device.Buffer[N]

	kPairFast *device.Kernel[fastArgs[N, A]]
	kPair     *device.Kernel[pairArgs[N, A]]

	path    Path
	ljTypes int

	cutBothSq    N
	cutCoulSq    N
	cutLJSq      N
	cutLJInnerSq N
	qqrd2e       N
	gEwald       N
	denomLJ      N

	maxBytes  int64
	allocated bool
	log       *zap.Logger
}

// New returns an unallocated Memory. A nil logger discards output.
func New[N, A device.Float](log *zap.Logger) *Memory[N, A] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory[N, A]{log: log.Named("crml")}
}

// Init builds the base layer, chooses the kernel path and uploads the
// coefficient tables. Any failure leaves the Memory unallocated.
func (m *Memory[N, A]) Init(dev *device.Device, p Params) error {
	if m.allocated {
		return ErrAlreadyInitialized
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if err := p.validate(); err != nil {
		return err
	}

	settings := pair.Settings{
		Name:       PairName,
		Nlocal:     p.Nlocal,
		Nall:       p.Nall,
		MaxNbors:   p.MaxNbors,
		MaxSpecial: p.MaxSpecial,
		CellSize:   p.CellSize,
		GPUSplit:   p.GPUSplit,
		BlockSize:  p.BlockSize,
		Charge:     true,
		Screen:     p.Screen,
	}
	if err := m.InitAtomic(dev, settings, m.log); err != nil {
		return err
	}

	path := SelectPath(m.BlockSize(), p.MixArithmetic)
	if path == PathFast && p.Types > MaxBioSharedTypes {
		m.ClearAtomic()
		return fmt.Errorf("%w: %d types, capacity %d", ErrSharedTypesCapacity, p.Types, MaxBioSharedTypes)
	}

	if err := m.pack(dev, &p); err != nil {
		m.ClearAtomic()
		return err
	}

	m.path = path
	m.ljTypes = p.Types
	m.cutBothSq = N(p.CutBothSq)
	m.cutCoulSq = N(p.CutCoulSq)
	m.cutLJSq = N(p.CutLJSq)
	m.cutLJInnerSq = N(p.CutLJInnerSq)
	m.qqrd2e = N(p.QQrd2e)
	m.gEwald = N(p.GEwald)
	m.denomLJ = N(p.DenomLJ)

	m.kPairFast = device.NewKernel(dev, kernelPairFastName, kernelPairFast[N, A])
	m.kPair = device.NewKernel(dev, kernelPairName, kernelPair[N, A])

	m.allocated = true
	m.maxBytes = m.lj1.RowBytes() + m.ljd.RowBytes() + m.spLJ.RowBytes()

	m.log.Info("coefficients cached",
		zap.Int("types", p.Types),
		zap.Stringer("path", path),
		zap.Int("block_size", m.BlockSize()),
		zap.Bool("mix_arithmetic", p.MixArithmetic),
		zap.Int64("max_bytes", m.maxBytes))
	return nil
}

// Clear releases the coefficient tables and the base layer. Queued launches
// finish before their buffers are released. Clear is idempotent.
func (m *Memory[N, A]) Clear() {
	if !m.allocated {
		return
	}
	m.allocated = false
	m.clearTables()
	m.kPairFast = nil
	m.kPair = nil
	m.maxBytes = 0
	m.ClearAtomic()
	m.log.Debug("coefficients released")
}

// Loop queues one launch of the cached kernel over the current inum atoms.
// A step with no local atoms launches nothing.
func (m *Memory[N, A]) Loop(eflag, vflag bool) error {
	if !m.allocated {
		return ErrNotInitialized
	}
	inum := m.Atom.Inum()
	if inum == 0 {
		return nil
	}
	if m.Nbor.Inum() < inum {
		return fmt.Errorf("%w: %d rows for inum=%d", ErrStaleNeighbors, m.Nbor.Inum(), inum)
	}

	bx := m.BlockSize()
	gx := (inum + bx - 1) / bx
	ef, vf := flag(eflag), flag(vflag)

	if err := m.TimePair.Start(); err != nil {
		return err
	}
	var err error
	switch m.path {
	case PathFast:
		m.kPairFast.SetSize(gx, bx)
		err = m.kPairFast.Run(fastArgs[N, A]{
			x:            m.Atom.X.Data(),
			ljd:          m.ljd.Data(),
			spLJ:         m.spLJ.Data(),
			nbor:         m.Nbor.DevNbor.Data(),
			ans:          m.Atom.Ans.Data(),
			engv:         m.Atom.Engv.Data(),
			eflag:        ef,
			vflag:        vf,
			inum:         inum,
			nall:         m.Atom.Nall(),
			nborPitch:    m.Nbor.Pitch(),
			q:            m.Atom.Q.Data(),
			cutCoulSq:    m.cutCoulSq,
			qqrd2e:       m.qqrd2e,
			gEwald:       m.gEwald,
			denomLJ:      m.denomLJ,
			cutBothSq:    m.cutBothSq,
			cutLJSq:      m.cutLJSq,
			cutLJInnerSq: m.cutLJInnerSq,
		})
	default:
		m.kPair.SetSize(gx, bx)
		err = m.kPair.Run(pairArgs[N, A]{
			x:            m.Atom.X.Data(),
			lj1:          m.lj1.Data(),
			ljTypes:      m.ljTypes,
			spLJ:         m.spLJ.Data(),
			nbor:         m.Nbor.DevNbor.Data(),
			ans:          m.Atom.Ans.Data(),
			engv:         m.Atom.Engv.Data(),
			eflag:        ef,
			vflag:        vf,
			inum:         inum,
			nall:         m.Atom.Nall(),
			nborPitch:    m.Nbor.Pitch(),
			q:            m.Atom.Q.Data(),
			cutCoulSq:    m.cutCoulSq,
			qqrd2e:       m.qqrd2e,
			gEwald:       m.gEwald,
			denomLJ:      m.denomLJ,
			cutBothSq:    m.cutBothSq,
			cutLJSq:      m.cutLJSq,
			cutLJInnerSq: m.cutLJInnerSq,
		})
	}
	if err != nil {
		return err
	}
	return m.TimePair.Stop()
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (m *Memory[N, A]) Allocated() bool { return m.allocated }
func (m *Memory[N, A]) Path() Path      { return m.path }
func (m *Memory[N, A]) Types() int      { return m.ljTypes }

// SharedTypes reports whether the shared-types kernel is in use.
func (m *Memory[N, A]) SharedTypes() bool { return m.allocated && m.path == PathFast }

// MaxBytes is the device memory held by the coefficient tables.
func (m *Memory[N, A]) MaxBytes() int64 { return m.maxBytes }

func (m *Memory[N, A]) BytesPerAtom(maxNbors int) int {
	return m.BytesPerAtomAtomic(maxNbors)
}

func (m *Memory[N, A]) HostMemoryUsage() float64 {
	return m.HostMemoryUsageAtomic() + float64(unsafe.Sizeof(*m))
}
