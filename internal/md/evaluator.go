package md

import (
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/atom"
	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

type EvaluatorOptions struct {
	MaxNbors  int
	Skin      float64
	CellSize  float64
	GPUSplit  float64
	BlockSize int
	Screen    io.Writer
}

// Evaluator computes forces for one system with the device pair evaluator.
// The first ceil(GPUSplit·n) rows run on the device; the rest are evaluated
// on the host while the kernel is in flight.
type Evaluator[N, A device.Float] struct {
	dev    *device.Device
	mem    *crml.Memory[N, A]
	coeffs *forcefield.Coefficients
	log    *zap.Logger

	types    []int
	charge   []float64
	specials neighbor.Specials

	skin      float64
	cellSize  float64
	inum      int
	lastBuild [][3]float64
	builds    int
}

func NewEvaluator[N, A device.Float](dev *device.Device, coeffs *forcefield.Coefficients, sys *System, opts EvaluatorOptions, log *zap.Logger) (*Evaluator[N, A], error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := sys.validate(coeffs.Types); err != nil {
		return nil, err
	}
	if opts.GPUSplit == 0 {
		opts.GPUSplit = 1
	}
	n := sys.N()
	maxNbors := opts.MaxNbors
	if maxNbors <= 0 || maxNbors > n {
		maxNbors = n
	}

	mem := crml.New[N, A](log)
	p := coeffs.Params(forcefield.Sizes{
		Nlocal:     n,
		Nall:       n,
		MaxNbors:   maxNbors,
		MaxSpecial: sys.Specials.MaxSpecial(),
		CellSize:   opts.CellSize,
		GPUSplit:   opts.GPUSplit,
		BlockSize:  opts.BlockSize,
		Screen:     opts.Screen,
	})
	if err := mem.Init(dev, p); err != nil {
		return nil, err
	}
	if err := mem.Atom.CastCopyQ(sys.Charge); err != nil {
		mem.Clear()
		return nil, err
	}

	inum := int(math.Ceil(opts.GPUSplit * float64(n)))
	if inum > n {
		inum = n
	}
	e := &Evaluator[N, A]{
		dev:      dev,
		mem:      mem,
		coeffs:   coeffs,
		log:      log.Named("evaluator"),
		types:    append([]int(nil), sys.Types...),
		charge:   append([]float64(nil), sys.Charge...),
		specials: sys.Specials,
		skin:     opts.Skin,
		cellSize: opts.CellSize,
		inum:     inum,
	}
	e.log.Debug("evaluator ready",
		zap.Int("atoms", n),
		zap.Int("device_rows", inum),
		zap.Int("max_nbors", maxNbors),
		zap.Stringer("path", mem.Path()))
	return e, nil
}

// Compute rebuilds the neighbor table when an atom moved more than half the
// skin since the last build, then evaluates forces.
func (e *Evaluator[N, A]) Compute(pos [][3]float64, eflag, vflag bool) (*atom.Answer, error) {
	if len(pos) != len(e.types) {
		return nil, fmt.Errorf("%w: %d positions for %d atoms", ErrBadSystem, len(pos), len(e.types))
	}
	if e.needsRebuild(pos) {
		if err := e.mem.Nbor.Build(pos, len(pos), e.coeffs.Cutoff()+e.skin, e.cellSize, e.specials); err != nil {
			return nil, err
		}
		e.lastBuild = append(e.lastBuild[:0], pos...)
		e.builds++
	}
	if err := e.mem.Atom.CastCopyX(pos, e.types); err != nil {
		return nil, err
	}
	if err := e.mem.Atom.SetInum(e.inum); err != nil {
		return nil, err
	}
	if err := e.mem.Loop(eflag, vflag); err != nil {
		return nil, err
	}

	host := e.hostRows(pos, eflag, vflag)

	if err := e.dev.Synchronize(); err != nil {
		return nil, err
	}
	ans, err := e.mem.Atom.GetAnswers(e.mem.Nbor.Ilist(), eflag, vflag)
	if err != nil {
		return nil, err
	}
	for i, f := range host.Forces {
		if i >= e.inum {
			ans.Forces[i] = f
		}
	}
	ans.EVdwl += host.EVdwl
	ans.ECoul += host.ECoul
	for k := range ans.Virial {
		ans.Virial[k] += host.Virial[k]
	}
	return ans, nil
}

func (e *Evaluator[N, A]) needsRebuild(pos [][3]float64) bool {
	if e.builds == 0 || e.skin == 0 || len(e.lastBuild) != len(pos) {
		return true
	}
	limit := 0.25 * e.skin * e.skin
	for i, p := range pos {
		dx := p[0] - e.lastBuild[i][0]
		dy := p[1] - e.lastBuild[i][1]
		dz := p[2] - e.lastBuild[i][2]
		if dx*dx+dy*dy+dz*dz > limit {
			return true
		}
	}
	return false
}

// hostRows evaluates the rows past the device split from the host copy of
// the neighbor table.
func (e *Evaluator[N, A]) hostRows(pos [][3]float64, eflag, vflag bool) *atom.Answer {
	ans := &atom.Answer{Forces: make([][3]float64, len(pos))}
	for ii := e.inum; ii < e.mem.Nbor.Inum(); ii++ {
		i, js := e.mem.Nbor.Row(ii)
		for _, jraw := range js {
			j := int(jraw & neighbor.NeighMask)
			dx := pos[i][0] - pos[j][0]
			dy := pos[i][1] - pos[j][1]
			dz := pos[i][2] - pos[j][2]
			rsq := dx*dx + dy*dy + dz*dz
			if rsq >= e.coeffs.CutBothSq {
				continue
			}
			pt := e.coeffs.Pair(rsq, e.types[i], e.types[j], e.charge[i], e.charge[j], neighbor.SBMask(jraw))
			fpair := (pt.ForceLJ + pt.ForceCoul) / rsq
			ans.Forces[i][0] += dx * fpair
			ans.Forces[i][1] += dy * fpair
			ans.Forces[i][2] += dz * fpair
			if eflag {
				ans.EVdwl += 0.5 * pt.ELJ
				ans.ECoul += 0.5 * pt.ECoul
			}
			if vflag {
				ans.Virial[0] += 0.5 * dx * dx * fpair
				ans.Virial[1] += 0.5 * dy * dy * fpair
				ans.Virial[2] += 0.5 * dz * dz * fpair
				ans.Virial[3] += 0.5 * dx * dy * fpair
				ans.Virial[4] += 0.5 * dx * dz * fpair
				ans.Virial[5] += 0.5 * dy * dz * fpair
			}
		}
	}
	return ans
}

func (e *Evaluator[N, A]) Memory() *crml.Memory[N, A] { return e.mem }
func (e *Evaluator[N, A]) Builds() int                { return e.builds }
func (e *Evaluator[N, A]) DeviceRows() int            { return e.inum }

func (e *Evaluator[N, A]) Close() {
	e.mem.Clear()
}
