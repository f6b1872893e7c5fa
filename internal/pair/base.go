// Package pair is the base layer shared by charged pair evaluators: it owns
// the atom container, the neighbor table and the pair timer, and reports the
// per-atom and host memory footprint of both.
package pair

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/atom"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

var ErrBadSettings = errors.New("pair: invalid base settings")

// Settings are the sizes and hints of the base layer.
type Settings struct {
	Name       string
	Nlocal     int
	Nall       int
	MaxNbors   int
	MaxSpecial int
	CellSize   float64
	GPUSplit   float64
	BlockSize  int
	Charge     bool
	Screen     io.Writer
}

func (s Settings) validate() error {
	switch {
	case s.Nlocal <= 0:
		return fmt.Errorf("%w: nlocal=%d", ErrBadSettings, s.Nlocal)
	case s.Nall < s.Nlocal:
		return fmt.Errorf("%w: nall=%d < nlocal=%d", ErrBadSettings, s.Nall, s.Nlocal)
	case s.MaxNbors <= 0:
		return fmt.Errorf("%w: max_nbors=%d", ErrBadSettings, s.MaxNbors)
	case s.MaxSpecial < 0:
		return fmt.Errorf("%w: max_special=%d", ErrBadSettings, s.MaxSpecial)
	case s.GPUSplit <= 0 || s.GPUSplit > 1:
		return fmt.Errorf("%w: gpu_split=%g outside (0,1]", ErrBadSettings, s.GPUSplit)
	case s.CellSize < 0:
		return fmt.Errorf("%w: cell_size=%g", ErrBadSettings, s.CellSize)
	case s.BlockSize < 0:
		return fmt.Errorf("%w: block_size=%d", ErrBadSettings, s.BlockSize)
	}
	return nil
}

// Base carries the device state shared by every pair evaluator.
type Base[N, A device.Float] struct {
	Device   *device.Device
	Atom     atom.Store[N, A]
	Nbor     neighbor.List
	TimePair device.Timer

	log         *zap.Logger
	name        string
	blockSize   int
	maxSpecial  int
	cellSize    float64
	gpuSplit    float64
	initialized bool
}

// InitAtomic allocates the atom container and neighbor table on dev and
// writes the device banner to s.Screen when it is set.
func (b *Base[N, A]) InitAtomic(dev *device.Device, s Settings, log *zap.Logger) error {
	if b.initialized {
		return fmt.Errorf("pair: base already initialized")
	}
	if dev == nil {
		return fmt.Errorf("%w: nil device", ErrBadSettings)
	}
	if err := s.validate(); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}

	if err := b.Atom.Init(dev, s.Nlocal, s.Nall, s.Charge); err != nil {
		return fmt.Errorf("init atoms: %w", err)
	}
	if err := b.Nbor.Init(dev, s.Nlocal, s.MaxNbors); err != nil {
		b.Atom.Clear()
		return fmt.Errorf("init neighbors: %w", err)
	}
	b.TimePair.Init(dev)

	b.Device = dev
	b.log = log
	b.name = s.Name
	b.blockSize = s.BlockSize
	if b.blockSize == 0 {
		b.blockSize = dev.BlockSize()
	}
	b.maxSpecial = s.MaxSpecial
	b.cellSize = s.CellSize
	b.gpuSplit = s.GPUSplit
	b.initialized = true

	if s.Screen != nil {
		writeBanner(s.Screen, s.Name, dev, b.blockSize)
	}
	log.Info("pair base initialized",
		zap.String("pair", s.Name),
		zap.String("device", dev.Name()),
		zap.Int("nlocal", s.Nlocal),
		zap.Int("nall", s.Nall),
		zap.Int("max_nbors", s.MaxNbors),
		zap.Int("block_size", b.blockSize),
		zap.Float64("gpu_split", s.GPUSplit))
	return nil
}

// ClearAtomic releases the atom container and neighbor table. It is a no-op
// when the base is not initialized.
func (b *Base[N, A]) ClearAtomic() {
	if !b.initialized {
		return
	}
	b.initialized = false
	b.log.Debug("pair base cleared",
		zap.String("pair", b.name),
		zap.Duration("time_pair", b.TimePair.Time()),
		zap.Int("launches", b.TimePair.Count()))
	b.Nbor.Clear()
	b.Atom.Clear()
	b.TimePair.Clear()
}

func (b *Base[N, A]) Initialized() bool   { return b.initialized }
func (b *Base[N, A]) BlockSize() int      { return b.blockSize }
func (b *Base[N, A]) GPUSplit() float64   { return b.gpuSplit }
func (b *Base[N, A]) CellSize() float64   { return b.cellSize }
func (b *Base[N, A]) MaxSpecial() int     { return b.maxSpecial }
func (b *Base[N, A]) Logger() *zap.Logger { return b.log }

// BytesPerAtomAtomic is the device memory one more atom with maxNbors
// neighbors costs the base layer.
func (b *Base[N, A]) BytesPerAtomAtomic(maxNbors int) int {
	return b.Atom.BytesPerAtom() + b.Nbor.BytesPerAtom(maxNbors)
}

func (b *Base[N, A]) HostMemoryUsageAtomic() float64 {
	return b.Atom.HostMemoryUsage() + b.Nbor.HostMemoryUsage() + float64(unsafe.Sizeof(b.TimePair))
}

func writeBanner(w io.Writer, name string, dev *device.Device, blockSize int) {
	props := dev.Properties()
	rule := "--------------------------------------------------------------------------"
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "- Using accelerated pair style: %s\n", name)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Device 0: %s, block size %d, %d workers, %d MB\n\n",
		props.Name, blockSize, props.Workers, props.TotalMem>>20)
}
