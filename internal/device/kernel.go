package device

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Block identifies one block of a 1-D launch.
type Block struct {
	Idx     int
	Dim     int
	GridDim int
}

// Thread returns the global index of thread t of the block.
func (b Block) Thread(t int) int {
	return b.Idx*b.Dim + t
}

// KernelFunc runs every thread of one block. Blocks of a launch run
// concurrently; threads of a block run in order inside the call.
type KernelFunc[P any] func(b Block, p *P)

// Kernel is a compiled entry point taking a fixed argument struct P.
type Kernel[P any] struct {
	dev   *Device
	name  string
	fn    KernelFunc[P]
	grid  int
	block int
}

func NewKernel[P any](dev *Device, name string, fn KernelFunc[P]) *Kernel[P] {
	return &Kernel[P]{dev: dev, name: name, fn: fn, block: dev.BlockSize()}
}

func (k *Kernel[P]) Name() string { return k.name }

func (k *Kernel[P]) SetSize(grid, block int) {
	k.grid = grid
	k.block = block
}

// Run validates the launch configuration and queues the kernel with a copy
// of params. Execution failures are reported by Device.Synchronize.
func (k *Kernel[P]) Run(params P) error {
	grid, block := k.grid, k.block
	if err := k.dev.validateLaunch(grid, block); err != nil {
		k.dev.metrics.errors.WithLabelValues(k.name).Inc()
		return &LaunchError{Kernel: k.name, Grid: grid, Block: block, Err: err}
	}

	p := params
	err := k.dev.stream.enqueue(func() error {
		if err := k.execute(grid, block, &p); err != nil {
			k.dev.metrics.errors.WithLabelValues(k.name).Inc()
			return &LaunchError{Kernel: k.name, Grid: grid, Block: block, Err: err}
		}
		return nil
	})
	if err != nil {
		return &LaunchError{Kernel: k.name, Grid: grid, Block: block, Err: err}
	}
	k.dev.metrics.launches.WithLabelValues(k.name).Inc()
	return nil
}

func (k *Kernel[P]) execute(grid, block int, p *P) error {
	workers := k.dev.props.Workers
	if workers > grid {
		workers = grid
	}
	chunkSize := (grid + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > grid {
			end = grid
		}
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = executionError(rec)
				}
			}()
			for bx := start; bx < end; bx++ {
				k.fn(Block{Idx: bx, Dim: block, GridDim: grid}, p)
			}
			return nil
		})
	}
	return g.Wait()
}

func executionError(rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("execution failed: %w", recErr)
	}
	return fmt.Errorf("execution failed: %v", rec)
}
