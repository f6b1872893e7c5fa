package device

import (
	"errors"
	"fmt"
)

// Domain errors for device operations.
var (
	// ErrOutOfMemory indicates an allocation larger than the free device memory.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrInvalidSize indicates a non-positive allocation or copy size.
	ErrInvalidSize = errors.New("device: invalid allocation size")

	// ErrNotAllocated indicates use of a buffer that is not allocated.
	ErrNotAllocated = errors.New("device: buffer not allocated")

	// ErrInvalidLaunch indicates a grid or block size the device cannot run.
	ErrInvalidLaunch = errors.New("device: invalid launch configuration")

	// ErrClosed indicates use of a device after Close.
	ErrClosed = errors.New("device: closed")
)

// LaunchError wraps a kernel failure with its launch configuration.
type LaunchError struct {
	Kernel string
	Grid   int
	Block  int
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("device: kernel %s (grid=%d block=%d): %v", e.Kernel, e.Grid, e.Block, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
