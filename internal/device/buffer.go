package device

import (
	"errors"
	"fmt"
	"unsafe"
)

// AccessMode is the kernel-side access hint of an allocation.
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
	WriteOnly
	WriteOptimized
)

var errAllocated = errors.New("device: buffer already allocated")

// SizeOf is the in-memory size of one T.
func SizeOf[T any]() int64 {
	var zero T
	return int64(unsafe.Sizeof(zero))
}

// Buffer is a typed region of device memory. A buffer is allocated once and
// cleared once; Clear on an unallocated buffer is a no-op.
type Buffer[T any] struct {
	dev  *Device
	data []T
	mode AccessMode
}

func (b *Buffer[T]) Alloc(n int, dev *Device, mode AccessMode) error {
	if b.data != nil {
		return errAllocated
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d elements", ErrInvalidSize, n)
	}
	if err := dev.reserve(int64(n) * SizeOf[T]()); err != nil {
		return err
	}
	b.dev = dev
	b.data = make([]T, n)
	b.mode = mode
	return nil
}

func (b *Buffer[T]) Clear() {
	if b.data == nil {
		return
	}
	b.dev.stream.drain()
	b.dev.release(b.RowBytes())
	b.data = nil
	b.dev = nil
}

func (b *Buffer[T]) Allocated() bool  { return b.data != nil }
func (b *Buffer[T]) Len() int         { return len(b.data) }
func (b *Buffer[T]) Mode() AccessMode { return b.mode }

// RowBytes is the device footprint of the buffer.
func (b *Buffer[T]) RowBytes() int64 {
	return int64(len(b.data)) * SizeOf[T]()
}

// Data is the device-side view. Only kernels and tests should touch it.
func (b *Buffer[T]) Data() []T { return b.data }

// CopyFrom is a blocking host to device copy of len(src) elements. It waits
// for work already queued on the stream.
func (b *Buffer[T]) CopyFrom(src []T) error {
	if b.data == nil {
		return ErrNotAllocated
	}
	if len(src) > len(b.data) {
		return fmt.Errorf("%w: copy of %d elements into %d", ErrInvalidSize, len(src), len(b.data))
	}
	b.dev.stream.drain()
	copy(b.data, src)
	return nil
}

// CopyTo is a blocking device to host copy of len(dst) elements.
func (b *Buffer[T]) CopyTo(dst []T) error {
	if b.data == nil {
		return ErrNotAllocated
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("%w: copy of %d elements from %d", ErrInvalidSize, len(dst), len(b.data))
	}
	b.dev.stream.drain()
	copy(dst, b.data)
	return nil
}

func (b *Buffer[T]) Zero() {
	if b.data == nil {
		return
	}
	b.dev.stream.drain()
	clear(b.data)
}

// HostVec is host staging memory used to marshal uploads. It is not
// accounted against device memory.
type HostVec[T any] struct {
	data []T
	mode AccessMode
}

func (h *HostVec[T]) Alloc(n int, dev *Device, mode AccessMode) error {
	if h.data != nil {
		return errAllocated
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d elements", ErrInvalidSize, n)
	}
	if dev.isClosed() {
		return ErrClosed
	}
	h.data = make([]T, n)
	h.mode = mode
	return nil
}

func (h *HostVec[T]) Clear()          { h.data = nil }
func (h *HostVec[T]) Len() int        { return len(h.data) }
func (h *HostVec[T]) Data() []T       { return h.data }
func (h *HostVec[T]) Zero()           { clear(h.data) }
func (h *HostVec[T]) RowBytes() int64 { return int64(len(h.data)) * SizeOf[T]() }
