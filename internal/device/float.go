package device

import "unsafe"

// Float is the set of numeric precisions kernels are instantiated for.
type Float interface {
	~float32 | ~float64
}

// Vec4 is a packed four channel element (numtyp4 / acctyp4 on a GPU).
type Vec4[T Float] struct {
	X, Y, Z, W T
}

// Vec2 is a packed two channel element.
type Vec2[T Float] struct {
	X, Y T
}

// AsVec4 reinterprets a flat slice of 4n scalars as n packed elements.
func AsVec4[T Float](flat []T) []Vec4[T] {
	if len(flat) < 4 {
		return nil
	}
	return unsafe.Slice((*Vec4[T])(unsafe.Pointer(unsafe.SliceData(flat))), len(flat)/4)
}

// AsVec2 reinterprets a flat slice of 2n scalars as n packed elements.
func AsVec2[T Float](flat []T) []Vec2[T] {
	if len(flat) < 2 {
		return nil
	}
	return unsafe.Slice((*Vec2[T])(unsafe.Pointer(unsafe.SliceData(flat))), len(flat)/2)
}
