package crml

// Path tags the kernel variant a Memory dispatches.
type Path uint8

const (
	PathGeneric Path = iota
	PathFast
)

func (p Path) String() string {
	if p == PathFast {
		return "fast"
	}
	return "generic"
}

// Kernel is the name of the entry point the path launches.
func (p Path) Kernel() string {
	if p == PathFast {
		return kernelPairFastName
	}
	return kernelPairName
}

// SelectPath reports whether the shared-types kernel is legal for a block
// size and mixing rule. It does not look at the number of types; Init
// rejects fast-path systems that exceed MaxBioSharedTypes.
func SelectPath(blockSize int, mixArithmetic bool) Path {
	if blockSize >= SharedTypesMinBlock && mixArithmetic {
		return PathFast
	}
	return PathGeneric
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
