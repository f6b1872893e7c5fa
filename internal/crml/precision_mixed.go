//go:build !single_precision && !double_precision

package crml

// Numtyp is the compute precision and Acctyp the accumulation precision of
// the build.
type (
	Numtyp = float32
	Acctyp = float64
)

const Precision = "mixed"
