//go:build single_precision && !double_precision

package crml

type (
	Numtyp = float32
	Acctyp = float32
)

const Precision = "single"
