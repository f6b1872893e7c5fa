//go:build double_precision

package crml

type (
	Numtyp = float64
	Acctyp = float64
)

const Precision = "double"
