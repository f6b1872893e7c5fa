package crml

import "go.uber.org/zap"

// Default is Memory instantiated at the build's precision.
type Default = Memory[Numtyp, Acctyp]

func NewDefault(log *zap.Logger) *Default {
	return New[Numtyp, Acctyp](log)
}
