// Package crml caches CHARMM Lennard-Jones and Ewald real-space Coulomb
// parameters on a device and dispatches the pair kernel that evaluates them.
//
// Two functionally equivalent kernels exist:
//
//   - kernel_pair_fast reads a per-type (ε, σ) table sized to
//     [MaxBioSharedTypes] rows, stages it in block-local memory and mixes
//     the pair coefficients arithmetically while evaluating.
//   - kernel_pair reads the full types×types table of precombined
//     coefficients.
//
// The choice is made once by [SelectPath] during [Memory.Init] and cached
// until the next [Memory.Clear]:
//
//	m := crml.New[float32, float64](log)
//	if err := m.Init(dev, params); err != nil {
//		return err
//	}
//	defer m.Clear()
//	err := m.Loop(true, true)
//
// The compute precision N and accumulation precision A are fixed per build;
// see [Default].
package crml
