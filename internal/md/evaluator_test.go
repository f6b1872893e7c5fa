package md

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/crmlgpu/internal/config"
	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
)

func newTestDevice(t *testing.T) *device.Device {
	t.Helper()
	props := device.DefaultProperties()
	props.Workers = 4
	dev, err := device.New(props)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func testSystem(t *testing.T) (*forcefield.Coefficients, *System) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.System.Lattice = 4
	coeffs, err := forcefield.Derive(cfg.Types, cfg.Pair)
	require.NoError(t, err)
	sys, err := BuildLattice(cfg.System, cfg.Types)
	require.NoError(t, err)
	return coeffs, sys
}

func TestEvaluatorMatchesReference(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	e, err := NewEvaluator[float64, float64](dev, coeffs, sys, EvaluatorOptions{}, nil)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, crml.PathFast, e.Memory().Path())

	ans, err := e.Compute(sys.Pos, true, true)
	require.NoError(t, err)
	ref := coeffs.Reference(sys.Pos, sys.Types, sys.Charge, sys.N(), sys.Specials)

	assert.LessOrEqual(t, forceDiff(ref.Forces, ans.Forces), 1e-4*maxNorm(ref.Forces))
	assert.InDelta(t, ref.EVdwl, ans.EVdwl, 1e-4*(math.Abs(ref.EVdwl)+1))
	assert.InDelta(t, ref.ECoul, ans.ECoul, 1e-4*(math.Abs(ref.ECoul)+1))
}

func TestEvaluatorGPUSplit(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	full, err := NewEvaluator[float64, float64](dev, coeffs, sys, EvaluatorOptions{GPUSplit: 1}, nil)
	require.NoError(t, err)
	defer full.Close()
	half, err := NewEvaluator[float64, float64](dev, coeffs, sys, EvaluatorOptions{GPUSplit: 0.5}, nil)
	require.NoError(t, err)
	defer half.Close()
	assert.Equal(t, sys.N()/2, half.DeviceRows())

	a, err := full.Compute(sys.Pos, true, true)
	require.NoError(t, err)
	b, err := half.Compute(sys.Pos, true, true)
	require.NoError(t, err)

	assert.LessOrEqual(t, forceDiff(a.Forces, b.Forces), 1e-4*maxNorm(a.Forces))
	assert.InDelta(t, a.Energy(), b.Energy(), 1e-4*(math.Abs(a.Energy())+1))
	for k := range a.Virial {
		assert.InDelta(t, a.Virial[k], b.Virial[k], 1e-4*(math.Abs(a.Virial[k])+1))
	}
}

func TestEvaluatorSkinReusesNeighbors(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	e, err := NewEvaluator[float32, float64](dev, coeffs, sys, EvaluatorOptions{Skin: 2}, nil)
	require.NoError(t, err)
	defer e.Close()

	pos := append([][3]float64(nil), sys.Pos...)
	_, err = e.Compute(pos, false, false)
	require.NoError(t, err)
	pos[0][0] += 0.5
	_, err = e.Compute(pos, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Builds())

	pos[0][0] += 0.75
	_, err = e.Compute(pos, false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Builds())

	_, err = e.Compute(pos[:3], false, false)
	assert.ErrorIs(t, err, ErrBadSystem)
}

func TestEvaluatorNoSkinRebuildsEveryStep(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	e, err := NewEvaluator[float32, float64](dev, coeffs, sys, EvaluatorOptions{}, nil)
	require.NoError(t, err)
	defer e.Close()
	for i := 0; i < 3; i++ {
		_, err = e.Compute(sys.Pos, false, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.Builds())
}

func TestEvaluatorRejectsUnknownType(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)
	sys.Types[0] = coeffs.Types

	_, err := NewEvaluator[float32, float64](dev, coeffs, sys, EvaluatorOptions{}, nil)
	assert.ErrorIs(t, err, ErrBadSystem)
	assert.Zero(t, dev.Used())
}

func TestDriverWithDevice(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	e, err := NewEvaluator[crml.Numtyp, crml.Acctyp](dev, coeffs, sys, EvaluatorOptions{Skin: 2}, nil)
	require.NoError(t, err)
	defer e.Close()

	result, err := New(e, nil).Run(context.Background(), sys, Config{Steps: 20, Dt: 0.5, ThermoEvery: 5})
	require.NoError(t, err)
	assert.Equal(t, 20, result.StepsTaken)
	assert.Len(t, result.Thermo, 5)
	first, last := result.Thermo[0], result.Thermo[len(result.Thermo)-1]
	assert.Less(t, math.Abs(last.Total-first.Total)/float64(sys.N()), 0.05)
	assert.Greater(t, result.Thermo[0].Temperature, 0.0)
}

func TestPairCurveMatchesHost(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, _ := testSystem(t)
	spec := PairSpec{TypeI: 0, TypeJ: 1, ChargeI: 0.5, ChargeJ: -0.5}
	rs := []float64{3.2, 3.8, 5, 8.5, 9.9, 10, 12}

	points, err := PairCurve[float64, float64](dev, coeffs, spec, rs, 0, nil)
	require.NoError(t, err)
	require.Len(t, points, len(rs))

	for k, r := range rs {
		pt := coeffs.Pair(r*r, spec.TypeI, spec.TypeJ, spec.ChargeI, spec.ChargeJ, 0)
		assert.Equal(t, r, points[k].R)
		assert.InDelta(t, pt.ELJ, points[k].EVdwl, 1e-10, "r=%g", r)
		assert.InDelta(t, pt.ECoul, points[k].ECoul, 1e-5, "r=%g", r)
		assert.InDelta(t, (pt.ForceLJ+pt.ForceCoul)/r, points[k].Force, 1e-5, "r=%g", r)
	}
	assert.Zero(t, points[len(rs)-1].Energy())
	assert.Zero(t, points[len(rs)-2].Energy())
	assert.Zero(t, dev.Used())
}

func TestPairCurveErrors(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, _ := testSystem(t)

	_, err := PairCurve[float32, float64](dev, coeffs, PairSpec{TypeI: 9}, []float64{3}, 0, nil)
	assert.ErrorIs(t, err, ErrBadSystem)
	_, err = PairCurve[float32, float64](dev, coeffs, PairSpec{}, []float64{0, 3}, 0, nil)
	assert.ErrorIs(t, err, ErrBadSystem)

	points, err := PairCurve[float32, float64](dev, coeffs, PairSpec{}, nil, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestVerify(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	report, err := Verify[float64, float64](dev, coeffs, sys, EvaluatorOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Paths, 2)
	assert.Equal(t, crml.PathFast, report.Paths[0].Path)
	assert.Equal(t, crml.PathGeneric, report.Paths[1].Path)
	for _, c := range report.Paths {
		assert.Less(t, c.RelForceError, 1e-4, c.Path.String())
	}
	assert.Less(t, report.PathsAgree, 1e-8)
	assert.Zero(t, dev.Used())
}

func TestVerifyGeometricRunsGenericOnly(t *testing.T) {
	dev := newTestDevice(t)
	cfg := config.DefaultConfig()
	cfg.System.Lattice = 3
	cfg.Pair.Mixing = forcefield.MixGeometric
	coeffs, err := forcefield.Derive(cfg.Types, cfg.Pair)
	require.NoError(t, err)
	sys, err := BuildLattice(cfg.System, cfg.Types)
	require.NoError(t, err)

	report, err := Verify[float32, float64](dev, coeffs, sys, EvaluatorOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Paths, 1)
	assert.Equal(t, crml.PathGeneric, report.Paths[0].Path)
}

func TestBench(t *testing.T) {
	dev := newTestDevice(t)
	coeffs, sys := testSystem(t)

	e, err := NewEvaluator[float32, float64](dev, coeffs, sys, EvaluatorOptions{Skin: 2}, nil)
	require.NoError(t, err)
	defer e.Close()

	r, err := Bench(context.Background(), e, sys.Pos, 3, true, false)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Steps)
	assert.Equal(t, sys.N(), r.Atoms)
	assert.Equal(t, 3, e.Memory().TimePair.Count())
	assert.Positive(t, r.DeviceBytes)
}
