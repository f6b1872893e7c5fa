package crml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/crmlgpu/internal/device"
)

func newPackDevice(t *testing.T) *device.Device {
	t.Helper()
	props := device.DefaultProperties()
	props.Workers = 2
	dev, err := device.New(props)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func matrix(n int, f func(i, j int) float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = f(i, j)
		}
	}
	return m
}

func TestStagingSize(t *testing.T) {
	assert.Equal(t, MaxBioSharedTypes*32, stagingSize(1))
	assert.Equal(t, MaxBioSharedTypes*32, stagingSize(11))
	assert.Equal(t, 12*12*32, stagingSize(12))
	assert.Equal(t, 200*200*32, stagingSize(200))
}

func TestTypePack4RowMajor(t *testing.T) {
	dev := newPackDevice(t)
	const n = 3

	var stage device.HostVec[float32]
	require.NoError(t, stage.Alloc(stagingSize(n), dev, device.WriteOptimized))
	defer stage.Clear()

	var dst device.Buffer[device.Vec4[float32]]
	require.NoError(t, dst.Alloc(n*n, dev, device.ReadOnly))
	defer dst.Clear()

	c := func(ch int) [][]float64 {
		return matrix(n, func(i, j int) float64 { return float64(100*ch + 10*i + j) })
	}
	require.NoError(t, typePack4(n, &dst, &stage, c(1), c(2), c(3), c(4)))

	got := make([]device.Vec4[float32], n*n)
	require.NoError(t, dst.CopyTo(got))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := device.Vec4[float32]{
				X: float32(100 + 10*i + j),
				Y: float32(200 + 10*i + j),
				Z: float32(300 + 10*i + j),
				W: float32(400 + 10*i + j),
			}
			assert.Equal(t, want, got[i*n+j], "cell (%d,%d)", i, j)
		}
	}
}

func TestSelfPack2ZeroesUnusedRows(t *testing.T) {
	dev := newPackDevice(t)
	const n = 4

	var stage device.HostVec[float64]
	require.NoError(t, stage.Alloc(stagingSize(n), dev, device.WriteOptimized))
	defer stage.Clear()
	// Leftovers from an earlier pack must not leak into the table.
	for i := range stage.Data() {
		stage.Data()[i] = -1
	}

	var dst device.Buffer[device.Vec2[float64]]
	require.NoError(t, dst.Alloc(MaxBioSharedTypes, dev, device.ReadOnly))
	defer dst.Clear()

	eps := matrix(n, func(i, j int) float64 { return 0.1 * float64(i+1) * float64(j+1) })
	sigma := matrix(n, func(i, j int) float64 { return 3 + float64(i+j) })
	require.NoError(t, selfPack2(n, &dst, &stage, eps, sigma))

	got := make([]device.Vec2[float64], MaxBioSharedTypes)
	require.NoError(t, dst.CopyTo(got))
	for i := 0; i < n; i++ {
		assert.Equal(t, device.Vec2[float64]{X: eps[i][i], Y: sigma[i][i]}, got[i])
	}
	for i := n; i < MaxBioSharedTypes; i++ {
		assert.Zero(t, got[i], "row %d", i)
	}
}

func TestSelfPack2TruncatesToCapacity(t *testing.T) {
	dev := newPackDevice(t)
	n := MaxBioSharedTypes + 5

	var stage device.HostVec[float32]
	require.NoError(t, stage.Alloc(stagingSize(n), dev, device.WriteOptimized))
	defer stage.Clear()

	var dst device.Buffer[device.Vec2[float32]]
	require.NoError(t, dst.Alloc(MaxBioSharedTypes, dev, device.ReadOnly))
	defer dst.Clear()

	ones := matrix(n, func(i, j int) float64 { return 1 })
	require.NoError(t, selfPack2(n, &dst, &stage, ones, ones))

	got := make([]device.Vec2[float32], MaxBioSharedTypes)
	require.NoError(t, dst.CopyTo(got))
	assert.Equal(t, device.Vec2[float32]{X: 1, Y: 1}, got[MaxBioSharedTypes-1])
}

func TestSpecialPackSlots(t *testing.T) {
	dev := newPackDevice(t)

	var stage device.HostVec[float32]
	require.NoError(t, stage.Alloc(stagingSize(1), dev, device.WriteOptimized))
	defer stage.Clear()

	var dst device.Buffer[float32]
	require.NoError(t, dst.Alloc(8, dev, device.ReadOnly))
	defer dst.Clear()

	lj := [4]float64{1, 0, 0.25, 0.5}
	coul := [4]float64{1, 0, 0.75, 0.833333}
	require.NoError(t, specialPack(&dst, &stage, lj, coul))

	got := make([]float32, 8)
	require.NoError(t, dst.CopyTo(got))
	assert.Equal(t, []float32{1, 0, 0.25, 0.5, 1, 0, 0.75, float32(0.833333)}, got)
}

func TestSelectPath(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		arith     bool
		want      Path
	}{
		{"fast at threshold", 64, true, PathFast},
		{"fast above threshold", 256, true, PathFast},
		{"small block", 63, true, PathGeneric},
		{"geometric mixing", 128, false, PathGeneric},
		{"both fail", 32, false, PathGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectPath(tt.blockSize, tt.arith))
		})
	}
	assert.Equal(t, "kernel_pair_fast", PathFast.Kernel())
	assert.Equal(t, "kernel_pair", PathGeneric.Kernel())
}

func TestParamsValidate(t *testing.T) {
	square := func(n int) [][]float64 { return matrix(n, func(i, j int) float64 { return 1 }) }
	valid := func() Params {
		return Params{
			Types: 2, CutBothSq: 100,
			LJ1: square(2), LJ2: square(2), LJ3: square(2), LJ4: square(2), Offset: square(2),
			Epsilon: square(2), Sigma: square(2),
			CutLJSq: 100, CutCoulSq: 100, CutLJInnerSq: 64, DenomLJ: 46656,
			QQrd2e: 332.0716, GEwald: 0.3,
		}
	}

	p := valid()
	require.NoError(t, p.validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no types", func(p *Params) { p.Types = 0 }},
		{"short lj1", func(p *Params) { p.LJ1 = square(1) }},
		{"ragged offset", func(p *Params) { p.Offset[1] = []float64{0} }},
		{"missing sigma", func(p *Params) { p.Sigma = nil }},
		{"zero cut_bothsq", func(p *Params) { p.CutBothSq = 0 }},
		{"negative cut_coulsq", func(p *Params) { p.CutCoulSq = -1 }},
		{"inner beyond outer", func(p *Params) { p.CutLJInnerSq = 121 }},
		{"zero denominator", func(p *Params) { p.DenomLJ = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			assert.ErrorIs(t, p.validate(), ErrBadParams)
		})
	}
}
