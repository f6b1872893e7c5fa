package crml

import (
	"fmt"

	"github.com/san-kum/crmlgpu/internal/device"
)

// stagingSize is the element count of the host write buffer: room for the
// full table or the shared-types table, whichever is larger, 32 scalars per row.
func stagingSize(types int) int {
	h := types * types
	if h < MaxBioSharedTypes {
		h = MaxBioSharedTypes
	}
	return h * 32
}

// pack allocates and uploads lj1, ljd and sp_lj. On failure every buffer it
// allocated is released again.
func (m *Memory[N, A]) pack(dev *device.Device, p *Params) error {
	var hostWrite device.HostVec[N]
	if err := hostWrite.Alloc(stagingSize(p.Types), dev, device.WriteOptimized); err != nil {
		return fmt.Errorf("alloc host write buffer: %w", err)
	}
	defer hostWrite.Clear()
	hostWrite.Zero()

	if err := m.packTables(dev, p, &hostWrite); err != nil {
		m.clearTables()
		return err
	}
	return nil
}

func (m *Memory[N, A]) packTables(dev *device.Device, p *Params, hostWrite *device.HostVec[N]) error {
	n := p.Types
	if err := m.lj1.Alloc(n*n, dev, device.ReadOnly); err != nil {
		return fmt.Errorf("alloc lj1: %w", err)
	}
	if err := typePack4(n, &m.lj1, hostWrite, p.LJ1, p.LJ2, p.LJ3, p.LJ4); err != nil {
		return fmt.Errorf("pack lj1: %w", err)
	}

	if err := m.ljd.Alloc(MaxBioSharedTypes, dev, device.ReadOnly); err != nil {
		return fmt.Errorf("alloc ljd: %w", err)
	}
	if err := selfPack2(n, &m.ljd, hostWrite, p.Epsilon, p.Sigma); err != nil {
		return fmt.Errorf("pack ljd: %w", err)
	}

	if err := m.spLJ.Alloc(8, dev, device.ReadOnly); err != nil {
		return fmt.Errorf("alloc sp_lj: %w", err)
	}
	if err := specialPack(&m.spLJ, hostWrite, p.SpecialLJ, p.SpecialCoul); err != nil {
		return fmt.Errorf("pack sp_lj: %w", err)
	}
	return nil
}

func (m *Memory[N, A]) clearTables() {
	m.lj1.Clear()
	m.ljd.Clear()
	m.spLJ.Clear()
}

// typePack4 writes four coefficients per type pair, row-major by (a, b),
// cast to compute precision.
func typePack4[N device.Float](n int, dst *device.Buffer[device.Vec4[N]], stage *device.HostVec[N], c1, c2, c3, c4 [][]float64) error {
	buf := stage.Data()[:4*n*n]
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := 4 * (i*n + j)
			buf[k] = N(c1[i][j])
			buf[k+1] = N(c2[i][j])
			buf[k+2] = N(c3[i][j])
			buf[k+3] = N(c4[i][j])
		}
	}
	return dst.CopyFrom(device.AsVec4(buf))
}

// selfPack2 writes (ε_ii, σ_ii) for each type into a fixed-capacity table.
// Rows past the type count are zero.
func selfPack2[N device.Float](n int, dst *device.Buffer[device.Vec2[N]], stage *device.HostVec[N], eps, sigma [][]float64) error {
	rows := dst.Len()
	buf := stage.Data()[:2*rows]
	clear(buf)
	for i := 0; i < min(n, rows); i++ {
		buf[2*i] = N(eps[i][i])
		buf[2*i+1] = N(sigma[i][i])
	}
	return dst.CopyFrom(device.AsVec2(buf))
}

// specialPack writes the LJ weights to slots 0-3 and Coulomb weights to 4-7.
func specialPack[N device.Float](dst *device.Buffer[N], stage *device.HostVec[N], lj, coul [4]float64) error {
	buf := stage.Data()[:8]
	for i := 0; i < 4; i++ {
		buf[i] = N(lj[i])
		buf[i+4] = N(coul[i])
	}
	return dst.CopyFrom(buf)
}
