package md

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

// CurvePoint is the interaction of one isolated pair at separation R.
// Force is the radial force, positive when repulsive.
type CurvePoint struct {
	R     float64 `json:"r"`
	EVdwl float64 `json:"evdwl"`
	ECoul float64 `json:"ecoul"`
	Force float64 `json:"force"`
}

func (p CurvePoint) Energy() float64 { return p.EVdwl + p.ECoul }

// PairSpec selects the two types and charges of a scanned pair.
type PairSpec struct {
	TypeI, TypeJ     int
	ChargeI, ChargeJ float64
	Order            int
}

// PairCurve evaluates one pair at every separation in rs with a single
// launch: each separation becomes a dimer placed beyond the cutoff from all
// others.
func PairCurve[N, A device.Float](dev *device.Device, coeffs *forcefield.Coefficients, spec PairSpec, rs []float64, blockSize int, log *zap.Logger) ([]CurvePoint, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	if spec.TypeI < 0 || spec.TypeJ < 0 || spec.TypeI >= coeffs.Types || spec.TypeJ >= coeffs.Types {
		return nil, fmt.Errorf("%w: types (%d,%d) of %d", ErrBadSystem, spec.TypeI, spec.TypeJ, coeffs.Types)
	}
	if spec.Order < neighbor.OrderNone || spec.Order > neighbor.Order14 {
		return nil, fmt.Errorf("%w: bond order %d", ErrBadSystem, spec.Order)
	}
	rmax := slices.Max(rs)
	if slices.Min(rs) <= 0 {
		return nil, fmt.Errorf("%w: separations must be positive", ErrBadSystem)
	}
	gap := coeffs.Cutoff() + rmax + 1

	n := 2 * len(rs)
	sys := &System{
		Pos:      make([][3]float64, n),
		Vel:      make([][3]float64, n),
		Mass:     make([]float64, n),
		Charge:   make([]float64, n),
		Types:    make([]int, n),
		Specials: make(neighbor.Specials, n),
	}
	for k, r := range rs {
		a, b := 2*k, 2*k+1
		sys.Pos[a] = [3]float64{float64(k) * gap, 0, 0}
		sys.Pos[b] = [3]float64{float64(k)*gap + r, 0, 0}
		sys.Types[a], sys.Types[b] = spec.TypeI, spec.TypeJ
		sys.Charge[a], sys.Charge[b] = spec.ChargeI, spec.ChargeJ
		sys.Mass[a], sys.Mass[b] = 1, 1
		if spec.Order != neighbor.OrderNone {
			sys.Specials[a] = []neighbor.Special{{Atom: b, Order: spec.Order}}
			sys.Specials[b] = []neighbor.Special{{Atom: a, Order: spec.Order}}
		}
	}

	e, err := NewEvaluator[N, A](dev, coeffs, sys, EvaluatorOptions{MaxNbors: 1, GPUSplit: 1, BlockSize: blockSize}, log)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	ans, err := e.Compute(sys.Pos, true, false)
	if err != nil {
		return nil, err
	}
	evdwl, ecoul, err := e.mem.Atom.GetEnergyRows()
	if err != nil {
		return nil, err
	}

	points := make([]CurvePoint, len(rs))
	for k, r := range rs {
		a, b := 2*k, 2*k+1
		points[k] = CurvePoint{
			R:     r,
			EVdwl: evdwl[a] + evdwl[b],
			ECoul: ecoul[a] + ecoul[b],
			Force: ans.Forces[b][0],
		}
	}
	return points, nil
}
