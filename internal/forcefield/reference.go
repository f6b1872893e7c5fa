package forcefield

import (
	"math"

	"github.com/san-kum/crmlgpu/internal/neighbor"
)

// Result is the host evaluation of a configuration. Energies and the virial
// count every pair once.
type Result struct {
	Forces [][3]float64
	EVdwl  float64
	ECoul  float64
	Virial [6]float64
}

// PairTerms are the force numerators (force·r) and energies of one pair.
type PairTerms struct {
	ForceLJ   float64
	ForceCoul float64
	ELJ       float64
	ECoul     float64
}

// Pair evaluates one pair of types ti, tj with charges qi, qj at squared
// distance rsq and bond order, with the exact complementary error function.
func (c *Coefficients) Pair(rsq float64, ti, tj int, qi, qj float64, order int) PairTerms {
	var pt PairTerms
	if rsq >= c.CutBothSq {
		return pt
	}
	factorLJ, factorCoul := 1.0, 0.0
	if order > 0 {
		factorLJ = c.SpecialLJ[order]
		factorCoul = 1 - c.SpecialCoul[order]
	}
	r2inv := 1 / rsq

	if rsq < c.CutLJSq {
		r6inv := r2inv * r2inv * r2inv
		forceLJ := r6inv * (c.LJ1[ti][tj]*r6inv - c.LJ2[ti][tj])
		eLJ := r6inv * (c.LJ3[ti][tj]*r6inv - c.LJ4[ti][tj])
		if rsq > c.CutLJInnerSq {
			d := c.CutLJSq - rsq
			switch1 := d * d * (c.CutLJSq + 2*rsq - 3*c.CutLJInnerSq) / c.DenomLJ
			switch2 := 12 * rsq * d * (rsq - c.CutLJInnerSq) / c.DenomLJ
			forceLJ = forceLJ*switch1 + eLJ*switch2
			eLJ *= switch1
		}
		pt.ForceLJ = factorLJ * forceLJ
		pt.ELJ = factorLJ * eLJ
	}

	if rsq < c.CutCoulSq {
		r := math.Sqrt(rsq)
		grij := c.GEwald * r
		prefactor := c.QQrd2e * qi * qj / r
		erfc := math.Erfc(grij)
		pt.ForceCoul = prefactor * (erfc + 2/math.SqrtPi*grij*math.Exp(-grij*grij) - factorCoul)
		pt.ECoul = prefactor * (erfc - factorCoul)
	}
	return pt
}

// Reference evaluates forces on the first nlocal atoms against all atoms by
// direct summation.
func (c *Coefficients) Reference(pos [][3]float64, types []int, q []float64, nlocal int, specials neighbor.Specials) *Result {
	res := &Result{Forces: make([][3]float64, len(pos))}
	for i := 0; i < nlocal; i++ {
		orders := map[int]int{}
		if i < len(specials) {
			for _, sp := range specials[i] {
				orders[sp.Atom] = sp.Order
			}
		}
		for j := range pos {
			if j == i {
				continue
			}
			dx := pos[i][0] - pos[j][0]
			dy := pos[i][1] - pos[j][1]
			dz := pos[i][2] - pos[j][2]
			rsq := dx*dx + dy*dy + dz*dz
			if rsq >= c.CutBothSq {
				continue
			}
			var qi, qj float64
			if q != nil {
				qi, qj = q[i], q[j]
			}
			pt := c.Pair(rsq, types[i], types[j], qi, qj, orders[j])
			fpair := (pt.ForceLJ + pt.ForceCoul) / rsq
			res.Forces[i][0] += dx * fpair
			res.Forces[i][1] += dy * fpair
			res.Forces[i][2] += dz * fpair
			res.EVdwl += 0.5 * pt.ELJ
			res.ECoul += 0.5 * pt.ECoul
			res.Virial[0] += 0.5 * dx * dx * fpair
			res.Virial[1] += 0.5 * dy * dy * fpair
			res.Virial[2] += 0.5 * dz * dz * fpair
			res.Virial[3] += 0.5 * dx * dy * fpair
			res.Virial[4] += 0.5 * dx * dz * fpair
			res.Virial[5] += 0.5 * dy * dz * fpair
		}
	}
	return res
}
