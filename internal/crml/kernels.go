package crml

import (
	"math"

	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/neighbor"
)

const (
	kernelPairName     = "kernel_pair"
	kernelPairFastName = "kernel_pair_fast"
)

// erfc polynomial (Abramowitz & Stegun 7.1.26) and 2/√π.
const (
	ewaldF = 1.12837917
	ewaldP = 0.3275911
	a1     = 0.254829592
	a2     = -0.284496736
	a3     = 1.421413741
	a4     = -1.453152027
	a5     = 1.061405429
)

// fastArgs is the argument list of kernel_pair_fast, in launch order.
type fastArgs[N, A device.Float] struct {
	x            []device.Vec4[N]
	ljd          []device.Vec2[N]
	spLJ         []N
	nbor         []int32
	ans          []device.Vec4[A]
	engv         []A
	eflag        int
	vflag        int
	inum         int
	nall         int
	nborPitch    int
	q            []N
	cutCoulSq    N
	qqrd2e       N
	gEwald       N
	denomLJ      N
	cutBothSq    N
	cutLJSq      N
	cutLJInnerSq N
}

// pairArgs is the argument list of kernel_pair, in launch order.
type pairArgs[N, A device.Float] struct {
	x            []device.Vec4[N]
	lj1          []device.Vec4[N]
	ljTypes      int
	spLJ         []N
	nbor         []int32
	ans          []device.Vec4[A]
	engv         []A
	eflag        int
	vflag        int
	inum         int
	nall         int
	nborPitch    int
	q            []N
	cutCoulSq    N
	qqrd2e       N
	gEwald       N
	denomLJ      N
	cutBothSq    N
	cutLJSq      N
	cutLJInnerSq N
}

func sqrtN[N device.Float](x N) N { return N(math.Sqrt(float64(x))) }
func expN[N device.Float](x N) N  { return N(math.Exp(float64(x))) }

// ewaldReal returns the real-space Coulomb force numerator and energy of one
// pair, with the excluded fraction factorCoul of the full 1/r interaction
// removed again.
func ewaldReal[N device.Float](rsq, qq, qqrd2e, gEwald, factorCoul N) (force, energy N) {
	r := sqrtN(rsq)
	grij := gEwald * r
	expm2 := expN(-grij * grij)
	t := 1 / (1 + ewaldP*grij)
	erfc := t * (a1 + t*(a2+t*(a3+t*(a4+t*a5)))) * expm2
	prefactor := qqrd2e * qq / r
	force = prefactor * (erfc + ewaldF*grij*expm2 - factorCoul)
	energy = prefactor * (erfc - factorCoul)
	return force, energy
}

// specialFactors returns the LJ weight and the excluded Coulomb fraction for
// special mask sb. Slots 0 and 4 are never read: ordinary pairs interact in
// full whatever the weights hold.
func specialFactors[N device.Float](spLJ *[8]N, sb int) (factorLJ, factorCoul N) {
	if sb == 0 {
		return 1, 0
	}
	return spLJ[sb], 1 - spLJ[sb+4]
}

// charmmSwitch returns the energy scale switch1 and force term switch2 of
// the CHARMM switching function for inner² < rsq < cut².
func charmmSwitch[N device.Float](rsq, cutLJSq, cutLJInnerSq, denomLJ N) (switch1, switch2 N) {
	d := cutLJSq - rsq
	switch2 = 12 * rsq * d * (rsq - cutLJInnerSq) / denomLJ
	switch1 = d * d * (cutLJSq + 2*rsq - 3*cutLJInnerSq) / denomLJ
	return switch1, switch2
}

type accum[A device.Float] struct {
	fx, fy, fz A
	energy     A
	eCoul      A
	virial     [6]A
}

func (acc *accum[A]) add(delx, dely, delz, force A) {
	acc.fx += delx * force
	acc.fy += dely * force
	acc.fz += delz * force
}

func (acc *accum[A]) addVirial(delx, dely, delz, force A) {
	acc.virial[0] += delx * delx * force
	acc.virial[1] += dely * dely * force
	acc.virial[2] += delz * delz * force
	acc.virial[3] += delx * dely * force
	acc.virial[4] += delx * delz * force
	acc.virial[5] += dely * delz * force
}

// store writes row ii of the answer and energy/virial buffers. Rows of engv
// are strided by inum: evdwl, ecoul, then the six virial terms. Terms not
// requested are written as zero so no row outlives its launch.
func (acc *accum[A]) store(ans []device.Vec4[A], engv []A, ii, inum, eflag, vflag int) {
	ans[ii] = device.Vec4[A]{X: acc.fx, Y: acc.fy, Z: acc.fz}
	if eflag > 0 {
		engv[ii] = acc.energy
		engv[ii+inum] = acc.eCoul
	} else {
		engv[ii] = 0
		engv[ii+inum] = 0
	}
	for k := 0; k < 6; k++ {
		var v A
		if vflag > 0 {
			v = acc.virial[k]
		}
		engv[ii+(2+k)*inum] = v
	}
}

// kernelPairFast stages the special weights and the per-type table in block
// memory and mixes ε and σ arithmetically per pair.
func kernelPairFast[N, A device.Float](b device.Block, p *fastArgs[N, A]) {
	var spLJ [8]N
	var ljd [MaxBioSharedTypes]device.Vec2[N]
	copy(spLJ[:], p.spLJ)
	copy(ljd[:], p.ljd)

	for t := 0; t < b.Dim; t++ {
		ii := b.Thread(t)
		if ii >= p.inum {
			break
		}

		var acc accum[A]
		i := int(p.nbor[ii])
		numj := int(p.nbor[ii+p.nborPitch])
		xi := p.x[i]
		itype := int(xi.W)
		qtmp := p.q[i]

		for k := 0; k < numj; k++ {
			jraw := p.nbor[ii+(2+k)*p.nborPitch]
			sb := neighbor.SBMask(jraw)
			j := int(jraw & neighbor.NeighMask)
			factorLJ, factorCoul := specialFactors(&spLJ, sb)

			xj := p.x[j]
			delx := xi.X - xj.X
			dely := xi.Y - xj.Y
			delz := xi.Z - xj.Z
			rsq := delx*delx + dely*dely + delz*delz
			if rsq >= p.cutBothSq {
				continue
			}
			r2inv := 1 / rsq

			var forceLJ, eLJ N
			if rsq < p.cutLJSq {
				jtype := int(xj.W)
				eps := sqrtN(ljd[itype].X * ljd[jtype].X)
				sig := 0.5 * (ljd[itype].Y + ljd[jtype].Y)
				sigR6 := sig * sig * r2inv
				sigR6 = sigR6 * sigR6 * sigR6
				lj4 := 4 * eps * sigR6
				lj3 := lj4 * sigR6
				forceLJ = 12*lj3 - 6*lj4
				eLJ = lj3 - lj4
				if rsq > p.cutLJInnerSq {
					switch1, switch2 := charmmSwitch(rsq, p.cutLJSq, p.cutLJInnerSq, p.denomLJ)
					forceLJ = forceLJ*switch1 + switch2*eLJ
					eLJ *= switch1
				}
				forceLJ *= factorLJ
				eLJ *= factorLJ
			}

			var forceCoul, eCoul N
			if rsq < p.cutCoulSq {
				forceCoul, eCoul = ewaldReal(rsq, qtmp*p.q[j], p.qqrd2e, p.gEwald, factorCoul)
			}

			force := A((forceLJ + forceCoul) * r2inv)
			acc.add(A(delx), A(dely), A(delz), force)
			if p.eflag > 0 {
				acc.energy += A(eLJ)
				acc.eCoul += A(eCoul)
			}
			if p.vflag > 0 {
				acc.addVirial(A(delx), A(dely), A(delz), force)
			}
		}
		acc.store(p.ans, p.engv, ii, p.inum, p.eflag, p.vflag)
	}
}

// kernelPair reads precombined coefficients from the full type-pair table.
func kernelPair[N, A device.Float](b device.Block, p *pairArgs[N, A]) {
	var spLJ [8]N
	copy(spLJ[:], p.spLJ)

	for t := 0; t < b.Dim; t++ {
		ii := b.Thread(t)
		if ii >= p.inum {
			break
		}

		var acc accum[A]
		i := int(p.nbor[ii])
		numj := int(p.nbor[ii+p.nborPitch])
		xi := p.x[i]
		itype := int(xi.W)
		qtmp := p.q[i]

		for k := 0; k < numj; k++ {
			jraw := p.nbor[ii+(2+k)*p.nborPitch]
			sb := neighbor.SBMask(jraw)
			j := int(jraw & neighbor.NeighMask)
			factorLJ, factorCoul := specialFactors(&spLJ, sb)

			xj := p.x[j]
			delx := xi.X - xj.X
			dely := xi.Y - xj.Y
			delz := xi.Z - xj.Z
			rsq := delx*delx + dely*dely + delz*delz
			if rsq >= p.cutBothSq {
				continue
			}
			r2inv := 1 / rsq

			var forceLJ, eLJ N
			if rsq < p.cutLJSq {
				c := p.lj1[itype*p.ljTypes+int(xj.W)]
				r6inv := r2inv * r2inv * r2inv
				forceLJ = r6inv * (c.X*r6inv - c.Y)
				eLJ = r6inv * (c.Z*r6inv - c.W)
				if rsq > p.cutLJInnerSq {
					switch1, switch2 := charmmSwitch(rsq, p.cutLJSq, p.cutLJInnerSq, p.denomLJ)
					forceLJ = forceLJ*switch1 + switch2*eLJ
					eLJ *= switch1
				}
				forceLJ *= factorLJ
				eLJ *= factorLJ
			}

			var forceCoul, eCoul N
			if rsq < p.cutCoulSq {
				forceCoul, eCoul = ewaldReal(rsq, qtmp*p.q[j], p.qqrd2e, p.gEwald, factorCoul)
			}

			force := A((forceLJ + forceCoul) * r2inv)
			acc.add(A(delx), A(dely), A(delz), force)
			if p.eflag > 0 {
				acc.energy += A(eLJ)
				acc.eCoul += A(eCoul)
			}
			if p.vflag > 0 {
				acc.addVirial(A(delx), A(dely), A(delz), force)
			}
		}
		acc.store(p.ans, p.engv, ii, p.inum, p.eflag, p.vflag)
	}
}
