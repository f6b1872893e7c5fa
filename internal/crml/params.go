package crml

import (
	"fmt"
	"io"
	"math"
)

// Params is everything Init needs: coefficient tables, cutoffs, electrostatics
// constants and the sizes of the base layer.
type Params struct {
	Types     int
	CutBothSq float64

	// Precombined pair coefficients, Types×Types: 48εσ¹², 24εσ⁶, 4εσ¹², 4εσ⁶.
	LJ1, LJ2, LJ3, LJ4 [][]float64
	Offset             [][]float64

	// Special weights for non-bonded, 1-2, 1-3 and 1-4 pairs.
	SpecialLJ   [4]float64
	SpecialCoul [4]float64

	Nlocal     int
	Nall       int
	MaxNbors   int
	MaxSpecial int
	CellSize   float64
	GPUSplit   float64
	Screen     io.Writer

	CutLJSq      float64
	CutCoulSq    float64
	QQrd2e       float64
	GEwald       float64
	CutLJInnerSq float64
	DenomLJ      float64

	// Mixed ε and σ, Types×Types; only the diagonal is uploaded.
	Epsilon, Sigma [][]float64

	MixArithmetic bool

	// BlockSize overrides the device block size when positive.
	BlockSize int
}

func (p *Params) validate() error {
	if p.Types < 1 {
		return fmt.Errorf("%w: types=%d", ErrBadParams, p.Types)
	}
	matrices := []struct {
		name string
		m    [][]float64
	}{
		{"lj1", p.LJ1}, {"lj2", p.LJ2}, {"lj3", p.LJ3}, {"lj4", p.LJ4},
		{"offset", p.Offset}, {"epsilon", p.Epsilon}, {"sigma", p.Sigma},
	}
	for _, mat := range matrices {
		if err := checkSquare(mat.name, mat.m, p.Types); err != nil {
			return err
		}
	}

	scalars := []struct {
		name string
		v    float64
	}{
		{"cut_bothsq", p.CutBothSq}, {"cut_ljsq", p.CutLJSq}, {"cut_coulsq", p.CutCoulSq},
		{"qqrd2e", p.QQrd2e}, {"g_ewald", p.GEwald},
		{"cut_lj_innersq", p.CutLJInnerSq}, {"denom_lj", p.DenomLJ},
	}
	for _, s := range scalars {
		if math.IsNaN(s.v) || math.IsInf(s.v, 0) || s.v < 0 {
			return fmt.Errorf("%w: %s=%g", ErrBadParams, s.name, s.v)
		}
	}
	if p.CutBothSq == 0 {
		return fmt.Errorf("%w: cut_bothsq must be positive", ErrBadParams)
	}
	if p.CutLJInnerSq > p.CutLJSq {
		return fmt.Errorf("%w: cut_lj_innersq=%g > cut_ljsq=%g", ErrBadParams, p.CutLJInnerSq, p.CutLJSq)
	}
	if p.CutLJInnerSq < p.CutLJSq && p.DenomLJ == 0 {
		return fmt.Errorf("%w: denom_lj must be positive with a switching region", ErrBadParams)
	}
	return nil
}

func checkSquare(name string, m [][]float64, n int) error {
	if len(m) < n {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrBadParams, name, len(m), n)
	}
	for i := 0; i < n; i++ {
		if len(m[i]) < n {
			return fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrBadParams, name, i, len(m[i]), n)
		}
	}
	return nil
}
