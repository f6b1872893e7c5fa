// Package forcefield derives the CHARMM coefficient tables a pair evaluator
// caches on the device, and evaluates the same interaction on the host in
// double precision for validation.
package forcefield

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/crmlgpu/internal/crml"
)

// QQR2ECharmm is the Coulomb conversion constant of CHARMM real units,
// kcal/mol·Å/e².
const QQR2ECharmm = 332.0716

// DefaultAccuracy is the relative force accuracy used to pick the Ewald
// splitting parameter when none is given.
const DefaultAccuracy = 1e-5

type Mixing string

const (
	MixArithmetic Mixing = "arithmetic"
	MixGeometric  Mixing = "geometric"
)

var (
	ErrNoTypes     = errors.New("forcefield: no atom types")
	ErrBadType     = errors.New("forcefield: invalid atom type")
	ErrBadCutoff   = errors.New("forcefield: invalid cutoff")
	ErrBadMixing   = errors.New("forcefield: unknown mixing rule")
	ErrBadOverride = errors.New("forcefield: invalid pair override")
)

// Type is one atom type.
type Type struct {
	Name    string  `yaml:"name" json:"name"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	Sigma   float64 `yaml:"sigma" json:"sigma"`
	Mass    float64 `yaml:"mass" json:"mass"`
}

// PairOverride replaces the mixed ε and σ of one type pair.
type PairOverride struct {
	I       int     `yaml:"i" json:"i"`
	J       int     `yaml:"j" json:"j"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	Sigma   float64 `yaml:"sigma" json:"sigma"`
}

// Settings are the pair style settings.
type Settings struct {
	CutLJInner  float64        `yaml:"cut_lj_inner" json:"cut_lj_inner"`
	CutLJ       float64        `yaml:"cut_lj" json:"cut_lj"`
	CutCoul     float64        `yaml:"cut_coul" json:"cut_coul"`
	SpecialLJ   [4]float64     `yaml:"special_lj" json:"special_lj"`
	SpecialCoul [4]float64     `yaml:"special_coul" json:"special_coul"`
	QQrd2e      float64        `yaml:"qqrd2e" json:"qqrd2e"`
	Accuracy    float64        `yaml:"accuracy" json:"accuracy"`
	GEwald      float64        `yaml:"g_ewald" json:"g_ewald"`
	Mixing      Mixing         `yaml:"mixing" json:"mixing"`
	Overrides   []PairOverride `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// DefaultSettings are CHARMM22 defaults: 8/10 Å switching, 10 Å Coulomb,
// 1-2 and 1-3 pairs excluded, 1-4 pairs at full strength.
func DefaultSettings() Settings {
	return Settings{
		CutLJInner:  8,
		CutLJ:       10,
		CutCoul:     10,
		SpecialLJ:   [4]float64{1, 0, 0, 1},
		SpecialCoul: [4]float64{1, 0, 0, 1},
		QQrd2e:      QQR2ECharmm,
		Accuracy:    DefaultAccuracy,
		Mixing:      MixArithmetic,
	}
}

// Coefficients are the derived tables of a set of types. Type indices are
// zero based.
type Coefficients struct {
	Types int

	LJ1, LJ2, LJ3, LJ4 [][]float64
	Offset             [][]float64
	Epsilon, Sigma     [][]float64

	CutLJInnerSq float64
	CutLJSq      float64
	CutCoulSq    float64
	CutBothSq    float64
	DenomLJ      float64
	GEwald       float64
	QQrd2e       float64

	SpecialLJ   [4]float64
	SpecialCoul [4]float64

	MixArithmetic bool
}

// GEwald estimates the Ewald splitting parameter for a real-space cutoff
// and relative accuracy.
func GEwald(accuracy, cutCoul float64) float64 {
	if accuracy <= 0 || accuracy >= 1 || cutCoul <= 0 {
		return 0
	}
	return (1.35 - 0.15*math.Log(accuracy)) / cutCoul
}

// Derive mixes ε and σ for every type pair, applies overrides and builds the
// coefficient tables.
func Derive(types []Type, s Settings) (*Coefficients, error) {
	n := len(types)
	if n == 0 {
		return nil, ErrNoTypes
	}
	for i, t := range types {
		if t.Epsilon < 0 || t.Sigma < 0 || math.IsNaN(t.Epsilon) || math.IsNaN(t.Sigma) {
			return nil, fmt.Errorf("%w: %d (%s) epsilon=%g sigma=%g", ErrBadType, i, t.Name, t.Epsilon, t.Sigma)
		}
	}
	if s.CutLJ <= 0 || s.CutCoul <= 0 {
		return nil, fmt.Errorf("%w: cut_lj=%g cut_coul=%g", ErrBadCutoff, s.CutLJ, s.CutCoul)
	}
	if s.CutLJInner <= 0 || s.CutLJInner >= s.CutLJ {
		return nil, fmt.Errorf("%w: cut_lj_inner=%g must be in (0, %g)", ErrBadCutoff, s.CutLJInner, s.CutLJ)
	}

	mixing := s.Mixing
	if mixing == "" {
		mixing = MixArithmetic
	}
	if mixing != MixArithmetic && mixing != MixGeometric {
		return nil, fmt.Errorf("%w: %q", ErrBadMixing, s.Mixing)
	}

	c := &Coefficients{
		Types:       n,
		LJ1:         square(n),
		LJ2:         square(n),
		LJ3:         square(n),
		LJ4:         square(n),
		Offset:      square(n),
		Epsilon:     square(n),
		Sigma:       square(n),
		SpecialLJ:   s.SpecialLJ,
		SpecialCoul: s.SpecialCoul,
		QQrd2e:      s.QQrd2e,
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.Epsilon[i][j] = math.Sqrt(types[i].Epsilon * types[j].Epsilon)
			if mixing == MixArithmetic {
				c.Sigma[i][j] = 0.5 * (types[i].Sigma + types[j].Sigma)
			} else {
				c.Sigma[i][j] = math.Sqrt(types[i].Sigma * types[j].Sigma)
			}
		}
	}
	for _, o := range s.Overrides {
		if o.I < 0 || o.J < 0 || o.I >= n || o.J >= n || o.Epsilon < 0 || o.Sigma < 0 {
			return nil, fmt.Errorf("%w: (%d,%d) epsilon=%g sigma=%g", ErrBadOverride, o.I, o.J, o.Epsilon, o.Sigma)
		}
		c.Epsilon[o.I][o.J], c.Epsilon[o.J][o.I] = o.Epsilon, o.Epsilon
		c.Sigma[o.I][o.J], c.Sigma[o.J][o.I] = o.Sigma, o.Sigma
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			eps, sig := c.Epsilon[i][j], c.Sigma[i][j]
			c.LJ1[i][j] = 48 * eps * math.Pow(sig, 12)
			c.LJ2[i][j] = 24 * eps * math.Pow(sig, 6)
			c.LJ3[i][j] = 4 * eps * math.Pow(sig, 12)
			c.LJ4[i][j] = 4 * eps * math.Pow(sig, 6)
		}
	}

	c.CutLJInnerSq = s.CutLJInner * s.CutLJInner
	c.CutLJSq = s.CutLJ * s.CutLJ
	c.CutCoulSq = s.CutCoul * s.CutCoul
	c.CutBothSq = math.Max(c.CutLJSq, c.CutCoulSq)
	d := c.CutLJSq - c.CutLJInnerSq
	c.DenomLJ = d * d * d

	c.GEwald = s.GEwald
	if c.GEwald == 0 {
		acc := s.Accuracy
		if acc == 0 {
			acc = DefaultAccuracy
		}
		c.GEwald = GEwald(acc, s.CutCoul)
	}
	c.MixArithmetic = IsArithmetic(c.Epsilon, c.Sigma)
	return c, nil
}

// IsArithmetic reports whether every pair uses the geometric-mean ε and the
// arithmetic-mean σ of its two self interactions. The comparison is exact.
func IsArithmetic(eps, sigma [][]float64) bool {
	for i := range eps {
		for j := range eps[i] {
			if eps[i][j] != math.Sqrt(eps[i][i]*eps[j][j]) {
				return false
			}
			if sigma[i][j] != 0.5*(sigma[i][i]+sigma[j][j]) {
				return false
			}
		}
	}
	return true
}

// Sizes are the base layer sizes passed through to the evaluator.
type Sizes struct {
	Nlocal     int
	Nall       int
	MaxNbors   int
	MaxSpecial int
	CellSize   float64
	GPUSplit   float64
	BlockSize  int
	Screen     io.Writer
}

// Params builds the evaluator parameters for the coefficients.
func (c *Coefficients) Params(s Sizes) crml.Params {
	return crml.Params{
		Types:         c.Types,
		CutBothSq:     c.CutBothSq,
		LJ1:           c.LJ1,
		LJ2:           c.LJ2,
		LJ3:           c.LJ3,
		LJ4:           c.LJ4,
		Offset:        c.Offset,
		SpecialLJ:     c.SpecialLJ,
		SpecialCoul:   c.SpecialCoul,
		Nlocal:        s.Nlocal,
		Nall:          s.Nall,
		MaxNbors:      s.MaxNbors,
		MaxSpecial:    s.MaxSpecial,
		CellSize:      s.CellSize,
		GPUSplit:      s.GPUSplit,
		Screen:        s.Screen,
		CutLJSq:       c.CutLJSq,
		CutCoulSq:     c.CutCoulSq,
		QQrd2e:        c.QQrd2e,
		GEwald:        c.GEwald,
		CutLJInnerSq:  c.CutLJInnerSq,
		DenomLJ:       c.DenomLJ,
		Epsilon:       c.Epsilon,
		Sigma:         c.Sigma,
		MixArithmetic: c.MixArithmetic,
		BlockSize:     s.BlockSize,
	}
}

// Cutoff is the largest interaction distance.
func (c *Coefficients) Cutoff() float64 {
	return math.Sqrt(c.CutBothSq)
}

func square(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
