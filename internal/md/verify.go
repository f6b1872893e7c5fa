package md

import (
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/atom"
	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
)

// Comparison is one kernel path measured against the host reference.
type Comparison struct {
	Path          crml.Path `json:"path"`
	MaxForceError float64   `json:"max_force_error"`
	RelForceError float64   `json:"rel_force_error"`
	EVdwlError    float64   `json:"evdwl_error"`
	ECoulError    float64   `json:"ecoul_error"`
	VirialError   float64   `json:"virial_error"`
}

type VerifyReport struct {
	Atoms      int                `json:"atoms"`
	Reference  *forcefield.Result `json:"-"`
	EVdwl      float64            `json:"evdwl"`
	ECoul      float64            `json:"ecoul"`
	Paths      []Comparison       `json:"paths"`
	PathsAgree float64            `json:"paths_agree"`
}

// Verify evaluates sys on both kernel paths where available and compares
// them with the double precision host reference. The full-table kernel
// always runs; the shared-types kernel runs when the mixing rule allows it.
func Verify[N, A device.Float](dev *device.Device, coeffs *forcefield.Coefficients, sys *System, opts EvaluatorOptions, log *zap.Logger) (*VerifyReport, error) {
	ref := coeffs.Reference(sys.Pos, sys.Types, sys.Charge, sys.N(), sys.Specials)
	report := &VerifyReport{Atoms: sys.N(), Reference: ref, EVdwl: ref.EVdwl, ECoul: ref.ECoul}

	blocks := []int{crml.SharedTypesMinBlock / 2}
	if coeffs.MixArithmetic {
		fast := max(opts.BlockSize, dev.BlockSize(), crml.SharedTypesMinBlock)
		blocks = append([]int{fast}, blocks...)
	}

	var answers []*atom.Answer
	for _, bs := range blocks {
		o := opts
		o.BlockSize = bs
		o.GPUSplit = 1
		o.Screen = nil
		e, err := NewEvaluator[N, A](dev, coeffs, sys, o, log)
		if err != nil {
			return nil, err
		}
		ans, err := e.Compute(sys.Pos, true, true)
		path := e.Memory().Path()
		e.Close()
		if err != nil {
			return nil, err
		}
		report.Paths = append(report.Paths, compare(path, ref, ans))
		answers = append(answers, ans)
	}
	if len(answers) == 2 {
		report.PathsAgree = forceDiff(answers[0].Forces, answers[1].Forces)
	}
	return report, nil
}

func compare(path crml.Path, ref *forcefield.Result, ans *atom.Answer) Comparison {
	c := Comparison{
		Path:          path,
		MaxForceError: forceDiff(ref.Forces, ans.Forces),
		EVdwlError:    math.Abs(ref.EVdwl - ans.EVdwl),
		ECoulError:    math.Abs(ref.ECoul - ans.ECoul),
	}
	if scale := maxNorm(ref.Forces); scale > 0 {
		c.RelForceError = c.MaxForceError / scale
	}
	for k := range ref.Virial {
		c.VirialError = math.Max(c.VirialError, math.Abs(ref.Virial[k]-ans.Virial[k]))
	}
	return c
}

func forceDiff(a, b [][3]float64) float64 {
	m := 0.0
	for i := range a {
		for k := 0; k < 3; k++ {
			m = math.Max(m, math.Abs(a[i][k]-b[i][k]))
		}
	}
	return m
}
