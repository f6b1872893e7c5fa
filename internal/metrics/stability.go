package metrics

import (
	"math"

	"github.com/san-kum/crmlgpu/internal/md"
)

// Stability is the fraction of steps whose largest atomic force stayed
// below the threshold.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(th md.Thermo) {
	s.samples++
	if th.MaxForce > s.threshold || math.IsNaN(th.MaxForce) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// MaxForce is the largest atomic force seen.
type MaxForce struct {
	max float64
}

func NewMaxForce() *MaxForce { return &MaxForce{} }

func (m *MaxForce) Name() string { return "max_force" }

func (m *MaxForce) Observe(th md.Thermo) {
	m.max = math.Max(m.max, th.MaxForce)
}

func (m *MaxForce) Value() float64 { return m.max }
func (m *MaxForce) Reset()         { m.max = 0 }
