package metrics

import "github.com/san-kum/crmlgpu/internal/md"

type MeanPressure struct {
	sum     float64
	samples int
}

func NewMeanPressure() *MeanPressure { return &MeanPressure{} }

func (p *MeanPressure) Name() string { return "mean_pressure" }

func (p *MeanPressure) Observe(th md.Thermo) {
	p.sum += th.Pressure
	p.samples++
}

func (p *MeanPressure) Value() float64 {
	if p.samples == 0 {
		return 0
	}
	return p.sum / float64(p.samples)
}

func (p *MeanPressure) Reset() {
	p.sum = 0
	p.samples = 0
}

// Standard returns the metrics a run reports by default.
func Standard(atoms int, forceThreshold float64) []md.Metric {
	return []md.Metric{
		NewEnergy(),
		NewEnergyDrift(atoms),
		NewMeanPressure(),
		NewMaxForce(),
		NewStability(forceThreshold),
	}
}
