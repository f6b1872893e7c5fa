package md

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/atom"
)

// StepError reports a step whose state could not be continued.
type StepError struct {
	Step    int
	Time    float64
	Message string
}

func (e StepError) Error() string {
	return fmt.Sprintf("md: step %d (t=%.1f fs): %s", e.Step, e.Time, e.Message)
}

type Driver struct {
	force     ForceComputer
	metrics   []Metric
	observers []Observer
	log       *zap.Logger
}

func New(force ForceComputer, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{force: force, log: log.Named("md")}
}

func (d *Driver) AddMetric(m Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o Observer) { d.observers = append(d.observers, o) }

func (d *Driver) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", cfg.Steps)
	}
	return nil
}

// Run integrates sys in place with velocity Verlet. Thermo output is taken
// at step 0, every ThermoEvery steps and at the last step. Cancellation is
// checked between steps; the partial result is returned with ctx.Err().
func (d *Driver) Run(ctx context.Context, sys *System, cfg Config) (*Result, error) {
	if err := d.validateConfig(cfg); err != nil {
		return nil, err
	}
	every := cfg.ThermoEvery
	if every <= 0 {
		every = 1
	}

	result := &Result{
		Thermo:  make([]Thermo, 0, cfg.Steps/every+2),
		Metrics: make(map[string]float64),
	}
	for _, m := range d.metrics {
		m.Reset()
	}

	ans, err := d.force.Compute(sys.Pos, true, true)
	if err != nil {
		return nil, err
	}
	d.record(result, sys, ans, 0, 0)
	d.log.Info("run started",
		zap.Int("atoms", sys.N()),
		zap.Int("steps", cfg.Steps),
		zap.Float64("dt", cfg.Dt),
		zap.Float64("temperature", result.Thermo[0].Temperature))

	dt := cfg.Dt
	halfDt := 0.5 * dt * Ftm2v
	for step := 1; step <= cfg.Steps; step++ {
		select {
		case <-ctx.Done():
			d.finish(result)
			return result, ctx.Err()
		default:
		}

		for i := range sys.Pos {
			inv := halfDt / sys.Mass[i]
			for k := 0; k < 3; k++ {
				sys.Vel[i][k] += ans.Forces[i][k] * inv
				sys.Pos[i][k] += dt * sys.Vel[i][k]
			}
		}

		thermo := step%every == 0 || step == cfg.Steps
		ans, err = d.force.Compute(sys.Pos, thermo, thermo)
		if err != nil {
			d.finish(result)
			return result, fmt.Errorf("md: step %d: %w", step, err)
		}

		for i := range sys.Vel {
			inv := halfDt / sys.Mass[i]
			for k := 0; k < 3; k++ {
				sys.Vel[i][k] += ans.Forces[i][k] * inv
			}
		}
		result.StepsTaken = step

		if !finite(sys) {
			d.finish(result)
			return result, StepError{Step: step, Time: float64(step) * dt, Message: "invalid state (NaN/Inf)"}
		}
		if thermo {
			d.record(result, sys, ans, step, float64(step)*dt)
		}
	}

	d.finish(result)
	d.log.Info("run finished",
		zap.Int("steps", result.StepsTaken),
		zap.Float64("energy_drift", result.EnergyDrift))
	return result, nil
}

func (d *Driver) record(result *Result, sys *System, ans *atom.Answer, step int, t float64) {
	ke := sys.Kinetic()
	pe := ans.Energy()
	th := Thermo{
		Step:        step,
		Time:        t,
		EVdwl:       ans.EVdwl,
		ECoul:       ans.ECoul,
		Potential:   pe,
		Kinetic:     ke,
		Total:       pe + ke,
		Temperature: sys.Temperature(),
		Pressure:    sys.Pressure(ans.Virial),
		Virial:      ans.Virial,
		MaxForce:    maxNorm(ans.Forces),
	}
	result.Thermo = append(result.Thermo, th)
	for _, m := range d.metrics {
		m.Observe(th)
	}
	for _, obs := range d.observers {
		obs.OnStep(th)
	}
}

func (d *Driver) finish(result *Result) {
	if n := len(result.Thermo); n > 1 {
		e0 := result.Thermo[0].Total
		if e0 != 0 {
			result.EnergyDrift = math.Abs(result.Thermo[n-1].Total-e0) / math.Abs(e0)
		}
	}
	for _, m := range d.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func finite(sys *System) bool {
	for i := range sys.Pos {
		for k := 0; k < 3; k++ {
			if math.IsNaN(sys.Pos[i][k]) || math.IsInf(sys.Pos[i][k], 0) ||
				math.IsNaN(sys.Vel[i][k]) || math.IsInf(sys.Vel[i][k], 0) {
				return false
			}
		}
	}
	return true
}

func maxNorm(forces [][3]float64) float64 {
	m := 0.0
	for _, f := range forces {
		m = math.Max(m, math.Sqrt(f[0]*f[0]+f[1]*f[1]+f[2]*f[2]))
	}
	return m
}
