package md

import (
	"context"
	"time"

	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
)

type BenchResult struct {
	Path        crml.Path     `json:"path"`
	Atoms       int           `json:"atoms"`
	Steps       int           `json:"steps"`
	Wall        time.Duration `json:"wall"`
	Kernel      time.Duration `json:"kernel"`
	PerStep     time.Duration `json:"per_step"`
	AtomSteps   float64       `json:"atom_steps_per_second"`
	DeviceBytes int64         `json:"device_bytes"`
}

// Bench repeats force evaluation of fixed positions. Kernel time comes from
// the pair timer; wall time includes uploads and answer readback.
func Bench[N, A device.Float](ctx context.Context, e *Evaluator[N, A], pos [][3]float64, steps int, eflag, vflag bool) (*BenchResult, error) {
	mem := e.Memory()
	mem.TimePair.Zero()

	start := time.Now()
	done := 0
	for ; done < steps; done++ {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := e.Compute(pos, eflag, vflag); err != nil {
			return nil, err
		}
	}
	wall := time.Since(start)

	r := &BenchResult{
		Path:        mem.Path(),
		Atoms:       len(pos),
		Steps:       done,
		Wall:        wall,
		Kernel:      mem.TimePair.Time(),
		DeviceBytes: e.dev.Used(),
	}
	if done > 0 {
		r.PerStep = wall / time.Duration(done)
	}
	if wall > 0 {
		r.AtomSteps = float64(done*len(pos)) / wall.Seconds()
	}
	return r, ctx.Err()
}
