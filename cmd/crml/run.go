package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/md"
	"github.com/san-kum/crmlgpu/internal/metrics"
	"github.com/san-kum/crmlgpu/internal/storage"
	"github.com/san-kum/crmlgpu/internal/tui"
	"github.com/san-kum/crmlgpu/internal/viz"
)

// stabilityForce is the per-atom force (kcal/mol/Å) above which a step
// counts as unstable.
const stabilityForce = 500.0

// prepareRun builds the evaluator and driver for a dynamics run.
func prepareRun(s *session) (*crml.Default, *md.Driver, func(), error) {
	opts := s.options()
	opts.Screen = os.Stderr
	e, err := md.NewEvaluator[crml.Numtyp, crml.Acctyp](s.dev, s.coeffs, s.sys, opts, s.log)
	if err != nil {
		return nil, nil, nil, err
	}

	driver := md.New(e, s.log)
	for _, m := range metrics.Standard(s.sys.N(), stabilityForce) {
		driver.AddMetric(m)
	}
	return e.Memory(), driver, e.Close, nil
}

func (s *session) runConfig() md.Config {
	return md.Config{
		Steps:       s.cfg.Run.Steps,
		Dt:          s.cfg.Run.Dt,
		ThermoEvery: s.cfg.Run.ThermoEvery,
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	mem, driver, closeEval, err := prepareRun(s)
	if err != nil {
		return err
	}
	defer closeEval()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %d atoms, %d steps on the %s kernel (%s precision)...\n",
		s.sys.N(), s.cfg.Run.Steps, mem.Path(), crml.Precision)
	start := time.Now()

	result, err := driver.Run(ctx, s.sys, s.runConfig())
	if result != nil && len(result.Thermo) > 0 {
		if werr := viz.WriteThermo(os.Stdout, result.Thermo); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("\ncompleted in %v\n", time.Since(start).Truncate(time.Millisecond))
	fmt.Println("\nmetrics:")
	fmt.Print(viz.RenderMetrics(result.Metrics))

	return saveRun(s, mem, result)
}

func runLive(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	mem, driver, closeEval, err := prepareRun(s)
	if err != nil {
		return err
	}
	defer closeEval()

	title := fmt.Sprintf("%d atoms · %s kernel · %s", s.sys.N(), mem.Path(), crml.Precision)
	result, err := tui.Run(context.Background(), title, s.cfg.Run.Steps,
		func(ctx context.Context, obs md.Observer) (*md.Result, error) {
			driver.AddObserver(obs)
			return driver.Run(ctx, s.sys, s.runConfig())
		})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if result == nil {
		return err
	}
	return saveRun(s, mem, result)
}

func saveRun(s *session, mem *crml.Default, result *md.Result) error {
	if !s.cfg.Run.Save {
		return nil
	}

	st := storage.New(s.cfg.Run.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	runID, err := st.Save(storage.RunMetadata{
		Preset:    preset,
		Seed:      s.cfg.System.Seed,
		Dt:        s.cfg.Run.Dt,
		Steps:     result.StepsTaken,
		Atoms:     s.sys.N(),
		Types:     len(s.cfg.Types),
		Path:      mem.Path().String(),
		Precision: crml.Precision,
		Metrics:   result.Metrics,
	}, result.Thermo)
	if err != nil {
		return err
	}

	s.log.Info("run saved", zap.String("id", runID), zap.String("dir", s.cfg.Run.DataDir))
	fmt.Printf("run id: %s\n", runID)
	return nil
}
