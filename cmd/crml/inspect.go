package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/md"
	"github.com/san-kum/crmlgpu/internal/viz"
)

var (
	scanTypes   []int
	scanCharges []float64
	scanMin     float64
	scanMax     float64
	scanPoints  int
	scanOrder   int
	scanField   string

	verifyTol   float64
	benchSteps  int
	benchEnergy bool
	infoMetrics bool
)

func scanPair(cmd *cobra.Command, args []string) error {
	if len(scanTypes) != 2 || len(scanCharges) != 2 {
		return fmt.Errorf("--types and --charges take exactly two values")
	}
	if scanPoints < 2 {
		return fmt.Errorf("--points must be at least 2, got %d", scanPoints)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	rmax := scanMax
	if rmax <= 0 {
		rmax = s.coeffs.Cutoff()
	}
	if scanMin <= 0 || scanMin >= rmax {
		return fmt.Errorf("--rmin must be in (0, %g), got %g", rmax, scanMin)
	}

	rs := make([]float64, scanPoints)
	step := (rmax - scanMin) / float64(scanPoints)
	for i := range rs {
		rs[i] = scanMin + float64(i)*step
	}

	spec := md.PairSpec{
		TypeI:   scanTypes[0],
		TypeJ:   scanTypes[1],
		ChargeI: scanCharges[0],
		ChargeJ: scanCharges[1],
		Order:   scanOrder,
	}
	points, err := md.PairCurve[crml.Numtyp, crml.Acctyp](s.dev, s.coeffs, spec, rs, s.cfg.Device.BlockSize, s.log)
	if err != nil {
		return err
	}

	graph, err := viz.PlotCurve(points, scanField, 80, 15)
	if err != nil {
		return err
	}
	fmt.Println(graph)

	best := points[0]
	for _, p := range points {
		if p.Energy() < best.Energy() {
			best = p
		}
	}
	fmt.Printf("\nminimum energy %.6f kcal/mol at r=%.3f Å\n", best.Energy(), best.R)
	return nil
}

func verifyKernels(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	report, err := md.Verify[crml.Numtyp, crml.Acctyp](s.dev, s.coeffs, s.sys, s.options(), s.log)
	if err != nil {
		return err
	}
	fmt.Println(viz.RenderVerify(report, verifyTol))

	for _, c := range report.Paths {
		if c.RelForceError > verifyTol {
			return fmt.Errorf("%s kernel relative force error %.3e exceeds %.3e", c.Path, c.RelForceError, verifyTol)
		}
	}
	return nil
}

// benchBlocks returns one block size per kernel path available for the
// session's types.
func (s *session) benchBlocks() []int {
	blocks := []int{crml.SharedTypesMinBlock / 2}
	if s.coeffs.MixArithmetic && s.coeffs.Types <= crml.MaxBioSharedTypes {
		fast := max(s.cfg.Device.BlockSize, crml.SharedTypesMinBlock)
		blocks = append([]int{fast}, blocks...)
	}
	return blocks
}

func benchKernels(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var results []md.BenchResult
	for _, bs := range s.benchBlocks() {
		opts := s.options()
		opts.BlockSize = bs
		e, err := md.NewEvaluator[crml.Numtyp, crml.Acctyp](s.dev, s.coeffs, s.sys, opts, s.log)
		if err != nil {
			return err
		}
		r, err := md.Bench(ctx, e, s.sys.Pos, benchSteps, benchEnergy, benchEnergy)
		e.Close()
		if err != nil {
			return err
		}
		results = append(results, *r)
	}

	fmt.Println(viz.RenderBench(results))
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	opts := s.options()
	opts.Screen = os.Stdout
	e, err := md.NewEvaluator[crml.Numtyp, crml.Acctyp](s.dev, s.coeffs, s.sys, opts, s.log)
	if err != nil {
		return err
	}
	defer e.Close()
	if _, err := e.Compute(s.sys.Pos, true, true); err != nil {
		return err
	}

	props := s.dev.Properties()
	mem := e.Memory()
	c := s.coeffs

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "device\t%s\n", props.Name)
	fmt.Fprintf(w, "memory\t%s used of %s\n", viz.FormatBytes(s.dev.Used()), viz.FormatBytes(props.TotalMem))
	fmt.Fprintf(w, "block size\t%d (max %d)\n", props.BlockSize, props.MaxBlockSize)
	fmt.Fprintf(w, "workers\t%d\n", props.Workers)
	fmt.Fprintf(w, "precision\t%s\n", crml.Precision)
	fmt.Fprintf(w, "pair style\t%s\n", crml.PairName)
	fmt.Fprintf(w, "kernel\t%s (%s)\n", mem.Path(), mem.Path().Kernel())
	fmt.Fprintf(w, "types\t%d (arithmetic mixing: %v)\n", c.Types, c.MixArithmetic)
	fmt.Fprintf(w, "cutoffs\tlj %.3f-%.3f  coul %.3f Å\n", math.Sqrt(c.CutLJInnerSq), math.Sqrt(c.CutLJSq), math.Sqrt(c.CutCoulSq))
	fmt.Fprintf(w, "g_ewald\t%.6f /Å\n", c.GEwald)
	fmt.Fprintf(w, "special lj\t%v\n", c.SpecialLJ[1:])
	fmt.Fprintf(w, "special coul\t%v\n", c.SpecialCoul[1:])
	fmt.Fprintf(w, "coefficient tables\t%s\n", viz.FormatBytes(mem.MaxBytes()))
	fmt.Fprintf(w, "per atom\t%d B\n", mem.BytesPerAtom(s.cfg.Run.MaxNbors))
	fmt.Fprintf(w, "host memory\t%s\n", viz.FormatBytes(int64(mem.HostMemoryUsage())))
	fmt.Fprintf(w, "atoms\t%d (device rows %d, neighbor builds %d)\n", s.sys.N(), e.DeviceRows(), e.Builds())
	if err := w.Flush(); err != nil {
		return err
	}

	if !infoMetrics {
		return nil
	}
	families, err := s.dev.Registry().Gather()
	if err != nil {
		return err
	}
	fmt.Println()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
