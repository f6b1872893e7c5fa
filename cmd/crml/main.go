package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/crmlgpu/internal/config"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
	"github.com/san-kum/crmlgpu/internal/logging"
	"github.com/san-kum/crmlgpu/internal/md"
	"github.com/san-kum/crmlgpu/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	theme      string

	steps       int
	dt          float64
	thermoEvery int
	lattice     int
	seed        int64
	temperature float64
	gpuSplit    float64
	skin        float64
	blockSize   int
	maxNbors    int
	save        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crml",
		Short: "CHARMM lj/coul/long pair evaluator on an emulated device",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viz.SetTheme(theme)
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", "", "run data directory (default from config)")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "preset as group/name (see 'crml presets')")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&theme, "theme", "cyberpunk", "color theme: "+strings.Join(viz.ThemeNames(), ", "))
	pf.Int64Var(&seed, "seed", 1, "random seed for positions and velocities")
	pf.IntVar(&lattice, "lattice", config.DefaultLattice, "atoms per lattice edge")
	pf.Float64Var(&temperature, "temp", config.DefaultTemperature, "initial temperature (K)")
	pf.Float64Var(&gpuSplit, "gpu-split", config.DefaultGPUSplit, "fraction of atoms evaluated on the device")
	pf.IntVar(&blockSize, "block", 0, "threads per block (default from device)")
	pf.IntVar(&maxNbors, "max-nbors", config.DefaultMaxNbors, "neighbor list capacity per atom")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run velocity-Verlet dynamics",
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", false, "save thermo output to the data directory")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run dynamics with a live terminal view",
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().BoolVar(&save, "save", false, "save thermo output to the data directory")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "plot the pair energy and force of two types against distance",
		RunE:  scanPair,
	}
	scanCmd.Flags().IntSliceVar(&scanTypes, "types", []int{0, 0}, "type pair i,j")
	scanCmd.Flags().Float64SliceVar(&scanCharges, "charges", []float64{0, 0}, "charges qi,qj")
	scanCmd.Flags().Float64Var(&scanMin, "rmin", 2.5, "smallest distance (Å)")
	scanCmd.Flags().Float64Var(&scanMax, "rmax", 0, "largest distance (Å, default the cutoff)")
	scanCmd.Flags().IntVar(&scanPoints, "points", 80, "number of distances")
	scanCmd.Flags().IntVar(&scanOrder, "order", 0, "bond separation (0 none, 1..3 for 1-2..1-4)")
	scanCmd.Flags().StringVar(&scanField, "field", "total", "evdwl, ecoul, total or force")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "compare both kernel paths with the host reference",
		RunE:  verifyKernels,
	}
	verifyCmd.Flags().Float64Var(&verifyTol, "tol", 1e-4, "largest relative force error accepted")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time force evaluation on each kernel path",
		RunE:  benchKernels,
	}
	benchCmd.Flags().IntVar(&benchSteps, "steps", 20, "evaluations per path")
	benchCmd.Flags().BoolVar(&benchEnergy, "energy", true, "accumulate energies and virial")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "show device, coefficients and memory use",
		RunE:  showInfo,
	}
	infoCmd.Flags().BoolVar(&infoMetrics, "metrics", false, "print device metrics in Prometheus text format")

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot thermo output of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotFields, "fields", []string{"total", "temperature", "pressure"}, "thermo columns: "+strings.Join(viz.ThermoFields, ", "))

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a saved run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, liveCmd, scanCmd, verifyCmd, benchCmd, infoCmd, presetsCmd, listCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (fs)")
	cmd.Flags().IntVar(&thermoEvery, "thermo", config.DefaultThermoEvery, "steps between thermo output")
	cmd.Flags().Float64Var(&skin, "skin", config.DefaultSkin, "neighbor skin (Å), 0 rebuilds every step")
}

// loadConfig starts from the preset, then the config file, then applies
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		group, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be group/name, got %q", preset)
		}
		p := config.GetPreset(group, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available in %s: %v)", preset, group, config.ListPresets(group))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.System.Seed = seed
	}
	if flags.Changed("lattice") {
		cfg.System.Lattice = lattice
	}
	if flags.Changed("temp") {
		cfg.System.Temperature = temperature
	}
	if flags.Changed("gpu-split") {
		cfg.Run.GPUSplit = gpuSplit
	}
	if flags.Changed("block") {
		cfg.Device.BlockSize = blockSize
	}
	if flags.Changed("max-nbors") {
		cfg.Run.MaxNbors = maxNbors
	}
	if flags.Changed("steps") {
		cfg.Run.Steps = steps
	}
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("thermo") {
		cfg.Run.ThermoEvery = thermoEvery
	}
	if flags.Changed("skin") {
		cfg.Run.Skin = skin
	}
	if flags.Changed("save") {
		cfg.Run.Save = save
	}
	if flags.Changed("data") {
		cfg.Run.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session holds what every device command needs.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	dev    *device.Device
	coeffs *forcefield.Coefficients
	sys    *md.System
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	coeffs, err := forcefield.Derive(cfg.Types, cfg.Pair)
	if err != nil {
		return nil, err
	}

	sys, err := md.BuildLattice(cfg.System, cfg.Types)
	if err != nil {
		return nil, err
	}

	dev, err := device.New(cfg.Device, device.WithLogger(log))
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, log: log, dev: dev, coeffs: coeffs, sys: sys}, nil
}

func (s *session) options() md.EvaluatorOptions {
	return md.EvaluatorOptions{
		MaxNbors:  s.cfg.Run.MaxNbors,
		Skin:      s.cfg.Run.Skin,
		CellSize:  s.cfg.Run.CellSize,
		GPUSplit:  s.cfg.Run.GPUSplit,
		BlockSize: s.cfg.Device.BlockSize,
	}
}

func (s *session) close() {
	if err := s.dev.Close(); err != nil {
		s.log.Warn("device close", zap.Error(err))
	}
	_ = s.log.Sync()
}
