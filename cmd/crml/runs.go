package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/crmlgpu/internal/config"
	"github.com/san-kum/crmlgpu/internal/storage"
	"github.com/san-kum/crmlgpu/internal/viz"
)

var plotFields []string

func listPresets(cmd *cobra.Command, args []string) error {
	groups := config.ListGroups()
	if len(args) == 1 {
		if config.ListPresets(args[0]) == nil {
			return fmt.Errorf("no preset group %q (available: %v)", args[0], groups)
		}
		groups = args
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tATOMS\tTYPES\tSTEPS\tDT\tMIXING")
	for _, group := range groups {
		for _, name := range config.ListPresets(group) {
			cfg := config.GetPreset(group, name)
			fmt.Fprintf(w, "%s/%s\t%d\t%d\t%d\t%.2f\t%s\n",
				group, name, cfg.Atoms(), len(cfg.Types), cfg.Run.Steps, cfg.Run.Dt, cfg.Pair.Mixing)
		}
	}
	return w.Flush()
}

// runStore resolves the data directory from --data, then the config.
func runStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return storage.New(cfg.Run.DataDir), nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := runStore(cmd)
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tATOMS\tSTEPS\tDT\tPATH\tPRECISION")

	for _, run := range runs {
		name := run.Preset
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
			run.ID,
			name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Atoms,
			run.Steps,
			run.Dt,
			run.Path,
			run.Precision,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := runStore(cmd)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	thermo, err := st.LoadThermo(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("atoms: %d  kernel: %s  precision: %s\n", meta.Atoms, meta.Path, meta.Precision)
	fmt.Printf("samples: %d\n\n", len(thermo))

	for _, field := range plotFields {
		graph, err := viz.PlotThermo(thermo, field, 80, 10)
		if err != nil {
			return err
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := runStore(cmd)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	thermo, err := st.LoadThermo(runID)
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, thermo)
}
