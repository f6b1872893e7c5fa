package viz

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/crmlgpu/internal/md"
)

var ErrUnknownField = errors.New("viz: unknown field")

var ErrNoData = errors.New("viz: no data to plot")

// ThermoFields lists the column names accepted by ThermoField and PlotThermo.
var ThermoFields = []string{
	"evdwl", "ecoul", "potential", "kinetic", "total", "temperature", "pressure", "max_force",
}

func ThermoField(th md.Thermo, name string) (float64, bool) {
	switch name {
	case "evdwl":
		return th.EVdwl, true
	case "ecoul":
		return th.ECoul, true
	case "potential":
		return th.Potential, true
	case "kinetic":
		return th.Kinetic, true
	case "total":
		return th.Total, true
	case "temperature":
		return th.Temperature, true
	case "pressure":
		return th.Pressure, true
	case "max_force":
		return th.MaxForce, true
	}
	return 0, false
}

// WriteThermo writes one aligned row per thermo sample.
func WriteThermo(out io.Writer, rows []md.Thermo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "STEP\tTIME\tEVDWL\tECOUL\tKE\tTOTAL\tTEMP\tPRESS\t")
	for _, th := range rows {
		fmt.Fprintf(w, "%d\t%.3f\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\t%.2f\t\n",
			th.Step, th.Time, th.EVdwl, th.ECoul, th.Kinetic, th.Total, th.Temperature, th.Pressure)
	}
	return w.Flush()
}

// RenderMetrics renders metric values sorted by name.
func RenderMetrics(metrics map[string]float64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(MetricLabel.Render(fmt.Sprintf("  %-16s", name)))
		b.WriteString(MetricValue.Render(fmt.Sprintf("%.6g", metrics[name])))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderVerify renders the kernel-versus-reference comparison. Paths whose
// relative force error exceeds tol are flagged.
func RenderVerify(r *md.VerifyReport, tol float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d atoms  evdwl %.6f  ecoul %.6f\n",
		MetricLabel.Render("reference"), r.Atoms, r.EVdwl, r.ECoul)

	for _, c := range r.Paths {
		status := StatusDone.Render("ok")
		if c.RelForceError > tol {
			status = StatusFailed.Render("FAIL")
		}
		fmt.Fprintf(&b, "  %-8s %s  force %.3e (rel %.3e)  evdwl %.3e  ecoul %.3e  virial %.3e\n",
			c.Path, status, c.MaxForceError, c.RelForceError, c.EVdwlError, c.ECoulError, c.VirialError)
	}
	if len(r.Paths) > 1 {
		fmt.Fprintf(&b, "  %s %.3e\n", MetricLabel.Render("paths agree to"), r.PathsAgree)
	}
	return BoxWithTitle("verify", strings.TrimRight(b.String(), "\n"))
}

func RenderBench(results []md.BenchResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "  %-8s %d atoms x %d steps  %v/step  kernel %v  %s atom-steps/s  %s\n",
			r.Path, r.Atoms, r.Steps, r.PerStep, r.Kernel,
			MetricValue.Render(fmt.Sprintf("%.3g", r.AtomSteps)),
			Subtle.Render(FormatBytes(r.DeviceBytes)))
	}
	return BoxWithTitle("bench", strings.TrimRight(b.String(), "\n"))
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// PlotCurve plots one column of a pair scan: evdwl, ecoul, total or force.
func PlotCurve(points []md.CurvePoint, field string, width, height int) (string, error) {
	if len(points) == 0 {
		return "", ErrNoData
	}
	data := make([]float64, len(points))
	for i, p := range points {
		switch field {
		case "evdwl":
			data[i] = p.EVdwl
		case "ecoul":
			data[i] = p.ECoul
		case "total":
			data[i] = p.EVdwl + p.ECoul
		case "force":
			data[i] = p.Force
		default:
			return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	caption := fmt.Sprintf("%s vs r (%.2f..%.2f Å)", field, points[0].R, points[len(points)-1].R)
	return plot(data, width, height, caption), nil
}

func PlotThermo(rows []md.Thermo, field string, width, height int) (string, error) {
	if len(rows) == 0 {
		return "", ErrNoData
	}
	data := make([]float64, len(rows))
	for i, th := range rows {
		v, ok := ThermoField(th, field)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		data[i] = v
	}
	return plot(data, width, height, field+" vs step"), nil
}

func plot(data []float64, width, height int, caption string) string {
	if len(data) == 1 {
		data = []float64{data[0], data[0]}
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
