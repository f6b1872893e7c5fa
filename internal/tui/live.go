package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/crmlgpu/internal/md"
	"github.com/san-kum/crmlgpu/internal/viz"
)

const historyLen = 120

// RunFunc runs a simulation, reporting every thermo sample to obs.
type RunFunc func(ctx context.Context, obs md.Observer) (*md.Result, error)

type thermoMsg md.Thermo

type doneMsg struct {
	result *md.Result
	err    error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the live view of a running simulation.
type Model struct {
	title   string
	steps   int
	updates <-chan md.Thermo
	done    <-chan doneMsg
	cancel  context.CancelFunc

	last    md.Thermo
	seen    int
	history []float64
	frame   int
	started time.Time

	result   *md.Result
	err      error
	finished bool
	quitting bool

	width int
}

// Observer forwards thermo samples to ch without blocking the run. Samples
// arriving while the view is behind are dropped.
func Observer(ch chan<- md.Thermo) md.Observer {
	return md.ObserverFunc(func(th md.Thermo) {
		select {
		case ch <- th:
		default:
		}
	})
}

func newModel(title string, steps int, updates <-chan md.Thermo, done <-chan doneMsg, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		steps:   steps,
		updates: updates,
		done:    done,
		cancel:  cancel,
		history: make([]float64, 0, historyLen),
		started: time.Now(),
		width:   80,
	}
}

func waitThermo(ch <-chan md.Thermo) tea.Cmd {
	return func() tea.Msg {
		th, ok := <-ch
		if !ok {
			return nil
		}
		return thermoMsg(th)
	}
}

func waitDone(ch <-chan doneMsg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitThermo(m.updates), waitDone(m.done), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			if m.finished {
				return m, tea.Quit
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case thermoMsg:
		m.observe(md.Thermo(msg))
		return m, waitThermo(m.updates)
	case doneMsg:
		m.result, m.err = msg.result, msg.err
		m.finished = true
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		m.frame++
		if m.finished {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) observe(th md.Thermo) {
	m.last = th
	m.seen++
	if len(m.history) == historyLen {
		m.history = m.history[1:]
	}
	m.history = append(m.history, th.Total)
}

func (m Model) View() string {
	var b strings.Builder

	status := viz.StatusRunning.Render(viz.AnimatedSpinner(m.frame) + " running")
	switch {
	case m.finished && m.err != nil:
		status = viz.StatusFailed.Render("✗ " + m.err.Error())
	case m.finished:
		status = viz.StatusDone.Render("✓ done")
	case m.quitting:
		status = viz.StatusFailed.Render("stopping")
	}
	fmt.Fprintf(&b, "\n  %s  %s\n", viz.Title.Render(m.title), status)

	progress := 0.0
	if m.steps > 0 {
		progress = float64(m.last.Step) / float64(m.steps)
	}
	fmt.Fprintf(&b, "  %s %s\n\n", viz.ProgressBar(progress, 36),
		viz.Subtle.Render(fmt.Sprintf("step %d/%d  %s", m.last.Step, m.steps, time.Since(m.started).Truncate(time.Millisecond))))

	rows := [][2]string{
		{"evdwl", fmt.Sprintf("%.4f", m.last.EVdwl)},
		{"ecoul", fmt.Sprintf("%.4f", m.last.ECoul)},
		{"kinetic", fmt.Sprintf("%.4f", m.last.Kinetic)},
		{"total", fmt.Sprintf("%.4f", m.last.Total)},
		{"temp", fmt.Sprintf("%.2f K", m.last.Temperature)},
		{"press", fmt.Sprintf("%.2f atm", m.last.Pressure)},
	}
	for _, r := range rows {
		b.WriteString("  " + viz.MetricLabel.Render(fmt.Sprintf("%-9s", r[0])) + viz.MetricValue.Render(r[1]) + "\n")
	}

	if len(m.history) > 1 {
		w := min(max(m.width-16, 20), historyLen)
		b.WriteString("\n" + asciigraph.Plot(m.history,
			asciigraph.Height(6),
			asciigraph.Width(w),
			asciigraph.Caption("total energy"),
		) + "\n")
	}

	if m.finished && m.result != nil {
		b.WriteString("\n" + viz.RenderMetrics(m.result.Metrics))
	}

	b.WriteString("\n" + viz.KeyHint.Render("  q quit") + "\n")
	return b.String()
}

// Run drives fn under a live view until the run finishes and the user quits,
// or until the user quits and the cancelled run returns.
func Run(ctx context.Context, title string, steps int, fn RunFunc) (*md.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan md.Thermo, 64)
	done := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx, Observer(updates))
		done <- doneMsg{result: res, err: err}
	}()

	final, err := tea.NewProgram(newModel(title, steps, updates, done, cancel), tea.WithAltScreen()).Run()
	if err != nil {
		cancel()
		<-done
		return nil, err
	}

	m := final.(Model)
	return m.result, m.err
}
