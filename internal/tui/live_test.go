package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/crmlgpu/internal/md"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestObserverDropsWhenFull(t *testing.T) {
	ch := make(chan md.Thermo, 1)
	obs := Observer(ch)

	obs.OnStep(md.Thermo{Step: 1})
	obs.OnStep(md.Thermo{Step: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Step)
}

func TestModelTracksThermo(t *testing.T) {
	m := newModel("test", 10, make(chan md.Thermo), make(chan doneMsg), nil)

	for i := 0; i < historyLen+5; i++ {
		var cmd tea.Cmd
		m, cmd = update(t, m, thermoMsg(md.Thermo{Step: i, Total: float64(i)}))
		assert.NotNil(t, cmd)
	}

	assert.Equal(t, historyLen+5, m.seen)
	assert.Len(t, m.history, historyLen)
	assert.Equal(t, float64(historyLen+4), m.history[len(m.history)-1])
	assert.Contains(t, m.View(), "total energy")
}

func TestModelQuitWaitsForRun(t *testing.T) {
	cancelled := false
	m := newModel("test", 10, make(chan md.Thermo), make(chan doneMsg), func() { cancelled = true })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, cancelled)
	assert.True(t, m.quitting)
	assert.Nil(t, cmd)

	m, cmd = update(t, m, doneMsg{err: errors.New("md: cancelled")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.finished)
	assert.Contains(t, m.View(), "cancelled")
}

func TestModelFinishedThenQuit(t *testing.T) {
	m := newModel("test", 10, make(chan md.Thermo), make(chan doneMsg), nil)

	m, cmd := update(t, m, doneMsg{result: &md.Result{Metrics: map[string]float64{"energy_drift": 0.5}}})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "energy_drift")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
