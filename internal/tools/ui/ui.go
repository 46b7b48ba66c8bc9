package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

// ErrInterrupted is returned when the operator aborts a running task.
var ErrInterrupted = errors.New("interrupted")

// Task runs under the spinner and returns the summary lines shown when it finishes.
type Task func(context.Context) ([]string, error)

type tickMsg struct{}

type doneMsg struct {
	lines []string
	err   error
}

type model struct {
	title   string
	started time.Time
	frame   int
	cancel  context.CancelFunc
	task    tea.Cmd

	done  bool
	lines []string
	err   error
}

func newModel(ctx context.Context, title string, fn Task) model {
	ctx, cancel := context.WithCancel(ctx)
	m := model{title: title, started: time.Now(), cancel: cancel}
	m.task = func() tea.Msg {
		lines, err := fn(ctx)
		return doneMsg{lines: lines, err: err}
	}
	return m
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.task, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			if !m.done {
				m.err = ErrInterrupted
				m.done = true
			}
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		if m.done {
			return m, nil
		}
		m.done = true
		m.lines = msg.lines
		m.err = msg.err
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if !m.done {
		elapsed := time.Since(m.started).Round(time.Second)
		return fmt.Sprintf("%s %s %s\n", spinnerFrames[m.frame], titleStyle.Render(m.title), detailStyle.Render(elapsed.String()))
	}
	var b strings.Builder
	if m.err != nil {
		b.WriteString(failStyle.Render("✗ " + m.title))
		b.WriteString("\n")
		b.WriteString(failStyle.Render(m.err.Error()))
	} else {
		b.WriteString(okStyle.Render("✓ " + m.title))
	}
	for _, line := range m.lines {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(line))
	}
	return boxStyle.Render(b.String()) + "\n"
}

// Run shows a spinner on out while fn runs, then a result box with its summary lines.
// Cancelling ctx or pressing ctrl+c cancels fn.
func Run(ctx context.Context, in io.Reader, out io.Writer, title string, fn Task) ([]string, error) {
	m := newModel(ctx, title, fn)
	defer m.cancel()
	final, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out)).Run()
	if fm, ok := final.(model); ok && fm.done {
		return fm.lines, fm.err
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", title, err)
	}
	return nil, ErrInterrupted
}
