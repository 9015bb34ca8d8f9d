package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type tickMsg struct{}

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
	run     func() tea.Msg
}

func newModel(ctx context.Context, cancel context.CancelFunc, title string, fn func(context.Context) ([]string, error)) model {
	return model{
		title:  title,
		cancel: cancel,
		run: func() tea.Msg {
			details, err := fn(ctx)
			return doneMsg{details: details, err: err}
		},
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.run, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancel()
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	return render(m.title, m.frame, m.done, m.details, m.err)
}

func render(title string, frame int, done bool, details []string, err error) string {
	var b strings.Builder
	switch {
	case !done:
		b.WriteString(spinnerFrames[frame%len(spinnerFrames)] + " " + titleStyle.Render(title))
	case err != nil:
		b.WriteString(errStyle.Render("✗") + " " + titleStyle.Render(title))
	default:
		b.WriteString(okStyle.Render("✓") + " " + titleStyle.Render(title))
	}
	b.WriteString("\n")
	for _, d := range details {
		b.WriteString(detailStyle.Render(d) + "\n")
	}
	if done && err != nil {
		b.WriteString(detailStyle.Render(errStyle.Render(fmt.Sprintf("error: %v", err))) + "\n")
	}
	return b.String()
}

// Run executes fn behind a terminal spinner and returns its result once the
// program exits. Pressing q or ctrl+c cancels the context handed to fn.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	final, err := tea.NewProgram(newModel(ctx, cancel, title, fn)).Run()
	if err != nil {
		return nil, fmt.Errorf("run ui: %w", err)
	}
	m, ok := final.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected ui model %T", final)
	}
	return m.details, m.err
}
