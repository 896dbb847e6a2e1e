package installer

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sandevgo/ctxkeeper/internal/service/ui"
)

var ErrInterrupted = errors.New("setup interrupted")

var (
	itemStyle = lipgloss.NewStyle().PaddingLeft(2)
	selStyle  = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("5"))
)

// Step is one screen of the wizard. Update returns nil once the step is done.
type Step interface {
	Init(state *State) tea.Cmd
	Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd)
	View(state *State) string
}

func newSteps() []Step {
	return []Step{
		NewProviderStep(),
		NewURLStep(),
		NewAPIKeyStep(),
		NewModelStep(),
		NewWindowStep(),
		NewProfileStep(),
		NewSaveStep(),
	}
}

type nextMsg struct{}

func next() tea.Msg { return nextMsg{} }

// model runs the steps in order over a shared State
type model struct {
	steps       []Step
	currentStep int
	state       *State
	quitting    bool
	width       int
	height      int
}

func newModel(state *State) model {
	return model{
		steps: newSteps(),
		state: state,
	}
}

func (m model) Init() tea.Cmd {
	if len(m.steps) == 0 {
		return tea.Quit
	}
	return m.steps[0].Init(m.state)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.currentStep >= len(m.steps) {
		return m, tea.Quit
	}

	step, cmd := m.steps[m.currentStep].Update(msg, m.state, m.width, m.height)
	if step == nil {
		m.currentStep++
		if m.currentStep >= len(m.steps) {
			return m, tea.Quit
		}
		return m, m.steps[m.currentStep].Init(m.state)
	}

	m.steps[m.currentStep] = step
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return "Setup cancelled.\n"
	}
	if m.currentStep >= len(m.steps) {
		return "Configuration complete!\n"
	}
	return ui.TitleStyle.Render("ctxkeeper setup") + "\n" + m.steps[m.currentStep].View(m.state)
}

// RunWizard walks the user through the backend settings and saves them.
func RunWizard(state *State) error {
	p := tea.NewProgram(newModel(state), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return fmt.Errorf("failed to run setup wizard: %w", err)
	}

	if m.(model).quitting {
		return ErrInterrupted
	}
	return state.Err
}

func errorView(err error) string {
	if err == nil {
		return ""
	}
	return ui.AlertStyle.Render(err.Error()) + "\n\n"
}
