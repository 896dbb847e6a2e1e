package installer

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type ModelStep struct {
	input textinput.Model
	err   error
}

func NewModelStep() Step {
	return &ModelStep{}
}

func (s *ModelStep) Init(state *State) tea.Cmd {
	s.input = newInput("gpt-4o-mini", state.Config.Backend.Model)
	return textinput.Blink
}

func (s *ModelStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	done, cmd := confirmed(&s.input, msg)
	if !done {
		return s, cmd
	}

	val := strings.TrimSpace(s.input.Value())
	if val == "" {
		s.err = errors.New("model name must not be empty")
		return s, cmd
	}
	state.Config.Backend.Model = val
	return nil, nil
}

func (s *ModelStep) View(state *State) string {
	return "Enter the model name:\n\n" + s.input.View() + "\n\n" + errorView(s.err) + "(press enter to confirm)\n"
}
