package installer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// WindowStep sets the context window. It must leave room for a prompt after
// the response reservation.
type WindowStep struct {
	input textinput.Model
	err   error
}

func NewWindowStep() Step {
	return &WindowStep{}
}

func (s *WindowStep) Init(state *State) tea.Cmd {
	s.input = newInput("12288", strconv.Itoa(state.Config.ContextWindow))
	s.input.CharLimit = 9
	return textinput.Blink
}

func (s *WindowStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	done, cmd := confirmed(&s.input, msg)
	if !done {
		return s, cmd
	}

	n, err := strconv.Atoi(strings.TrimSpace(s.input.Value()))
	if err != nil {
		s.err = fmt.Errorf("%q is not a number", s.input.Value())
		return s, cmd
	}
	if reserved := state.Config.MaxTokens + state.Config.ResponseSafetyMargin; n <= reserved {
		s.err = fmt.Errorf("window must exceed the %d tokens reserved for the response", reserved)
		return s, cmd
	}
	state.Config.ContextWindow = n
	return nil, nil
}

func (s *WindowStep) View(state *State) string {
	return "Enter the context window in tokens:\n\n" + s.input.View() + "\n\n" + errorView(s.err) + "(press enter to confirm)\n"
}
