package installer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/ctxkeeper/internal/providers/llm"
)

// APIKeyStep asks for the backend key. A llama.cpp server usually runs
// without one, so the key is optional there.
type APIKeyStep struct {
	input    textinput.Model
	optional bool
	err      error
}

func NewAPIKeyStep() Step {
	return &APIKeyStep{}
}

func (s *APIKeyStep) Init(state *State) tea.Cmd {
	s.optional = state.Config.Backend.Provider == llm.ProviderLlamaCpp

	placeholder := "sk-..."
	if s.optional {
		placeholder = "Optional - press Enter to skip"
	}
	s.input = newInput(placeholder, state.Config.Backend.APIKey)
	s.input.EchoMode = textinput.EchoPassword
	s.input.EchoCharacter = '•'
	return textinput.Blink
}

func (s *APIKeyStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	done, cmd := confirmed(&s.input, msg)
	if !done {
		return s, cmd
	}

	val := strings.TrimSpace(s.input.Value())
	if val == "" && !s.optional {
		s.err = errors.New("an API key is required for this backend")
		return s, cmd
	}
	state.Config.Backend.APIKey = val
	return nil, nil
}

func (s *APIKeyStep) View(state *State) string {
	hint := ""
	if s.optional {
		hint = " (optional)"
	}
	return fmt.Sprintf("Enter the API key%s:\n\n%s\n\n%s(press enter to confirm)\n",
		hint, s.input.View(), errorView(s.err))
}
