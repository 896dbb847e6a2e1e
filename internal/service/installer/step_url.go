package installer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type URLStep struct {
	input textinput.Model
	err   error
}

func NewURLStep() Step {
	return &URLStep{}
}

func (s *URLStep) Init(state *State) tea.Cmd {
	s.input = newInput("http://127.0.0.1:8080", state.Config.Backend.BaseURL)
	return textinput.Blink
}

func (s *URLStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	done, cmd := confirmed(&s.input, msg)
	if !done {
		return s, cmd
	}

	val := strings.TrimSpace(s.input.Value())
	if err := validateURL(val); err != nil {
		s.err = err
		return s, cmd
	}
	state.Config.Backend.BaseURL = strings.TrimRight(val, "/")
	return nil, nil
}

func (s *URLStep) View(state *State) string {
	return "Enter the backend base URL:\n\n" + s.input.View() + "\n\n" + errorView(s.err) + "(press enter to confirm)\n"
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}
