package installer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/ctxkeeper/internal/providers/llm"
)

type providerChoice struct {
	id         string
	title      string
	defaultURL string
}

var providerChoices = []providerChoice{
	{id: llm.ProviderLlamaCpp, title: "llama.cpp server", defaultURL: "http://127.0.0.1:8080"},
	{id: llm.ProviderOpenAI, title: "OpenAI-compatible API", defaultURL: "https://api.openai.com/v1"},
}

// ProviderStep picks the generation backend
type ProviderStep struct {
	cursor int
}

func NewProviderStep() Step {
	return &ProviderStep{}
}

func (s *ProviderStep) Init(state *State) tea.Cmd {
	for i, c := range providerChoices {
		if c.id == state.Config.Backend.Provider {
			s.cursor = i
		}
	}
	return nil
}

func (s *ProviderStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return s, nil
	}

	switch key.String() {
	case "up", "k":
		if s.cursor > 0 {
			s.cursor--
		}
	case "down", "j":
		if s.cursor < len(providerChoices)-1 {
			s.cursor++
		}
	case "enter":
		choice := providerChoices[s.cursor]
		if state.Config.Backend.Provider != choice.id {
			state.Config.Backend.Provider = choice.id
			state.Config.Backend.BaseURL = choice.defaultURL
		}
		return nil, nil
	}
	return s, nil
}

func (s *ProviderStep) View(state *State) string {
	var b strings.Builder
	b.WriteString("Select the generation backend:\n\n")
	for i, c := range providerChoices {
		if s.cursor == i {
			b.WriteString(selStyle.Render(fmt.Sprintf("❯ %s", c.title)) + "\n")
		} else {
			b.WriteString(itemStyle.Render(fmt.Sprintf("  %s", c.title)) + "\n")
		}
	}
	b.WriteString("\n(press ctrl+c to quit)\n")
	return b.String()
}
