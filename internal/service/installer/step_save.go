package installer

import (
	tea "github.com/charmbracelet/bubbletea"
)

// SaveStep writes the collected configuration. A failure ends the wizard and
// is reported by RunWizard.
type SaveStep struct{}

func NewSaveStep() Step {
	return &SaveStep{}
}

func (s *SaveStep) Init(state *State) tea.Cmd {
	return next
}

func (s *SaveStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	state.Err = state.Save()
	return nil, nil
}

func (s *SaveStep) View(state *State) string {
	return "Saving configuration to " + state.EnvPath + "...\n"
}
