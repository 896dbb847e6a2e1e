package installer

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func newInput(placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Focus()
	ti.Placeholder = placeholder
	ti.CharLimit = 255
	ti.Width = 50
	ti.SetValue(value)
	return ti
}

// confirmed feeds msg to the input and reports whether enter was pressed.
func confirmed(input *textinput.Model, msg tea.Msg) (bool, tea.Cmd) {
	var cmd tea.Cmd
	*input, cmd = input.Update(msg)
	key, ok := msg.(tea.KeyMsg)
	return ok && key.String() == "enter", cmd
}
