package installer

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/ctxkeeper/internal/service/ui"
)

type item struct {
	id    string
	title string
	desc  string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.id }

// ProfileStep picks the default personality. The configured one is listed first.
type ProfileStep struct {
	list list.Model
}

func NewProfileStep() Step {
	return &ProfileStep{}
}

func (s *ProfileStep) Init(state *State) tea.Cmd {
	var items []list.Item
	current := state.Config.Profile
	if p, ok := state.Profiles[current]; ok {
		items = append(items, profileItem(current, p.Name, p.Description))
	}
	for _, key := range state.Profiles.Keys() {
		if key == current {
			continue
		}
		p := state.Profiles[key]
		items = append(items, profileItem(key, p.Name, p.Description))
	}

	l := list.New(items, list.NewDefaultDelegate(), 60, 20)
	l.Title = "Select the default profile"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = ui.TitleStyle
	s.list = l
	return nil
}

func profileItem(key, name, desc string) item {
	if name == "" {
		name = key
	}
	return item{id: key, title: name, desc: desc}
}

func (s *ProfileStep) Update(msg tea.Msg, state *State, width, height int) (Step, tea.Cmd) {
	if width > 0 && height > 4 {
		s.list.SetSize(width, height-4)
	}

	var cmd tea.Cmd
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		wasFiltering := s.list.FilterState() == list.Filtering
		s.list, cmd = s.list.Update(msg)
		if wasFiltering || s.list.FilterState() == list.Filtering {
			return s, cmd
		}

		if i, ok := s.list.SelectedItem().(item); ok {
			state.Config.Profile = i.id
			return nil, nil
		}
		// no profiles at all, keep the configured one
		if len(s.list.Items()) == 0 {
			return nil, nil
		}
		return s, cmd
	}

	s.list, cmd = s.list.Update(msg)
	return s, cmd
}

func (s *ProfileStep) View(state *State) string {
	return s.list.View()
}
