package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/boda/internal/models"
)

type keyMap struct {
	Quit    key.Binding
	Up      key.Binding
	Down    key.Binding
	Older   key.Binding
	Newer   key.Binding
	Latest  key.Binding
	History key.Binding
	Help    key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/↑", "scroll up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/↓", "scroll down")),
	Older:   key.NewBinding(key.WithKeys("left", "n"), key.WithHelp("n/←", "older run")),
	Newer:   key.NewBinding(key.WithKeys("right", "p"), key.WithHelp("p/→", "newer run")),
	Latest:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "latest")),
	History: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Older, k.Newer, k.Latest, k.History, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Older, k.Newer, k.Latest},
		{k.History, k.Help, k.Quit},
	}
}

// actionFor decodes a key press into a viewer action.
func actionFor(msg tea.KeyMsg) (models.Action, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		return models.ActionQuit, true
	case key.Matches(msg, keys.Up):
		return models.ActionScrollUp, true
	case key.Matches(msg, keys.Down):
		return models.ActionScrollDown, true
	case key.Matches(msg, keys.Older):
		return models.ActionSelectNext, true
	case key.Matches(msg, keys.Newer):
		return models.ActionSelectPrev, true
	case key.Matches(msg, keys.Latest):
		return models.ActionSelectLatest, true
	case key.Matches(msg, keys.History):
		return models.ActionToggleShowHistory, true
	case key.Matches(msg, keys.Help):
		return models.ActionToggleShowHelp, true
	}
	return 0, false
}
