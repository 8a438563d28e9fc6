package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Arm  key.Binding
	Fire key.Binding
	Quit key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Arm: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "arm manual trigger"),
		),
		Fire: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "fire manual trigger"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
