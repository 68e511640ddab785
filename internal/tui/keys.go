package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the watch view
type KeyMap struct {
	Sync         key.Binding
	ToggleOnline key.Binding
	Refresh      key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Sync: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sync now"),
		),
		ToggleOnline: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle online"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Sync, k.ToggleOnline, k.Refresh, k.Quit}
}
