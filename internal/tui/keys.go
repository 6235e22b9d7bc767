package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keyboard bindings.
type keyMap struct {
	Quit       key.Binding
	Submit     key.Binding
	Refresh    key.Binding
	ClearCache key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "fetch now"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh"),
		),
		ClearCache: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear cache"),
		),
	}
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Submit, k.Refresh, k.ClearCache, k.Quit}
}
