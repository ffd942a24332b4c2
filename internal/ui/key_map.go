package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the monitor.
type keyMap struct {
	up         key.Binding
	down       key.Binding
	reconnect  key.Binding
	disconnect key.Binding
	history    key.Binding
	back       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		reconnect:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
		disconnect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
		history:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
		back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.reconnect, k.disconnect, k.history, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.reconnect, k.disconnect, k.history},
		{k.back, k.quit},
	}
}
