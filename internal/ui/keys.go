package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pick     key.Binding
	Up       key.Binding
	Down     key.Binding
	Confirm  key.Binding
	Next     key.Binding
	Previous key.Binding
	Clear    key.Binding
	Retry    key.Binding
	Debug    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pick, k.Confirm, k.Previous, k.Next, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pick, k.Up, k.Down, k.Confirm, k.Clear},
		{k.Previous, k.Next, k.Retry},
		{k.Debug, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Pick: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "label"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("↓/j", "down"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "label highlighted"),
	),
	Next: key.NewBinding(
		key.WithKeys("l", "right"),
		key.WithHelp("→/l", "next"),
	),
	Previous: key.NewBinding(
		key.WithKeys("h", "left"),
		key.WithHelp("←/h", "previous"),
	),
	Clear: key.NewBinding(
		key.WithKeys("x", "backspace"),
		key.WithHelp("x", "clear label"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Debug: key.NewBinding(
		key.WithKeys("D"),
		key.WithHelp("D", "debug"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
