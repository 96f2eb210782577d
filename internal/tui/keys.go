package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Step   key.Binding
	Toggle key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Step: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "step"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle mode"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap. Disabled bindings are skipped by the
// help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Step, k.Toggle, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// sync enables the bindings that apply to the current input state.
func (k *keyMap) sync(choosing, stepMode, completed bool) {
	k.Up.SetEnabled(choosing && !completed)
	k.Down.SetEnabled(choosing && !completed)
	k.Select.SetEnabled(choosing && !completed)
	k.Step.SetEnabled(!choosing && stepMode && !completed)
	k.Toggle.SetEnabled(!completed)
}
