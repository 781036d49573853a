package tui

import "github.com/charmbracelet/bubbles/key"

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

type keyMap struct {
	Key    key.Binding
	Start  key.Binding
	Gains  key.Binding
	Filter key.Binding
	UpDown key.Binding
	Submit key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Key:    key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "set key")),
		Start:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start snapshot")),
		Gains:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "compute gains")),
		Filter: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		UpDown: key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Key, k.Start, k.Gains, k.Filter, k.UpDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Key, k.Start, k.Gains}, {k.Filter, k.UpDown, k.Quit}}
}

// inputKeyMap narrows the help to what matters while a text input is
// focused; plain letters feed the input, so Quit is ctrl+c only there.
type inputKeyMap struct {
	keyMap
}

func (k inputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel}
}

func (k inputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Cancel}}
}
