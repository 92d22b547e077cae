package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard's global bindings.
type KeyMap struct {
	NextTab       key.Binding
	PrevTab       key.Binding
	Up            key.Binding
	Down          key.Binding
	Select        key.Binding
	Refresh       key.Binding
	StartBot      key.Binding
	StopBot       key.Binding
	RestartBot    key.Binding
	StartOllama   key.Binding
	StopOllama    key.Binding
	Sequence      key.Binding
	EmergencyStop key.Binding
	ClearBanner   key.Binding
	Toggle        key.Binding
	Increase      key.Binding
	Decrease      key.Binding
	Save          key.Binding
	Discard       key.Binding
	Prompt        key.Binding
	Cancel        key.Binding
	Quit          key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextTab:       key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next tab")),
		PrevTab:       key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev tab")),
		Up:            key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:          key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Refresh:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		StartBot:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b/B", "bot start/stop")),
		StopBot:       key.NewBinding(key.WithKeys("B")),
		RestartBot:    key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "restart bot")),
		StartOllama:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o/O", "ollama start/stop")),
		StopOllama:    key.NewBinding(key.WithKeys("O")),
		Sequence:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sequence")),
		EmergencyStop: key.NewBinding(key.WithKeys("X", "!"), key.WithHelp("X", "emergency stop")),
		ClearBanner:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear banner")),
		Toggle:        key.NewBinding(key.WithKeys(" ", "t"), key.WithHelp("space", "toggle")),
		Increase:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "adjust")),
		Decrease:      key.NewBinding(key.WithKeys("-")),
		Save:          key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save")),
		Discard:       key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "discard")),
		Prompt:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "prompt")),
		Cancel:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Refresh, k.Sequence, k.EmergencyStop, k.StartBot, k.StartOllama, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextTab, k.PrevTab, k.Up, k.Down, k.Select},
		{k.Refresh, k.StartBot, k.RestartBot, k.StartOllama, k.Sequence, k.EmergencyStop},
		{k.Toggle, k.Increase, k.Save, k.Discard, k.Prompt, k.ClearBanner, k.Quit},
	}
}
