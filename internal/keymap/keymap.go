package keymap

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
)

type KeyMap struct {
	Back        key.Binding
	Command     key.Binding
	Copy        key.Binding
	Delete      key.Binding
	Down        key.Binding
	Enter       key.Binding
	Filter      key.Binding
	Help        key.Binding
	Logs        key.Binding
	NextTab     key.Binding
	Overview    key.Binding
	PageDown    key.Binding
	PageUp      key.Binding
	PortForward key.Binding
	PrevTab     key.Binding
	Quit        key.Binding
	Reload      key.Binding
	Save        key.Binding
	Select      key.Binding
	SelectAll   key.Binding
	Shell       key.Binding
	Timestamps  key.Binding
	Top         key.Binding
	Bottom      key.Binding
	TogglePause key.Binding
	Up          key.Binding
}

var DefaultKeyMap = KeyMap{
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back / discard filter"),
	),
	Command: key.NewBinding(
		key.WithKeys(":"),
		key.WithHelp(":", "command line"),
	),
	Copy: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("ctrl+y", "copy to clipboard"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", ""), // means different things on different pages
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search (?expr for CEL)"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "show/hide help"),
	),
	Logs: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "logs"),
	),
	NextTab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next tab"),
	),
	Overview: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "cluster overview"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn/ctrl+d", "page down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup/ctrl+u", "page up"),
	),
	PortForward: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "port-forward"),
	),
	PrevTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "previous tab"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	Save: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save focus to file"),
	),
	Select: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "select"),
	),
	SelectAll: key.NewBinding(
		key.WithKeys("ctrl+a"),
		key.WithHelp("ctrl+a", "select all/none"),
	),
	Shell: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "shell"),
	),
	Timestamps: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "show/hide timestamps"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g/home", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G/end", "bottom"),
	),
	TogglePause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause/resume logs"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
}

func GlobalKeyBindings(km KeyMap) []key.Binding {
	// available from anywhere on the app
	return []key.Binding{
		km.Command,
		km.Back,
		km.Filter,
		km.Up,
		km.Down,
		km.PageUp,
		km.PageDown,
		km.Top,
		km.Bottom,
		km.Save,
		km.Copy,
		km.Overview,
		km.Quit,
		km.Help,
	}
}

// TableKeyMap restricts table navigation to keys that do not collide with resource actions
func TableKeyMap(km KeyMap) table.KeyMap {
	return table.KeyMap{
		LineUp:       km.Up,
		LineDown:     km.Down,
		PageUp:       km.PageUp,
		PageDown:     km.PageDown,
		HalfPageUp:   key.NewBinding(key.WithDisabled()),
		HalfPageDown: key.NewBinding(key.WithDisabled()),
		GotoTop:      km.Top,
		GotoBottom:   km.Bottom,
	}
}

func WithDesc(k key.Binding, d string) key.Binding {
	newK := k
	newK.SetHelp(newK.Help().Key, d)
	return newK
}
