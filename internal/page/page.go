package page

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/help"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/style"
)

type GenericPage interface {
	Update(msg tea.Msg) (GenericPage, tea.Cmd)
	View() string
	// ContentForFile is what gets saved or copied when the page is focused
	ContentForFile() []string
	HighjackingInput() bool
	WithDimensions(width, height int) GenericPage
	Help() string
}

type Type int

const (
	KindsPageType Type = iota
	ResourcesPageType
	DetailPageType
	LogsPageType
	PortForwardsPageType
	OverviewPageType
	ContextsPageType
)

func (t Type) String() string {
	switch t {
	case KindsPageType:
		return "Kinds"
	case ResourcesPageType:
		return "Resources"
	case DetailPageType:
		return "Detail"
	case LogsPageType:
		return "Logs"
	case PortForwardsPageType:
		return "Port Forwards"
	case OverviewPageType:
		return "Overview"
	case ContextsPageType:
		return "Contexts"
	}
	return "Unknown"
}

func makePageHelp(title string, km keymap.KeyMap, local []key.Binding) string {
	return help.MakeHelp(title, keymap.GlobalKeyBindings(km), local, style.KeyHelpStyle)
}
