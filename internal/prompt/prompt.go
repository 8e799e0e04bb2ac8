package prompt

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/style"
)

const (
	cancelText  = "NO, CANCEL"
	proceedText = "YES, PROCEED"
)

type Model struct {
	Visible           bool
	proceedIsSelected bool
	width, height     int
	text              []string
}

// New shows text with cancel preselected
func New(visible bool, width, height int, text []string) Model {
	return Model{
		Visible: visible,
		width:   width,
		height:  height,
		text:    text,
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	dev.DebugUpdateMsg("Prompt", msg)
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "down", "left", "right", "h", "j", "k", "l", "tab":
			m.proceedIsSelected = !m.proceedIsSelected
		case "y":
			m.proceedIsSelected = true
		case "n":
			m.proceedIsSelected = false
		}
	}
	return m, nil
}

func (m Model) View() string {
	if !m.Visible {
		return ""
	}
	cancel := cancelText
	proceed := proceedText
	if m.proceedIsSelected {
		proceed = style.ModalSelected.Render(proceed)
		cancel = style.ModalOption.Render(cancel)
	} else {
		proceed = style.ModalOption.Render(proceed)
		cancel = style.ModalSelected.Render(cancel)
	}
	view := lipgloss.JoinVertical(
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, m.text...),
		"\n",
		lipgloss.JoinHorizontal(lipgloss.Center, cancel, proceed),
	)
	view = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).Padding(1, 1).Render(view)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, view)
}

func (m Model) ProceedIsSelected() bool {
	return m.proceedIsSelected
}

func (m *Model) SetWidthAndHeight(width, height int) {
	m.width = width
	m.height = height
}
