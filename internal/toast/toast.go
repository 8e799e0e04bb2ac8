package toast

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"sync"
	"time"
)

var (
	lastID int
	idMtx  sync.Mutex
)

type Model struct {
	ID           int
	message      string
	Visible      bool
	IsError      bool
	messageStyle lipgloss.Style
}

func New(message string) Model {
	return Model{
		ID:           nextID(),
		message:      message,
		Visible:      true,
		messageStyle: style.Toast,
	}
}

// NewError is a toast styled as a failure
func NewError(message string) Model {
	m := New(message)
	m.IsError = true
	m.messageStyle = style.ToastError
	return m
}

// Show returns the toast together with the command that hides it after d
func (m Model) Show(d time.Duration) (Model, tea.Cmd) {
	id := m.ID
	return m, tea.Tick(d, func(time.Time) tea.Msg { return TimeoutMsg{ID: id} })
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	dev.DebugUpdateMsg("Toast", msg)
	switch msg := msg.(type) {
	case TimeoutMsg:
		if msg.ID > 0 && msg.ID != m.ID {
			return m, nil
		}
		m.Visible = false
	}
	return m, nil
}

func (m Model) View() string {
	if m.Visible {
		return m.messageStyle.Render(m.message)
	}
	return ""
}

func (m Model) ViewHeight() int {
	return lipgloss.Height(m.View())
}

func (m Model) Message() string {
	return m.message
}

type TimeoutMsg struct {
	ID int
}

func nextID() int {
	idMtx.Lock()
	defer idMtx.Unlock()
	lastID++
	return lastID
}
