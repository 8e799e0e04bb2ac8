package filter

import (
	"fmt"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/search"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"strings"
)

// Model is the search box shown above tables and logs. It only edits text; compiling it into a search.Filter
// is up to the page, which does so once typing settles.
type Model struct {
	KeyMap    filterKeyMap
	textinput textinput.Model
	err       error
	suffix    string
}

func New(km keymap.KeyMap) Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Cursor.SetMode(cursor.CursorHide)

	fkm := filterKeyMap{
		Forward: km.Enter,
		Back:    km.Back,
		Filter:  km.Filter,
	}

	return Model{
		KeyMap:    fkm,
		textinput: ti,
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	dev.DebugUpdateMsg("Filter", msg)
	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	value := m.textinput.Value()
	switch {
	case m.textinput.Focused() && value == "":
		// editing but no filter value yet
		m.textinput.Prompt = ""
		m.textinput.PromptStyle = style.Inverse
		m.textinput.TextStyle = style.Inverse
		m.textinput.Placeholder = fmt.Sprintf("type to search, start with %s for an expression", search.ExpressionPrefix)
		m.textinput.PlaceholderStyle = style.Inverse
		m.textinput.Cursor.SetMode(cursor.CursorHide)
	case m.textinput.Focused():
		m.textinput.Prompt = m.prompt()
		m.textinput.PromptStyle = style.Inverse
		m.textinput.TextStyle = style.Inverse
		m.textinput.Cursor.Style = lipgloss.NewStyle()
		m.textinput.Cursor.TextStyle = lipgloss.NewStyle()
	case value != "":
		// filter applied, not editing
		m.textinput.Prompt = m.prompt()
		m.textinput.PromptStyle = style.AltInverse
		m.textinput.TextStyle = style.AltInverse
		m.textinput.Cursor.Style = style.AltInverse
		m.textinput.Cursor.TextStyle = style.AltInverse
	default:
		// no filter, not editing
		m.textinput.Prompt = ""
		m.textinput.Placeholder = fmt.Sprintf("'%s' to search", m.KeyMap.Filter.Help().Key)
		m.textinput.PlaceholderStyle = style.Muted
	}
	view := m.textinput.View()
	if m.suffix != "" {
		view += m.textinput.TextStyle.Render(m.suffix)
	}
	return lipgloss.NewStyle().PaddingLeft(1).Render(view)
}

func (m Model) prompt() string {
	if !m.IsExpression() {
		return "search: "
	}
	if m.err != nil {
		return "invalid expression: "
	}
	return "expression: "
}

// IsExpression reports whether the text will be compiled as a CEL expression
func (m Model) IsExpression() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Value()), search.ExpressionPrefix)
}

func (m Model) Value() string {
	return m.textinput.Value()
}

func (m Model) HasFilterText() bool {
	return m.Value() != ""
}

func (m Model) Focused() bool {
	return m.textinput.Focused()
}

// Err is the compile error of the current text, if any
func (m Model) Err() error {
	return m.err
}

func (m *Model) SetErr(err error) {
	m.err = err
}

func (m *Model) SetValue(value string) {
	m.textinput.SetValue(value)
}

// SetSuffix shows extra text after the input, e.g. a match count
func (m *Model) SetSuffix(suffix string) {
	m.suffix = suffix
}

func (m *Model) Focus() tea.Cmd {
	m.textinput.Cursor.SetMode(cursor.CursorBlink)
	return m.textinput.Focus()
}

func (m *Model) Blur() {
	// move cursor to end of word so right padding shows up even if cursor not at end when blurred
	m.textinput.SetCursor(len(m.textinput.Value()))

	m.textinput.Cursor.SetMode(cursor.CursorHide)
	m.textinput.Blur()
}

func (m *Model) BlurAndClear() {
	m.Blur()
	m.err = nil
	m.suffix = ""
	m.textinput.SetValue("")
}
