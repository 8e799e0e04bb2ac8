package page

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/filter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"strings"
)

const currentContextSymbol = "*"

// ContextsPage lists the contexts of the kubeconfig; the one in use is marked
type ContextsPage struct {
	keyMap  keymap.KeyMap
	active  string
	all     []client.ContextInfo
	visible []client.ContextInfo
	loaded  bool
	err     error
	table   table.Model
	filter  filter.Model
	width   int
	height  int
}

// assert ContextsPage implements GenericPage
var _ GenericPage = ContextsPage{}

// NewContextsPage starts empty until WithContexts; active is the context the app is connected to
func NewContextsPage(km keymap.KeyMap, active string, width, height int) ContextsPage {
	t := table.New(
		table.WithFocused(true),
		table.WithStyles(style.Table()),
		table.WithKeyMap(keymap.TableKeyMap(km)),
	)
	p := ContextsPage{
		keyMap: km,
		active: active,
		table:  t,
		filter: filter.New(km),
	}
	return p.withDimensions(width, height)
}

// WithContexts shows the listed contexts with the cursor on the active one
func (p ContextsPage) WithContexts(contexts []client.ContextInfo, err error) ContextsPage {
	p.loaded = true
	p.all, p.err = contexts, err
	p.applyFilter()
	for i, c := range p.visible {
		if c.Name == p.active {
			p.table.SetCursor(i)
		}
	}
	return p
}

func (p ContextsPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("ContextsPage", msg)
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		if p.filter.Focused() {
			switch {
			case key.Matches(msg, p.filter.KeyMap.Forward):
				p.filter.Blur()
			case key.Matches(msg, p.filter.KeyMap.Back):
				p.filter.BlurAndClear()
				p.applyFilter()
			default:
				p.filter, cmd = p.filter.Update(msg)
				p.applyFilter()
			}
			return p, cmd
		}
		switch {
		case key.Matches(msg, p.keyMap.Filter):
			cmd := p.filter.Focus()
			return p, cmd
		case key.Matches(msg, p.keyMap.Back) && p.filter.HasFilterText():
			p.filter.BlurAndClear()
			p.applyFilter()
			return p, nil
		}
	}

	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

func (p ContextsPage) View() string {
	var body string
	switch {
	case !p.loaded:
		body = style.Muted.Render("loading...")
	case p.err != nil:
		body = style.ErrorStyle.Render("Error: " + p.err.Error())
	case len(p.all) == 0:
		body = style.Muted.Render("No contexts in kubeconfig")
	default:
		body = p.table.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, p.header(), p.filter.View(), body)
}

func (p ContextsPage) header() string {
	return style.TitleStyle.Render("Contexts")
}

func (p ContextsPage) ContentForFile() []string {
	var lines []string
	for _, c := range p.visible {
		lines = append(lines, strings.Join(p.cells(c), "\t"))
	}
	return lines
}

// HasFilterText is true while a search narrows the page, in which case esc clears it rather than going back
func (p ContextsPage) HasFilterText() bool {
	return p.filter.HasFilterText()
}

func (p ContextsPage) HighjackingInput() bool {
	return p.filter.Focused()
}

func (p ContextsPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p ContextsPage) withDimensions(width, height int) ContextsPage {
	p.width, p.height = width, height
	p.table.SetWidth(width)
	p.table.SetHeight(max(1, height-lipgloss.Height(p.header())-1))
	p.table.SetColumns(contextColumns(width))
	return p
}

func (p ContextsPage) Help() string {
	return makePageHelp("Contexts", p.keyMap, []key.Binding{
		keymap.WithDesc(p.keyMap.Enter, "switch to context"),
	})
}

// SelectedContext is the context under the cursor
func (p ContextsPage) SelectedContext() (client.ContextInfo, bool) {
	idx := p.table.Cursor()
	if idx < 0 || idx >= len(p.visible) {
		return client.ContextInfo{}, false
	}
	return p.visible[idx], true
}

func (p *ContextsPage) applyFilter() {
	needle := strings.ToLower(strings.TrimSpace(p.filter.Value()))
	p.visible = nil
	for _, c := range p.all {
		if needle == "" || strings.Contains(strings.ToLower(c.Name+" "+c.Cluster), needle) {
			p.visible = append(p.visible, c)
		}
	}
	rows := make([]table.Row, 0, len(p.visible))
	for _, c := range p.visible {
		rows = append(rows, p.cells(c))
	}
	p.table.SetRows(rows)
	if p.table.Cursor() >= len(rows) {
		p.table.SetCursor(max(0, len(rows)-1))
	}
}

func (p ContextsPage) cells(c client.ContextInfo) []string {
	marker := ""
	if c.Name == p.active {
		marker = currentContextSymbol
	}
	return []string{marker, c.Name, c.Cluster, util.OrDefault(c.Namespace, "default")}
}

func contextColumns(width int) []table.Column {
	// cell padding takes 2 per column
	rest := max(20, width-3-24-8)
	return []table.Column{
		{Title: "", Width: 1},
		{Title: "NAME", Width: rest / 2},
		{Title: "CLUSTER", Width: rest - rest/2},
		{Title: "NAMESPACE", Width: 24},
	}
}
