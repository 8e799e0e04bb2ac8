package page

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/filter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"strings"
)

// KindsPage lists the catalog grouped by category
type KindsPage struct {
	keyMap  keymap.KeyMap
	all     []resource.Kind
	visible []resource.Kind
	table   table.Model
	filter  filter.Model
	width   int
	height  int
}

// assert KindsPage implements GenericPage
var _ GenericPage = KindsPage{}

func NewKindsPage(km keymap.KeyMap, catalog resource.Catalog, width, height int) KindsPage {
	var all []resource.Kind
	byCategory := catalog.ByCategory()
	for _, cat := range resource.Categories {
		all = append(all, byCategory[cat]...)
	}
	t := table.New(
		table.WithFocused(true),
		table.WithStyles(style.Table()),
		table.WithKeyMap(keymap.TableKeyMap(km)),
	)
	p := KindsPage{
		keyMap: km,
		all:    all,
		table:  t,
		filter: filter.New(km),
	}
	// columns must be in place before any rows
	p = p.withDimensions(width, height)
	p.applyFilter()
	return p
}

func (p KindsPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("KindsPage", msg)
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

func (p KindsPage) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, p.header(), p.filter.View(), p.table.View())
}

func (p KindsPage) header() string {
	return style.TitleStyle.Render("Resource Types")
}

func (p KindsPage) ContentForFile() []string {
	var lines []string
	for _, k := range p.visible {
		lines = append(lines, strings.Join(kindCells(k), "\t"))
	}
	return lines
}

// HasFilterText is true while a search narrows the page, in which case esc clears it rather than going back
func (p KindsPage) HasFilterText() bool {
	return p.filter.HasFilterText()
}

func (p KindsPage) HighjackingInput() bool {
	return p.filter.Focused()
}

func (p KindsPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p KindsPage) withDimensions(width, height int) KindsPage {
	p.width, p.height = width, height
	p.table.SetWidth(width)
	p.table.SetHeight(max(1, height-lipgloss.Height(p.header())-1))
	p.table.SetColumns(kindColumns(width))
	return p
}

func (p KindsPage) Help() string {
	return makePageHelp("Resource Types", p.keyMap, []key.Binding{
		keymap.WithDesc(p.keyMap.Enter, "list resources of type"),
	})
}

// SelectedKind is the kind under the cursor
func (p KindsPage) SelectedKind() (resource.Kind, bool) {
	idx := p.table.Cursor()
	if idx < 0 || idx >= len(p.visible) {
		return resource.Kind{}, false
	}
	return p.visible[idx], true
}

func (p *KindsPage) applyFilter() {
	needle := strings.ToLower(strings.TrimSpace(p.filter.Value()))
	p.visible = nil
	for _, k := range p.all {
		if needle == "" || matchesKind(k, needle) {
			p.visible = append(p.visible, k)
		}
	}
	rows := make([]table.Row, 0, len(p.visible))
	for _, k := range p.visible {
		rows = append(rows, kindCells(k))
	}
	p.table.SetRows(rows)
	if p.table.Cursor() >= len(rows) {
		p.table.SetCursor(max(0, len(rows)-1))
	}
}

func matchesKind(k resource.Kind, needle string) bool {
	if strings.Contains(strings.ToLower(k.Title), needle) || strings.Contains(strings.ToLower(string(k.Category)), needle) {
		return true
	}
	for _, a := range k.Aliases() {
		if strings.Contains(a, needle) {
			return true
		}
	}
	return false
}

func kindCells(k resource.Kind) []string {
	scope := "Cluster"
	if k.Namespaced {
		scope = "Namespaced"
	}
	return []string{string(k.Category), k.Title, strings.Join(k.Aliases(), ", "), scope}
}

func kindColumns(width int) []table.Column {
	// cell padding takes 2 per column
	rest := max(10, width-18-30-14-8)
	return []table.Column{
		{Title: "CATEGORY", Width: 16},
		{Title: "TYPE", Width: 28},
		{Title: "ALIASES", Width: rest},
		{Title: "SCOPE", Width: 12},
	}
}
