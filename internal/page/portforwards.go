package page

import (
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/portforward"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"strconv"
	"strings"
	"time"
)

var portForwardTitles = []string{"TARGET", "NAMESPACE", "POD", "LOCAL", "REMOTE", "STATUS", "AGE"}

type PortForwardsPage struct {
	keyMap   keymap.KeyMap
	forwards []portforward.Forward
	now      func() time.Time
	table    table.Model
	width    int
	height   int
}

// assert PortForwardsPage implements GenericPage
var _ GenericPage = PortForwardsPage{}

func NewPortForwardsPage(km keymap.KeyMap, now func() time.Time, width, height int) PortForwardsPage {
	t := table.New(
		table.WithFocused(true),
		table.WithStyles(style.Table()),
		table.WithKeyMap(keymap.TableKeyMap(km)),
	)
	p := PortForwardsPage{
		keyMap: km,
		now:    now,
		table:  t,
	}
	return p.withDimensions(width, height)
}

func (p PortForwardsPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("PortForwardsPage", msg)
	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

// WithForwards replaces the listed forwards, e.g. with portforward.Manager.List
func (p PortForwardsPage) WithForwards(forwards []portforward.Forward) PortForwardsPage {
	p.forwards = forwards
	p.syncTable()
	return p
}

// SelectedKey is the key of the forward under the cursor
func (p PortForwardsPage) SelectedKey() (string, bool) {
	idx := p.table.Cursor()
	if idx < 0 || idx >= len(p.forwards) {
		return "", false
	}
	return p.forwards[idx].Key, true
}

func (p PortForwardsPage) cells(f portforward.Forward) []string {
	status := string(f.Status)
	if f.Err != nil {
		status += ": " + f.Err.Error()
	}
	age := ""
	if !f.StartedAt.IsZero() {
		age = util.FormatAge(f.StartedAt, p.now())
	}
	return []string{
		f.Spec.Kind + "/" + f.Name,
		f.Namespace,
		f.Pod,
		strconv.Itoa(f.LocalPort),
		strconv.Itoa(f.TargetPort),
		status,
		age,
	}
}

func (p *PortForwardsPage) syncTable() {
	rows := make([]table.Row, 0, len(p.forwards))
	for _, f := range p.forwards {
		rows = append(rows, p.cells(f))
	}
	p.table.SetRows(rows)
	if p.table.Cursor() >= len(rows) {
		p.table.SetCursor(max(0, len(rows)-1))
	}
}

func (p PortForwardsPage) View() string {
	header := style.TitleStyle.Render("Port Forwards") + style.Muted.Render(fmt.Sprintf("%d active", p.active()))
	if len(p.forwards) == 0 {
		empty := lipgloss.JoinVertical(
			lipgloss.Center,
			style.Bold.Render("No port forwards"),
			style.Muted.Render(fmt.Sprintf("press %s on a pod or service to start one", p.keyMap.PortForward.Help().Key)),
		)
		return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.Place(p.width, max(1, p.height-1), lipgloss.Center, lipgloss.Center, empty))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.table.View())
}

func (p PortForwardsPage) active() int {
	n := 0
	for _, f := range p.forwards {
		if f.Status == portforward.StatusActive {
			n++
		}
	}
	return n
}

func (p PortForwardsPage) ContentForFile() []string {
	lines := []string{strings.Join(portForwardTitles, "\t")}
	for _, f := range p.forwards {
		lines = append(lines, strings.Join(p.cells(f), "\t"))
	}
	return lines
}

func (p PortForwardsPage) HighjackingInput() bool {
	return false
}

func (p PortForwardsPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p PortForwardsPage) withDimensions(width, height int) PortForwardsPage {
	p.width, p.height = width, height
	p.table.SetWidth(width)
	p.table.SetHeight(max(1, height-1))
	// target and status share what the fixed columns leave
	flexible := max(20, width-16-28-8-8-8-(len(portForwardTitles)*2))
	p.table.SetColumns([]table.Column{
		{Title: portForwardTitles[0], Width: flexible / 2},
		{Title: portForwardTitles[1], Width: 16},
		{Title: portForwardTitles[2], Width: 28},
		{Title: portForwardTitles[3], Width: 8},
		{Title: portForwardTitles[4], Width: 8},
		{Title: portForwardTitles[5], Width: flexible - flexible/2},
		{Title: portForwardTitles[6], Width: 8},
	})
	return p
}

func (p PortForwardsPage) Help() string {
	return makePageHelp("Port Forwards", p.keyMap, []key.Binding{
		keymap.WithDesc(p.keyMap.Delete, "stop forward"),
	})
}
