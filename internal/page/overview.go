package page

import (
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/events"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/overview"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"strings"
	"time"
)

// OverviewPage summarizes cluster health: nodes, pods, deployments, capacity and recent problems
type OverviewPage struct {
	keyMap   keymap.KeyMap
	now      func() time.Time
	loaded   bool
	err      error
	overview overview.Overview
	critical []events.Event
	viewport viewport.Model
	width    int
	height   int
}

// assert OverviewPage implements GenericPage
var _ GenericPage = OverviewPage{}

func NewOverviewPage(km keymap.KeyMap, now func() time.Time, width, height int) OverviewPage {
	vp := viewport.New(width, height)
	vp.KeyMap = viewportKeyMap(km)
	p := OverviewPage{
		keyMap:   km,
		now:      now,
		viewport: vp,
	}
	return p.withDimensions(width, height)
}

func (p OverviewPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("OverviewPage", msg)
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case command.OverviewLoadedMsg:
		p.err = msg.Err
		if msg.Err == nil {
			p.loaded = true
			p.overview = msg.Overview
			p.critical = msg.Critical
		}
		p.viewport.SetContent(strings.Join(p.lines(true), "\n"))
		return p, nil
	}
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p OverviewPage) lines(styled bool) []string {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var lines []string
	if p.err != nil {
		lines = append(lines, render(style.ErrorStyle, kerrors.Title(p.err)+": "+p.err.Error()), "")
	}
	if !p.loaded {
		if p.err == nil {
			lines = append(lines, render(style.Muted, "Collecting cluster overview..."))
		}
		return lines
	}

	o := p.overview
	section := func(title string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, render(style.Bold, title))
	}

	section("Cluster")
	lines = append(lines,
		fmt.Sprintf("  Nodes ready        %d/%d", o.NodesReady, o.NodesTotal),
		fmt.Sprintf("  Allocatable CPU    %.1f cores", o.Cores()),
		fmt.Sprintf("  Allocatable memory %.1f GB", o.MemoryGB()),
	)

	section("Workloads in " + util.OrDefault(o.Namespace, "all namespaces"))
	lines = append(lines, fmt.Sprintf("  Pods               %d", o.PodsTotal))
	for _, pc := range o.Pods {
		line := fmt.Sprintf("    %-16s %d", pc.Phase, pc.Count)
		if pc.Count > 0 {
			line = render(style.Status(string(pc.Phase)), line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("  Deployments ready  %d/%d", o.DeploymentsAvailable, o.DeploymentsTotal))

	section("Events")
	s := o.Events
	lines = append(lines,
		fmt.Sprintf("  Total %d, warnings %d, normal %d, last hour %d", s.Total, s.Warning, s.Normal, s.LastHour),
	)
	if len(s.TopReasons) > 0 {
		var reasons []string
		for _, r := range s.TopReasons {
			reasons = append(reasons, fmt.Sprintf("%s (%d)", r.Reason, r.Count))
		}
		lines = append(lines, "  Top reasons: "+strings.Join(reasons, ", "))
	}
	if len(s.WarningNamespaces) > 0 {
		lines = append(lines, "  Namespaces with warnings: "+strings.Join(s.WarningNamespaces, ", "))
	}

	section(fmt.Sprintf("Critical issues (%d)", len(p.critical)))
	if len(p.critical) == 0 {
		lines = append(lines, render(style.Green, "  None in the last 24h"))
	}
	now := p.now()
	for _, e := range p.critical {
		head := fmt.Sprintf("  %s ago  %s  %s", e.Age(now), e.Object, e.Reason)
		lines = append(lines, render(style.Red, head), "    "+util.Truncate(e.Message, max(20, p.width-4)))
	}

	lines = append(lines, "", render(style.Muted, "Collected "+util.FormatAge(o.CollectedAt, now)+" ago"))
	return lines
}

func (p OverviewPage) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, style.TitleStyle.Render("Cluster Overview"), p.viewport.View())
}

func (p OverviewPage) ContentForFile() []string {
	return p.lines(false)
}

func (p OverviewPage) HighjackingInput() bool {
	return false
}

func (p OverviewPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p OverviewPage) withDimensions(width, height int) OverviewPage {
	p.width, p.height = width, height
	p.viewport.Width = width
	p.viewport.Height = max(1, height-1)
	p.viewport.SetContent(strings.Join(p.lines(true), "\n"))
	return p
}

func (p OverviewPage) Help() string {
	return makePageHelp("Cluster Overview", p.keyMap, []key.Binding{
		keymap.WithDesc(p.keyMap.Reload, "refresh"),
	})
}
