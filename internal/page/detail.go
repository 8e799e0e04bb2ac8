package page

import (
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/detail"
	"github.com/orchestrix-io/orchestrix/internal/k8s/events"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"strings"
	"time"
)

type detailTab int

const (
	overviewTab detailTab = iota
	yamlTab
	eventsTab
)

var detailTabTitles = []string{"Overview", "YAML", "Events"}

// DetailPage shows a single object in tabs
type DetailPage struct {
	keyMap    keymap.KeyMap
	kind      resource.Kind
	ref       model.ObjectRef
	now       func() time.Time
	loading   bool
	err       error
	fields    []detail.Field
	yaml      string
	events    []events.Event
	eventsErr error
	tab       detailTab
	viewport  viewport.Model
	width     int
	height    int
}

// assert DetailPage implements GenericPage
var _ GenericPage = DetailPage{}

func NewDetailPage(km keymap.KeyMap, kind resource.Kind, ref model.ObjectRef, now func() time.Time, width, height int) DetailPage {
	vp := viewport.New(width, height)
	vp.KeyMap = viewportKeyMap(km)
	p := DetailPage{
		keyMap:   km,
		kind:     kind,
		ref:      ref,
		now:      now,
		loading:  true,
		viewport: vp,
	}
	return p.withDimensions(width, height)
}

func viewportKeyMap(km keymap.KeyMap) viewport.KeyMap {
	vkm := viewport.DefaultKeyMap()
	vkm.Up = km.Up
	vkm.Down = km.Down
	vkm.PageUp = km.PageUp
	vkm.PageDown = km.PageDown
	vkm.HalfPageUp = key.NewBinding(key.WithDisabled())
	vkm.HalfPageDown = key.NewBinding(key.WithDisabled())
	return vkm
}

func (p DetailPage) Ref() model.ObjectRef {
	return p.ref
}

func (p DetailPage) Kind() resource.Kind {
	return p.kind
}

func (p DetailPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("DetailPage", msg)
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case command.DetailLoadedMsg:
		if msg.Ref != p.ref {
			return p, nil
		}
		p.loading = false
		p.err = msg.Err
		p.fields = msg.Fields
		p.yaml = msg.YAML
		p.events = msg.Events
		p.eventsErr = msg.EventsErr
		p.setContent()
		return p, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keyMap.NextTab):
			p.tab = (p.tab + 1) % detailTab(len(detailTabTitles))
			p.setContent()
			return p, nil
		case key.Matches(msg, p.keyMap.PrevTab):
			p.tab = (p.tab + detailTab(len(detailTabTitles)) - 1) % detailTab(len(detailTabTitles))
			p.setContent()
			return p, nil
		case key.Matches(msg, p.keyMap.Top):
			p.viewport.GotoTop()
			return p, nil
		case key.Matches(msg, p.keyMap.Bottom):
			p.viewport.GotoBottom()
			return p, nil
		}
	}

	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *DetailPage) setContent() {
	p.viewport.SetContent(strings.Join(p.lines(true), "\n"))
	p.viewport.GotoTop()
}

func (p DetailPage) lines(styled bool) []string {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	switch {
	case p.loading:
		return []string{render(style.Muted, "Loading...")}
	case p.err != nil:
		return []string{render(style.ErrorStyle, kerrors.Title(p.err)+": "+p.err.Error())}
	}

	switch p.tab {
	case overviewTab:
		labelWidth := 0
		for _, f := range p.fields {
			labelWidth = max(labelWidth, len(f.Label))
		}
		var lines []string
		for _, f := range p.fields {
			label := fmt.Sprintf("%-*s", labelWidth+2, f.Label+":")
			valueLines := strings.Split(f.Value, "\n")
			lines = append(lines, render(style.Bold, label)+valueLines[0])
			for _, v := range valueLines[1:] {
				lines = append(lines, strings.Repeat(" ", labelWidth+2)+v)
			}
		}
		return lines

	case yamlTab:
		return strings.Split(strings.TrimRight(p.yaml, "\n"), "\n")

	case eventsTab:
		if p.eventsErr != nil {
			return []string{render(style.ErrorStyle, "Failed to load events: "+p.eventsErr.Error())}
		}
		if len(p.events) == 0 {
			return []string{render(style.Muted, "No events found")}
		}
		now := p.now()
		var lines []string
		for _, e := range p.events {
			head := fmt.Sprintf("%-8s %-24s %6s ago  x%d", e.Type, e.Reason, e.Age(now), e.Count)
			if e.IsWarning() {
				head = render(style.Yellow, head)
			}
			lines = append(lines, head)
			for _, m := range strings.Split(wordwrap.String(e.Message, max(20, p.width-4)), "\n") {
				lines = append(lines, "    "+m)
			}
		}
		return lines
	}
	return nil
}

func (p DetailPage) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, p.header(), p.tabs(), p.viewport.View())
}

func (p DetailPage) header() string {
	return style.TitleStyle.Render(p.kind.Singular+" "+p.ref.Name) + style.Muted.Render(p.ref.Namespace)
}

func (p DetailPage) tabs() string {
	var tabs []string
	for i, t := range detailTabTitles {
		if detailTab(i) == eventsTab && len(p.events) > 0 {
			t = fmt.Sprintf("%s (%d)", t, len(p.events))
		}
		if detailTab(i) == p.tab {
			tabs = append(tabs, style.ActiveTab.Render(t))
		} else {
			tabs = append(tabs, style.TabStyle.Render(t))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (p DetailPage) ContentForFile() []string {
	return p.lines(false)
}

func (p DetailPage) HighjackingInput() bool {
	return false
}

func (p DetailPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p DetailPage) withDimensions(width, height int) DetailPage {
	p.width, p.height = width, height
	p.viewport.Width = width
	// header and tabs
	p.viewport.Height = max(1, height-2)
	p.setContent()
	return p
}

func (p DetailPage) Help() string {
	local := []key.Binding{p.keyMap.NextTab, p.keyMap.PrevTab}
	if !p.kind.Managed {
		local = append(local, p.keyMap.Delete)
	}
	if p.kind.HasLogs() {
		local = append(local, p.keyMap.Logs, p.keyMap.Shell)
	}
	if p.kind.CanForward() {
		local = append(local, p.keyMap.PortForward)
	}
	return makePageHelp(p.kind.Title+" Detail", p.keyMap, local)
}
