package page

import (
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestrix-io/orchestrix/internal/constants"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/filter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/k8s_log"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"sort"
	"strings"
)

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// LogsPage shows the merged logs of every container of a pod. New logs are buffered and only shown on Flush, so
// that a chatty pod redraws the page at a fixed cadence rather than per line.
type LogsPage struct {
	keyMap         keymap.KeyMap
	pod            model.ObjectRef
	logs           []k8s_log.Log
	pending        []k8s_log.Log
	dropped        int
	streams        map[string]string
	paused         bool
	showTimestamps bool
	filter         filter.Model
	viewport       viewport.Model
	width          int
	height         int
}

// assert LogsPage implements GenericPage
var _ GenericPage = LogsPage{}

func NewLogsPage(km keymap.KeyMap, pod model.ObjectRef, width, height int) LogsPage {
	vp := viewport.New(width, height)
	vp.KeyMap = viewportKeyMap(km)
	p := LogsPage{
		keyMap:   km,
		pod:      pod,
		streams:  make(map[string]string),
		filter:   filter.New(km),
		viewport: vp,
	}
	return p.withDimensions(width, height)
}

func (p LogsPage) Pod() model.ObjectRef {
	return p.pod
}

func (p LogsPage) Paused() bool {
	return p.paused
}

func (p LogsPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("LogsPage", msg)
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		if p.filter.Focused() {
			switch {
			case key.Matches(msg, p.filter.KeyMap.Forward):
				p.filter.Blur()
			case key.Matches(msg, p.filter.KeyMap.Back):
				p.filter.BlurAndClear()
				p.render()
			default:
				p.filter, cmd = p.filter.Update(msg)
				p.render()
			}
			return p, cmd
		}

		switch {
		case key.Matches(msg, p.keyMap.Filter):
			cmd = p.filter.Focus()
			return p, cmd
		case key.Matches(msg, p.keyMap.Back) && p.filter.HasFilterText():
			p.filter.BlurAndClear()
			p.render()
			return p, nil
		case key.Matches(msg, p.keyMap.TogglePause):
			p.paused = !p.paused
			if !p.paused {
				p = p.Flush()
			}
			return p, nil
		case key.Matches(msg, p.keyMap.Timestamps):
			p.showTimestamps = !p.showTimestamps
			p.render()
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

// WithPendingLogs buffers logs until the next Flush
func (p LogsPage) WithPendingLogs(logs []k8s_log.Log) LogsPage {
	p.pending = append(p.pending, logs...)
	if over := len(p.pending) - constants.MaxLogLines; over > 0 {
		p.dropped += over
		p.pending = p.pending[over:]
	}
	return p
}

// Flush moves buffered logs onto the page unless paused, dropping the oldest beyond the line cap
func (p LogsPage) Flush() LogsPage {
	if p.paused || len(p.pending) == 0 {
		return p
	}
	// streams of different containers interleave by timestamp
	sort.SliceStable(p.pending, func(i, j int) bool { return p.pending[i].Timestamp.Before(p.pending[j].Timestamp) })
	p.logs = append(p.logs, p.pending...)
	p.pending = nil
	if over := len(p.logs) - constants.MaxLogLines; over > 0 {
		p.dropped += over
		p.logs = append([]k8s_log.Log(nil), p.logs[over:]...)
	}
	p.render()
	return p
}

// WithStreamStarted records the containers being streamed
func (p LogsPage) WithStreamStarted(container string) LogsPage {
	p.streams[container] = "streaming"
	return p
}

// WithStreamEnded marks a container stream as finished, with err if it broke off
func (p LogsPage) WithStreamEnded(container string, err error) LogsPage {
	status := "ended"
	if err != nil {
		status = "error: " + err.Error()
	}
	p.streams[container] = status
	return p
}

func (p *LogsPage) render() {
	atBottom := p.viewport.AtBottom() || len(p.logs) == 0
	lines := p.visibleLines(true)
	if len(lines) == 0 {
		p.viewport.SetContent(style.Muted.Render("No logs yet"))
		return
	}
	p.viewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		p.viewport.GotoBottom()
	}
}

func (p LogsPage) visibleLines(styled bool) []string {
	needle := strings.ToLower(strings.TrimSpace(p.filter.Value()))
	multiContainer := len(p.streams) > 1
	var lines []string
	for _, l := range p.logs {
		if needle != "" && !strings.Contains(strings.ToLower(l.Content), needle) {
			continue
		}
		var prefix []string
		if p.showTimestamps {
			ts := l.Timestamp.Local().Format(logTimestampFormat)
			if styled {
				ts = style.Green.Render(ts)
			}
			prefix = append(prefix, ts)
		}
		if multiContainer {
			name := l.Container.Container
			if styled {
				name = style.Accent.Render(name)
			}
			prefix = append(prefix, name)
		}
		prefix = append(prefix, l.Content)
		lines = append(lines, strings.Join(prefix, " "))
	}
	return lines
}

func (p LogsPage) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, p.header(), p.filter.View(), p.viewport.View())
}

func (p LogsPage) header() string {
	title := style.TitleStyle.Render("Logs " + p.pod.Name)
	info := []string{p.pod.Namespace, fmt.Sprintf("%d lines", len(p.logs))}
	if p.dropped > 0 {
		info = append(info, fmt.Sprintf("%d dropped", p.dropped))
	}
	var containers []string
	for c := range p.streams {
		containers = append(containers, c)
	}
	sort.Strings(containers)
	for _, c := range containers {
		if status := p.streams[c]; status != "streaming" {
			info = append(info, c+" "+status)
		}
	}
	view := title + style.Muted.Render(strings.Join(info, " · "))
	if p.paused {
		view += " " + style.Inverse.Render("[PAUSED]")
	}
	return view
}

func (p LogsPage) ContentForFile() []string {
	return p.visibleLines(false)
}

// HasFilterText is true while a search narrows the page, in which case esc clears it rather than going back
func (p LogsPage) HasFilterText() bool {
	return p.filter.HasFilterText()
}

func (p LogsPage) HighjackingInput() bool {
	return p.filter.Focused()
}

func (p LogsPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p LogsPage) withDimensions(width, height int) LogsPage {
	p.width, p.height = width, height
	p.viewport.Width = width
	// header and filter
	p.viewport.Height = max(1, height-2)
	p.render()
	return p
}

func (p LogsPage) Help() string {
	return makePageHelp("Logs", p.keyMap, []key.Binding{
		p.keyMap.TogglePause,
		p.keyMap.Timestamps,
	})
}
