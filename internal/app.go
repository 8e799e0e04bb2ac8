package internal

// NOTE: Searching for `// #` will walk you through the main flow of the application

import (
	"context"
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wrap"
	"github.com/orchestrix-io/orchestrix/internal/cmdline"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/constants"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/fileio"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/deleter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/k8s_log"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/portforward"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/message"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/page"
	"github.com/orchestrix-io/orchestrix/internal/prompt"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/orchestrix-io/orchestrix/internal/toast"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"strings"
	"time"
)

type Model struct {
	config            Config
	keyMap            keymap.KeyMap
	catalog           resource.Catalog
	now               func() time.Time
	width, height     int
	initialized       bool
	toast             toast.Model
	prompt            prompt.Model
	whenPromptConfirm func(Model) (Model, tea.Cmd)
	err               error
	ctx               context.Context
	cancel            context.CancelFunc
	client            *client.Client
	namespace         string
	serverVersion     string
	unreachable       error
	loader            *loader.Loader
	deleter           *deleter.Deleter
	forwards          *portforward.Manager
	pages             map[page.Type]page.GenericPage
	currentPageType   page.Type
	history           []page.Type
	logScanners       []k8s_log.LogScanner
	deleting          []model.Row
	overviewSeq       int
	commandInput      textinput.Model
	helpText          string
	topBarHeight      int // assumed constant
}

func InitialModel(c Config) Model {
	ti := textinput.New()
	ti.Prompt = cmdline.Prefix
	return Model{
		config:       c,
		keyMap:       keymap.DefaultKeyMap,
		catalog:      resource.DefaultCatalog(),
		now:          time.Now,
		commandInput: ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(constants.BatchUpdateLogsInterval, func(t time.Time) tea.Msg { return message.BatchUpdateLogsMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	dev.DebugUpdateMsg("App", msg)
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case message.CleanupCompleteMsg:
		return m, tea.Quit

	// #3: The user presses a key. Keys either act on the app, e.g. the command line or opening a detail page, or are
	// handed to the current page for its own navigation
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case message.ErrMsg:
		m.err = msg.Err
		return m, nil

	// #1: WindowSizeMsg arrives once on startup, then again every time the window is resized. The first one builds
	// the client and starts loading the startup kind
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.initialized {
			m, cmd = m.initialize()
			cmds = append(cmds, cmd)
		}
		m = m.withDimensions(msg.Width, msg.Height)
		return m, tea.Batch(cmds...)

	case command.ConnectivityCheckedMsg:
		m.unreachable = msg.Err
		m.serverVersion = msg.ServerVersion
		if msg.Err != nil {
			return m.withToast(kerrors.Title(msg.Err)+": cluster unreachable: "+msg.Err.Error(), true)
		}
		return m, nil

	// #2: Pages of the listing arrive. Results, render ticks and debounced triggers always belong to the
	// resources page, even when another page is in front
	case command.PageLoadedMsg, message.RenderBatchMsg, message.SearchDebounceMsg, message.ScrollDebounceMsg:
		return m.updatePage(page.ResourcesPageType, msg)

	case command.DetailLoadedMsg:
		return m.updatePage(page.DetailPageType, msg)

	case command.OverviewLoadedMsg:
		return m.updatePage(page.OverviewPageType, msg)

	case message.RefreshOverviewMsg:
		if msg.Seq != m.overviewSeq || m.currentPageType != page.OverviewPageType {
			return m, nil
		}
		return m, tea.Batch(m.getOverviewCmd(), m.overviewTickCmd())

	// #5: A confirmed delete runs as a batch. Progress arrives one message at a time until the batch result
	case command.DeleteStartedMsg:
		m.toast = toast.New(fmt.Sprintf("Deleting %s 0/%d", msg.Job.Kind.Name, msg.Job.Total))
		return m, command.WaitForDeleteCmd(msg.Job)

	case command.DeleteProgressMsg:
		m.toast = toast.New(fmt.Sprintf("Deleting %s %d/%d", msg.Job.Kind.Name, msg.Done, msg.Total))
		return m, command.WaitForDeleteCmd(msg.Job)

	case command.DeletedMsg:
		return m.handleDeletedMsg(msg)

	// #6: Log streams opened for the logs page. Each scanner is drained in the background and its lines are
	// buffered on the page until the next batch update
	case command.StartedLogScannersMsg:
		return m.handleStartedLogScannersMsg(msg)

	case command.GetNewLogsMsg:
		return m.handleNewLogsMsg(msg)

	case message.BatchUpdateLogsMsg:
		if lp, ok := m.pages[page.LogsPageType].(page.LogsPage); ok {
			m.pages[page.LogsPageType] = lp.Flush()
		}
		return m, tea.Tick(constants.BatchUpdateLogsInterval, func(t time.Time) tea.Msg { return message.BatchUpdateLogsMsg{} })

	case command.StoppedLogScannersMsg:
		dev.Debug("stopped log scanners", "count", msg.Count)
		return m, nil

	case command.PortForwardStartedMsg:
		m = m.withForwardsRefreshed()
		if msg.Err != nil {
			return m.withToast(fmt.Sprintf("Port-forward to %s/%s failed: %v", msg.Spec.Kind, msg.Spec.Name, msg.Err), true)
		}
		f := msg.Forward
		return m.withToast(fmt.Sprintf("Forwarding localhost:%d -> %s:%d", f.LocalPort, f.Pod, f.TargetPort), false)

	case command.PortForwardStoppedMsg:
		m = m.withForwardsRefreshed()
		if msg.Err != nil {
			return m.withToast(msg.Err.Error(), true)
		}
		return m.withToast("Stopped port-forward "+msg.Key, false)

	case command.ContextSwitchedMsg:
		return m.handleContextSwitchedMsg(msg)

	case command.ContextsListedMsg:
		if cp, ok := m.pages[page.ContextsPageType].(page.ContextsPage); ok {
			m.pages[page.ContextsPageType] = cp.WithContexts(msg.Contexts, msg.Err)
		}
		return m, nil

	case command.NamespaceCheckedMsg:
		if !msg.Exists {
			return m.withToast(fmt.Sprintf("Namespace %q not found", msg.Namespace), true)
		}
		return m.switchNamespace(msg.Namespace)

	case command.ShellExitedMsg:
		if msg.Err != nil {
			return m.withToast(fmt.Sprintf("Shell in %s exited: %v", msg.Container.StreamKey(), msg.Err), true)
		}
		return m.withToast("Shell in "+msg.Container.StreamKey()+" closed", false)

	case message.ToastMsg:
		return m.withToast(msg.Message, msg.IsError)

	case fileio.SaveCompleteMsg:
		if msg.ErrMessage != "" {
			return m.withToast(msg.ErrMessage, true)
		}
		return m.withToast(msg.SuccessMessage, false)

	case command.ContentCopiedToClipboardMsg:
		if msg.Err != nil {
			return m.withToast(fmt.Sprintf("Error copying to clipboard: %s", msg.Err.Error()), true)
		}
		return m.withToast(fmt.Sprintf("Copied %d lines of %s to clipboard", msg.Lines, msg.What), false)

	case toast.TimeoutMsg:
		m.toast, cmd = m.toast.Update(msg)
		return m, cmd
	}

	if !m.initialized {
		return m, nil
	}
	if m.commandInput.Focused() {
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.pages[m.currentPageType], cmd = m.pages[m.currentPageType].Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.err != nil {
		errString := wrap.String(kerrors.Title(m.err)+": "+m.err.Error(), m.width)
		return lipgloss.JoinVertical(
			lipgloss.Left,
			style.ErrorStyle.Render("orchestrix could not start"),
			"",
			fmt.Sprintf("%s to quit", m.keyMap.Quit.Help().Key),
			"",
			errString,
		)
	}
	if !m.initialized {
		return ""
	}
	topBar := m.topBar()
	if m.helpText != "" {
		centeredHelp := lipgloss.Place(m.width, m.height-m.topBarHeight, lipgloss.Center, lipgloss.Center, m.helpText)
		return lipgloss.JoinVertical(lipgloss.Left, topBar, centeredHelp)
	}
	if m.prompt.Visible {
		return lipgloss.JoinVertical(lipgloss.Left, topBar, m.prompt.View())
	}
	viewLines := strings.Split(topBar, "\n")
	pageView := m.pages[m.currentPageType].View()
	viewLines = append(viewLines, strings.Split(pageView, "\n")...)
	// the command line and toasts take over the bottom of the page
	if m.commandInput.Focused() {
		viewLines = replaceTail(viewLines, lipgloss.NewStyle().Width(m.width).Render(m.commandInput.View()))
	} else if toastHeight := m.toast.ViewHeight(); m.toast.Visible && toastHeight > 0 {
		viewLines = replaceTail(viewLines, m.toast.View())
	}
	return strings.Join(viewLines, "\n")
}

func replaceTail(lines []string, view string) []string {
	tail := strings.Split(view, "\n")
	keep := max(0, len(lines)-len(tail))
	return append(lines[:keep], tail...)
}

func (m Model) topBar() string {
	padding := "   "

	left := fmt.Sprintf("orchestrix %s", m.config.Version)
	if m.client != nil {
		left += padding + "ctx: " + m.client.Context()
		left += padding + "ns: " + util.OrDefault(m.namespace, "all")
	}
	switch {
	case m.unreachable != nil:
		left += padding + style.Red.Render("unreachable")
	case m.serverVersion != "":
		left += padding + "k8s " + m.serverVersion
	}
	if m.config.ReadOnly {
		left += padding + style.Inverse.Render("[READ-ONLY]")
	}

	right := fmt.Sprintf("%s to quit / %s for help", m.keyMap.Quit.Help().Key, m.keyMap.Help.Help().Key)
	toJoin := []string{left}
	if lipgloss.Width(left)+len(padding)+len(right) < m.width {
		toJoin = append(toJoin, right)
	} else {
		toJoin = append(toJoin, strings.Repeat(" ", len(right)))
	}
	return util.JoinWithEqualSpacing(m.width, toJoin...)
}

// startup, shutdown, & bubble tea builtin messages
// ---

func (m Model) withDimensions(width, height int) Model {
	contentHeight := height - m.topBarHeight
	m.prompt.SetWidthAndHeight(width, contentHeight)
	m.commandInput.Width = max(1, width-2)
	for k, p := range m.pages {
		m.pages[k] = p.WithDimensions(width, contentHeight)
	}
	return m
}

func (m Model) contentHeight() int {
	return m.height - m.topBarHeight
}

// #7: The user exits. Loads in flight are canceled, port-forwards and log streams are closed before quitting
func (m Model) cleanupCmd() tea.Cmd {
	return func() tea.Msg {
		if m.loader != nil {
			m.loader.CancelAll()
		}
		if m.forwards != nil {
			m.forwards.StopAll()
		}
		for _, ls := range m.logScanners {
			ls.Cancel()
		}
		if m.cancel != nil {
			m.cancel()
		}
		return message.CleanupCompleteMsg{}
	}
}

func (m Model) withToast(text string, isError bool) (Model, tea.Cmd) {
	t := toast.New(text)
	if isError {
		t = toast.NewError(text)
	}
	var cmd tea.Cmd
	m.toast, cmd = t.Show(constants.ToastDuration)
	return m, cmd
}

func (m Model) updatePage(t page.Type, msg tea.Msg) (Model, tea.Cmd) {
	p, ok := m.pages[t]
	if !ok {
		return m, nil
	}
	var cmd tea.Cmd
	m.pages[t], cmd = p.Update(msg)
	return m, cmd
}

// page navigation
// ---

// pushPage shows t on top of the current page; esc returns to the current one
func (m Model) pushPage(t page.Type, p page.GenericPage) Model {
	if m.currentPageType != t {
		m.history = append(m.history, m.currentPageType)
	}
	m.pages[t] = p.WithDimensions(m.width, m.contentHeight())
	m.currentPageType = t
	return m
}

func (m Model) goBack() (Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	left := m.currentPageType
	m.currentPageType = m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	if left == page.LogsPageType && !m.inHistory(page.LogsPageType) {
		m, cmd = m.stopLogs()
		delete(m.pages, page.LogsPageType)
	}
	return m, cmd
}

func (m Model) inHistory(t page.Type) bool {
	for _, h := range m.history {
		if h == t {
			return true
		}
	}
	return false
}

func (m Model) resourcesPage() (page.ResourcesPage, bool) {
	p, ok := m.pages[page.ResourcesPageType].(page.ResourcesPage)
	return p, ok
}

// showKind replaces the resources page with a fresh listing of kind in the current namespace
func (m Model) showKind(kind resource.Kind) (Model, tea.Cmd) {
	namespace := m.namespace
	if !kind.Namespaced {
		namespace = ""
	}
	session := loader.NewSession(m.client.Context(), kind, namespace, m.config.PageSize)
	ctx, l := m.ctx, m.loader
	load := func(req loader.Request, generation int) tea.Cmd {
		return command.LoadPageCmd(ctx, l, req, generation)
	}
	if prev, ok := m.resourcesPage(); ok {
		m.loader.Cancel(prev.FlightRequest())
	}
	rp := page.NewResourcesPage(m.keyMap, session, load, m.now, m.width, m.contentHeight())

	var cmd, stopCmd tea.Cmd
	rp, cmd = rp.Reload()
	if m.currentPageType == page.LogsPageType || m.inHistory(page.LogsPageType) {
		m, stopCmd = m.stopLogs()
		delete(m.pages, page.LogsPageType)
	}
	m.pages[page.ResourcesPageType] = rp
	m.currentPageType = page.ResourcesPageType
	m.history = nil
	return m, tea.Batch(cmd, stopCmd)
}

func (m Model) reloadResources() (Model, tea.Cmd) {
	rp, ok := m.resourcesPage()
	if !ok {
		return m, nil
	}
	m.loader.Invalidate(m.client.Context(), rp.Kind().Name)
	var cmd tea.Cmd
	m.pages[page.ResourcesPageType], cmd = rp.Reload()
	return m, cmd
}

func (m Model) openDetail(kind resource.Kind, ref model.ObjectRef) (Model, tea.Cmd) {
	dp := page.NewDetailPage(m.keyMap, kind, ref, m.now, m.width, m.contentHeight())
	m = m.pushPage(page.DetailPageType, dp)
	return m, command.GetDetailCmd(m.ctx, m.client.Dynamic(), m.client.Clientset(), kind, ref, m.now())
}

func (m Model) openLogs(pod model.ObjectRef) (Model, tea.Cmd) {
	var stopCmd tea.Cmd
	m, stopCmd = m.stopLogs()
	lp := page.NewLogsPage(m.keyMap, pod, m.width, m.contentHeight())
	m = m.pushPage(page.LogsPageType, lp)
	opts := client.LogOptions{TailLines: m.config.LogTail, Follow: true}
	return m, tea.Batch(stopCmd, command.StartLogScannersCmd(m.ctx, m.client, pod, opts))
}

func (m Model) stopLogs() (Model, tea.Cmd) {
	if len(m.logScanners) == 0 {
		return m, nil
	}
	scanners := m.logScanners
	m.logScanners = nil
	return m, command.StopLogScannersCmd(scanners)
}

func (m Model) openOverview() (Model, tea.Cmd) {
	m.overviewSeq++
	op := page.NewOverviewPage(m.keyMap, m.now, m.width, m.contentHeight())
	m = m.pushPage(page.OverviewPageType, op)
	return m, tea.Batch(m.getOverviewCmd(), m.overviewTickCmd())
}

func (m Model) getOverviewCmd() tea.Cmd {
	return command.GetOverviewCmd(m.ctx, m.client.Clientset(), m.namespace, m.now())
}

func (m Model) overviewTickCmd() tea.Cmd {
	seq := m.overviewSeq
	return tea.Tick(constants.OverviewRefreshInterval, func(time.Time) tea.Msg {
		return message.RefreshOverviewMsg{Seq: seq}
	})
}

func (m Model) openForwards() Model {
	fp := page.NewPortForwardsPage(m.keyMap, m.now, m.width, m.contentHeight())
	m = m.pushPage(page.PortForwardsPageType, fp)
	return m.withForwardsRefreshed()
}

func (m Model) withForwardsRefreshed() Model {
	if fp, ok := m.pages[page.PortForwardsPageType].(page.PortForwardsPage); ok {
		m.pages[page.PortForwardsPageType] = fp.WithForwards(m.forwards.List())
	}
	return m
}

// tea.KeyMsg handling
// ---

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	dev.Debug("App keyMsg", "key", msg.String())
	defer dev.Debug("App keyMsg complete")

	var cmd tea.Cmd

	if key.Matches(msg, m.keyMap.Quit) {
		return m, m.cleanupCmd()
	}

	// ignore key messages other than exit if an error is present
	if m.err != nil || !m.initialized {
		return m, nil
	}

	// if help text visible, pressing any key will dismiss it
	if m.helpText != "" {
		m.helpText = ""
		return m, nil
	}

	// adjust for buffered input from held keys, e.g "kk" or "jjj"
	msg.Runes = normalizeRunes(msg)

	// if prompt is visible, only allow prompt actions
	if m.prompt.Visible {
		return m.handlePromptKeyMsg(msg)
	}

	if m.commandInput.Focused() {
		return m.handleCommandKeyMsg(msg)
	}

	// if current page highjacking input, e.g. editing a focused filter, update current page & return
	current := m.pages[m.currentPageType]
	if current.HighjackingInput() {
		m.pages[m.currentPageType], cmd = current.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keyMap.Command):
		m.commandInput.SetValue("")
		cmd = m.commandInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keyMap.Help):
		m.helpText = current.Help()
		return m, nil

	case key.Matches(msg, m.keyMap.Save):
		return m, fileio.GetSaveCommand(m.saveName(), current.ContentForFile())

	case key.Matches(msg, m.keyMap.Copy):
		return m, command.CopyContentToClipboardCmd(m.currentPageType.String(), current.ContentForFile())

	case key.Matches(msg, m.keyMap.Back):
		if f, ok := current.(interface{ HasFilterText() bool }); ok && f.HasFilterText() {
			break
		}
		return m.goBack()

	case key.Matches(msg, m.keyMap.Overview) && m.currentPageType != page.OverviewPageType:
		return m.openOverview()
	}

	switch m.currentPageType {
	case page.ResourcesPageType:
		if handled, next, cmd := m.handleResourcesPageKeyMsg(msg); handled {
			return next, cmd
		}
	case page.DetailPageType:
		if handled, next, cmd := m.handleDetailPageKeyMsg(msg); handled {
			return next, cmd
		}
	case page.KindsPageType:
		if key.Matches(msg, m.keyMap.Enter) {
			if kind, ok := m.pages[page.KindsPageType].(page.KindsPage).SelectedKind(); ok {
				return m.showKind(kind)
			}
			return m, nil
		}
	case page.ContextsPageType:
		if key.Matches(msg, m.keyMap.Enter) {
			if c, ok := m.pages[page.ContextsPageType].(page.ContextsPage).SelectedContext(); ok {
				return m.runCommand(cmdline.Command{Type: cmdline.TypeContext, Context: c.Name})
			}
			return m, nil
		}
	case page.PortForwardsPageType:
		if key.Matches(msg, m.keyMap.Delete) {
			if k, ok := m.pages[page.PortForwardsPageType].(page.PortForwardsPage).SelectedKey(); ok {
				return m, command.StopPortForwardCmd(m.forwards, k)
			}
			return m, nil
		}
	case page.OverviewPageType:
		if key.Matches(msg, m.keyMap.Reload) {
			return m, m.getOverviewCmd()
		}
	}

	m.pages[m.currentPageType], cmd = current.Update(msg)
	return m, cmd
}

func (m Model) saveName() string {
	name := m.currentPageType.String()
	switch p := m.pages[m.currentPageType].(type) {
	case page.ResourcesPage:
		name = p.Kind().Name + "_" + util.OrDefault(p.Namespace(), "all")
	case page.DetailPage:
		name = p.Ref().Kind + "_" + p.Ref().Name
	case page.LogsPage:
		name = "logs_" + p.Pod().Name
	}
	return name
}

func (m Model) handleResourcesPageKeyMsg(msg tea.KeyMsg) (bool, Model, tea.Cmd) {
	rp, _ := m.resourcesPage()
	kind := rp.Kind()

	if key.Matches(msg, m.keyMap.Reload) {
		m, cmd := m.reloadResources()
		return true, m, cmd
	}
	if key.Matches(msg, m.keyMap.Delete) {
		m, cmd := m.confirmDelete(kind, rp.Targets())
		return true, m, cmd
	}

	row, ok := rp.SelectedRow()
	switch {
	case !ok:
		return false, m, nil
	case key.Matches(msg, m.keyMap.Enter):
		m, cmd := m.openDetail(kind, row.Ref())
		return true, m, cmd
	}
	m, cmd, handled := m.handleObjectAction(msg, kind, row.Ref())
	return handled, m, cmd
}

func (m Model) handleDetailPageKeyMsg(msg tea.KeyMsg) (bool, Model, tea.Cmd) {
	dp := m.pages[page.DetailPageType].(page.DetailPage)
	switch {
	case key.Matches(msg, m.keyMap.Reload):
		return true, m, command.GetDetailCmd(m.ctx, m.client.Dynamic(), m.client.Clientset(), dp.Kind(), dp.Ref(), m.now())
	case key.Matches(msg, m.keyMap.Delete):
		row := model.Row{Kind: dp.Ref().Kind, Namespace: dp.Ref().Namespace, Name: dp.Ref().Name}
		m, cmd := m.confirmDelete(dp.Kind(), []model.Row{row})
		return true, m, cmd
	}
	m, cmd, handled := m.handleObjectAction(msg, dp.Kind(), dp.Ref())
	return handled, m, cmd
}

// handleObjectAction runs the keys that act on a single object, shared by the resources and detail pages
func (m Model) handleObjectAction(msg tea.KeyMsg, kind resource.Kind, ref model.ObjectRef) (Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keyMap.Logs) && kind.HasLogs():
		m, cmd := m.openLogs(ref)
		return m, cmd, true

	case key.Matches(msg, m.keyMap.Shell) && kind.HasLogs():
		if m.config.ReadOnly {
			m, cmd := m.withToast("Read-only mode: shell is disabled", true)
			return m, cmd, true
		}
		// #8: The shell takes over the terminal until it exits
		return m, command.ShellCmd(m.ctx, m.client, ref), true

	case key.Matches(msg, m.keyMap.PortForward) && kind.CanForward():
		if m.config.ReadOnly {
			m, cmd := m.withToast("Read-only mode: port-forward is disabled", true)
			return m, cmd, true
		}
		// the ports are typed on the command line
		m.commandInput.SetValue("pf ")
		m.commandInput.CursorEnd()
		cmd := m.commandInput.Focus()
		return m, cmd, true
	}
	return m, nil, false
}

// #4: Deleting asks for confirmation first, naming the object or the number of selected objects
func (m Model) confirmDelete(kind resource.Kind, targets []model.Row) (Model, tea.Cmd) {
	if m.config.ReadOnly {
		return m.withToast("Read-only mode: delete is disabled", true)
	}
	if kind.Managed {
		return m.withToast(kind.Title+" are managed outside the cluster API and cannot be deleted here", true)
	}
	if len(targets) == 0 {
		return m, nil
	}
	text := []string{fmt.Sprintf("Delete %d %s?", len(targets), kind.Name)}
	if len(targets) == 1 {
		text = []string{fmt.Sprintf("Delete %s %s", kind.Singular, targets[0].Name)}
		if kind.Namespaced {
			text = append(text, fmt.Sprintf("in namespace %s?", targets[0].Namespace))
		} else {
			text[0] += "?"
		}
	}
	m.prompt = prompt.New(true, m.width, m.contentHeight(), text)
	m.whenPromptConfirm = func(m Model) (Model, tea.Cmd) {
		refs := make([]model.ObjectRef, 0, len(targets))
		for _, t := range targets {
			refs = append(refs, t.Ref())
		}
		m.deleting = targets
		return m, command.StartDeleteCmd(m.ctx, m.deleter, kind, refs)
	}
	return m, nil
}

func (m Model) handlePromptKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	// escape key cancels prompt
	if key.Matches(msg, m.keyMap.Back) {
		m.prompt.Visible = false
		m.whenPromptConfirm = nil
		return m, nil
	}

	// enter key confirms prompt and optionally runs whenPromptConfirm function
	if key.Matches(msg, m.keyMap.Enter) {
		confirm := m.whenPromptConfirm
		m.prompt.Visible = false
		m.whenPromptConfirm = nil
		if m.prompt.ProceedIsSelected() && confirm != nil {
			m, cmd = confirm(m)
		}
		return m, cmd
	}

	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) handleCommandKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keyMap.Back):
		m.commandInput.Blur()
		m.commandInput.SetValue("")
		return m, nil
	case key.Matches(msg, m.keyMap.Enter):
		input := m.commandInput.Value()
		m.commandInput.Blur()
		m.commandInput.SetValue("")
		c, err := cmdline.Parse(input, m.catalog)
		if err != nil {
			return m.withToast(err.Error(), true)
		}
		return m.runCommand(c)
	}
	m.commandInput, cmd = m.commandInput.Update(msg)
	return m, cmd
}

func (m Model) runCommand(c cmdline.Command) (Model, tea.Cmd) {
	dev.Debug("running command", "type", int(c.Type))
	switch c.Type {
	case cmdline.TypeResource:
		return m.showKind(c.Kind)

	case cmdline.TypeNamespace:
		if c.AllNamespaces {
			return m.switchNamespace("")
		}
		return m, command.CheckNamespaceCmd(m.ctx, m.client, c.Namespace, constants.NamespaceCheckTimeout)

	case cmdline.TypeContexts:
		cp := page.NewContextsPage(m.keyMap, m.client.Context(), m.width, m.contentHeight())
		m = m.pushPage(page.ContextsPageType, cp)
		return m, command.ListContextsCmd(m.config.KubeConfigPath)

	case cmdline.TypeContext:
		opts := m.clientOptions(c.Context)
		// the namespace of the new context applies unless all namespaces are shown
		opts.Namespace = ""
		opts.AllNamespaces = m.namespace == ""
		m, cmd := m.withToast("Switching to context "+c.Context+"...", false)
		return m, tea.Batch(cmd, command.SwitchContextCmd(m.ctx, opts, constants.ContextSwitchTimeout))

	case cmdline.TypePortForward:
		return m.startPortForward(c)

	case cmdline.TypeOverview:
		if m.currentPageType == page.OverviewPageType {
			return m, m.getOverviewCmd()
		}
		return m.openOverview()

	case cmdline.TypeForwards:
		return m.openForwards(), nil

	case cmdline.TypeKinds:
		kp := page.NewKindsPage(m.keyMap, m.catalog, m.width, m.contentHeight())
		return m.pushPage(page.KindsPageType, kp), nil

	case cmdline.TypeQuit:
		return m, m.cleanupCmd()
	}
	return m, nil
}

// switchNamespace lists the current kind again in namespace, all namespaces when empty
func (m Model) switchNamespace(namespace string) (Model, tea.Cmd) {
	m.namespace = namespace
	m.client = m.client.WithNamespace(namespace)
	rp, ok := m.resourcesPage()
	if !ok {
		return m, nil
	}
	return m.showKind(rp.Kind())
}

// startPortForward forwards to the object under the cursor or shown in detail
func (m Model) startPortForward(c cmdline.Command) (Model, tea.Cmd) {
	if m.config.ReadOnly {
		return m.withToast("Read-only mode: port-forward is disabled", true)
	}
	var (
		kind resource.Kind
		ref  model.ObjectRef
		ok   bool
	)
	switch m.currentPageType {
	case page.DetailPageType:
		dp := m.pages[page.DetailPageType].(page.DetailPage)
		kind, ref, ok = dp.Kind(), dp.Ref(), true
	case page.ResourcesPageType:
		rp, _ := m.resourcesPage()
		var row model.Row
		row, ok = rp.SelectedRow()
		kind, ref = rp.Kind(), row.Ref()
	}
	if !ok || !kind.CanForward() {
		return m.withToast("Select a pod or service to port-forward to", true)
	}
	spec := portforward.Spec{
		Kind:       kind.Name,
		Namespace:  ref.Namespace,
		Name:       ref.Name,
		LocalPort:  c.LocalPort,
		RemotePort: c.RemotePort,
	}
	return m, command.StartPortForwardCmd(m.ctx, m.forwards, spec)
}

// message handling
// ---

func (m Model) handleDeletedMsg(msg command.DeletedMsg) (Model, tea.Cmd) {
	var cmds []tea.Cmd
	result := msg.Result

	removed := make(map[string]bool)
	deletedRefs := make(map[model.ObjectRef]bool)
	for _, r := range result.Succeeded {
		deletedRefs[r.Target] = true
	}
	for _, row := range m.deleting {
		if deletedRefs[row.Ref()] {
			removed[row.Key()] = true
		}
	}
	m.deleting = nil

	var cmd tea.Cmd
	m, cmd = m.withToast(result.Summary(msg.Kind.Title), len(result.Failed) > 0)
	cmds = append(cmds, cmd)

	if m.currentPageType == page.DetailPageType {
		if dp := m.pages[page.DetailPageType].(page.DetailPage); deletedRefs[dp.Ref()] {
			m, cmd = m.goBack()
			cmds = append(cmds, cmd)
		}
	}

	// rows go away right away, the reload then confirms what is left
	if rp, ok := m.resourcesPage(); ok && rp.Kind().Name == msg.Kind.Name && len(result.Succeeded) > 0 {
		rp, cmd = rp.WithRowsRemoved(removed)
		m.pages[page.ResourcesPageType] = rp
		cmds = append(cmds, cmd)
		m, cmd = m.reloadResources()
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleStartedLogScannersMsg(msg command.StartedLogScannersMsg) (Model, tea.Cmd) {
	lp, ok := m.pages[page.LogsPageType].(page.LogsPage)
	if !ok || lp.Pod() != msg.Pod {
		// the logs page was left or replaced while the streams opened
		return m, command.StopLogScannersCmd(msg.LogScanners)
	}
	if msg.Err != nil {
		return m.withToast(fmt.Sprintf("Failed to stream logs of %s: %v", msg.Pod.Name, msg.Err), true)
	}

	var cmds []tea.Cmd
	m.logScanners = append(m.logScanners, msg.LogScanners...)
	for _, ls := range msg.LogScanners {
		lp = lp.WithStreamStarted(ls.Container.Container)
		cmds = append(cmds, command.GetNextLogsCmd(ls, constants.SingleContainerLogCollectionDuration))
	}
	m.pages[page.LogsPageType] = lp
	return m, tea.Batch(cmds...)
}

func (m Model) handleNewLogsMsg(msg command.GetNewLogsMsg) (Model, tea.Cmd) {
	lp, ok := m.pages[page.LogsPageType].(page.LogsPage)
	container := msg.LogScanner.Container
	if !ok || !m.isActiveLogScanner(msg.LogScanner) {
		// a stream that was stopped when its page was left or replaced
		return m, nil
	}
	lp = lp.WithPendingLogs(msg.NewLogs)
	var cmd tea.Cmd
	if msg.DoneScanning {
		lp = lp.WithStreamEnded(container.Container, msg.Err)
	} else {
		cmd = command.GetNextLogsCmd(msg.LogScanner, constants.SingleContainerLogCollectionDuration)
	}
	m.pages[page.LogsPageType] = lp
	return m, cmd
}

func (m Model) isActiveLogScanner(ls k8s_log.LogScanner) bool {
	for _, active := range m.logScanners {
		if active.Equals(ls) {
			return true
		}
	}
	return false
}

func (m Model) handleContextSwitchedMsg(msg command.ContextSwitchedMsg) (Model, tea.Cmd) {
	if msg.Err != nil {
		return m.withToast("Context switch failed: "+msg.Err.Error(), true)
	}
	var cmds []tea.Cmd

	// nothing of the previous cluster outlives the switch
	m.loader.CancelAll()
	m.forwards.StopAll()
	var cmd tea.Cmd
	m, cmd = m.stopLogs()
	cmds = append(cmds, cmd)

	m = m.withClient(msg.Client)
	m.serverVersion = msg.ServerVersion
	m.unreachable = nil
	for t := range m.pages {
		if t != page.ResourcesPageType {
			delete(m.pages, t)
		}
	}

	kind := m.catalog.MustLookup(m.config.Resource)
	if rp, ok := m.resourcesPage(); ok {
		kind = rp.Kind()
	}
	m, cmd = m.showKind(kind)
	cmds = append(cmds, cmd)
	m, cmd = m.withToast("Switched to context "+msg.Client.Context(), false)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// normalizeRunes adjusts for buffered key presses
func normalizeRunes(msg tea.KeyMsg) []rune {
	if len(msg.Runes) > 1 {
		if strings.Trim(msg.String(), "j") == "" {
			return []rune{'j'}
		}
		if strings.Trim(msg.String(), "k") == "" {
			return []rune{'k'}
		}
	}
	return msg.Runes
}
