package page

import (
	"fmt"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/constants"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/filter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/message"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"github.com/orchestrix-io/orchestrix/internal/search"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/orchestrix-io/orchestrix/internal/util"
	"strings"
	"time"
)

const (
	emptyTitle    = "No resources found"
	emptySubtitle = "Connect to a cluster or check your filters"
	markedSymbol  = "●"
	skeletonCell  = "░░░░░░░░"
	maxColWidth   = 48
)

// LoadPageFunc issues the load of one page; the generation must come back in the resulting command.PageLoadedMsg
type LoadPageFunc func(req loader.Request, generation int) tea.Cmd

// ResourcesPage is the incremental table of one kind. The first page is shown as soon as it arrives, further
// pages are requested as the cursor nears the end, and rows are handed to the table in batches so a large page
// never blocks a frame.
type ResourcesPage struct {
	keyMap         keymap.KeyMap
	session        loader.Session
	load           LoadPageFunc
	now            func() time.Time
	table          table.Model
	filter         filter.Model
	compiled       search.Filter
	index          *search.Index
	indexGen       int
	indexed        int
	searchDebounce search.Debouncer
	scrollDebounce search.Debouncer
	// visible are the session rows passing the search, of which the first rendered are in the table
	visible   []model.Row
	rendered  int
	renderGen int
	rendering bool
	marked    map[string]bool
	stats     loader.Stats
	width     int
	height    int
}

// assert ResourcesPage implements GenericPage
var _ GenericPage = ResourcesPage{}

func NewResourcesPage(km keymap.KeyMap, session loader.Session, load LoadPageFunc, now func() time.Time, width, height int) ResourcesPage {
	t := table.New(
		table.WithFocused(true),
		table.WithStyles(style.Table()),
		table.WithKeyMap(keymap.TableKeyMap(km)),
	)
	p := ResourcesPage{
		keyMap:         km,
		session:        session,
		load:           load,
		now:            now,
		table:          t,
		filter:         filter.New(km),
		searchDebounce: search.NewDebouncer(search.SearchDelay),
		scrollDebounce: search.NewDebouncer(search.ScrollDelay),
		marked:         make(map[string]bool),
	}
	return p.withDimensions(width, height)
}

func (p ResourcesPage) Kind() resource.Kind {
	return p.session.Kind
}

func (p ResourcesPage) Namespace() string {
	return p.session.Namespace
}

// FlightRequest identifies the loads of this page, e.g. to cancel them when the page is replaced
func (p ResourcesPage) FlightRequest() loader.Request {
	return loader.Request{Context: p.session.Context, Kind: p.session.Kind, Namespace: p.session.Namespace}
}

// Reload starts the listing over from the first page
func (p ResourcesPage) Reload() (ResourcesPage, tea.Cmd) {
	req, gen := p.session.Reload()
	p.marked = make(map[string]bool)
	p.syncTable()
	return p, p.load(req, gen)
}

func (p ResourcesPage) Update(msg tea.Msg) (GenericPage, tea.Cmd) {
	dev.DebugUpdateMsg("ResourcesPage", msg)
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case command.PageLoadedMsg:
		return p.handlePageLoaded(msg)

	case message.RenderBatchMsg:
		if msg.Generation != p.renderGen {
			return p, nil
		}
		p.rendering = false
		p.rendered = min(len(p.visible), p.rendered+constants.RenderBatchSize)
		p.syncTable()
		cmd := p.continueRendering()
		return p, cmd

	case message.SearchDebounceMsg:
		if !p.searchDebounce.IsLatest(msg.Seq) {
			return p, nil
		}
		cmd := p.applySearch()
		return p, cmd

	case message.ScrollDebounceMsg:
		if !p.scrollDebounce.IsLatest(msg.Seq) || !p.nearEnd() {
			return p, nil
		}
		req, gen, ok := p.session.LoadMore()
		if !ok {
			return p, nil
		}
		dev.Debug("loading more", "kind", p.session.Kind.Name, "loaded", len(p.session.Rows()))
		return p, p.load(req, gen)

	case tea.KeyMsg:
		if p.filter.Focused() {
			return p.handleFilterKey(msg)
		}
		switch {
		case key.Matches(msg, p.keyMap.Filter):
			cmd := p.filter.Focus()
			return p, cmd
		case key.Matches(msg, p.keyMap.Back) && p.filter.HasFilterText():
			p.filter.BlurAndClear()
			cmd := p.applySearch()
			return p, cmd
		case key.Matches(msg, p.keyMap.Select):
			if row, ok := p.SelectedRow(); ok {
				p.toggleMarked(row)
				p.table.MoveDown(1)
				p.syncTable()
			}
			return p, nil
		case key.Matches(msg, p.keyMap.SelectAll):
			p.toggleAllMarked()
			p.syncTable()
			return p, nil
		}

		prev := p.table.Cursor()
		p.table, cmd = p.table.Update(msg)
		cmds = append(cmds, cmd)
		if p.table.Cursor() != prev && p.nearEnd() && p.session.CanLoadMore() {
			cmds = append(cmds, p.scrollDebounce.Trigger(func(seq int) tea.Msg { return message.ScrollDebounceMsg{Seq: seq} }))
		}
		return p, tea.Batch(cmds...)
	}
	return p, nil
}

func (p ResourcesPage) handleFilterKey(msg tea.KeyMsg) (GenericPage, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, p.filter.KeyMap.Forward):
		p.filter.Blur()
		// apply right away rather than waiting out the debounce
		cmd := p.applySearch()
		return p, cmd
	case key.Matches(msg, p.filter.KeyMap.Back):
		p.filter.BlurAndClear()
		cmd := p.applySearch()
		return p, cmd
	}
	prev := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	if p.filter.Value() == prev {
		return p, cmd
	}
	debounce := p.searchDebounce.Trigger(func(seq int) tea.Msg { return message.SearchDebounceMsg{Seq: seq} })
	return p, tea.Batch(cmd, debounce)
}

func (p ResourcesPage) handlePageLoaded(msg command.PageLoadedMsg) (GenericPage, tea.Cmd) {
	kind := p.session.Kind
	if !p.session.Owns(msg.Page.Request) {
		// a listing of the kind or namespace shown before this page
		dev.Debug("dropping page of another listing", "kind", msg.Page.Request.Kind.Name, "namespace", msg.Page.Request.Namespace)
		return p, nil
	}
	p.stats = msg.Stats
	if msg.Err != nil {
		switch p.session.Fail(msg.Generation, msg.Err) {
		case loader.FailShowError:
			dev.Debug("load failed", "kind", kind.Name, "err", msg.Err.Error())
			p.syncTable()
		case loader.FailNotify:
			return p, toastCmd(kerrors.LoadMessage(msg.Err, kind.Title), true)
		case loader.FailReload:
			dev.Debug("continue token expired, reloading", "kind", kind.Name)
			return p.Reload()
		}
		return p, nil
	}
	if !p.session.Apply(msg.Generation, msg.Page) {
		dev.Debug("dropping superseded page", "kind", kind.Name, "generation", msg.Generation)
		return p, nil
	}
	cmd := p.refresh(!msg.Page.Request.IsLoadMore())
	return p, cmd
}

// refresh recomputes the visible rows. A reset restarts batch rendering from the top, otherwise rows already in
// the table stay and only the new ones are batched in.
func (p *ResourcesPage) refresh(reset bool) tea.Cmd {
	p.visible = p.searchRows(p.session.Rows())
	if reset {
		p.renderGen++
		p.rendering = false
		p.rendered = 0
		p.table.GotoTop()
	}
	p.rendered = min(len(p.visible), max(p.rendered, constants.RenderBatchSize))
	p.syncTable()
	return p.continueRendering()
}

func (p *ResourcesPage) continueRendering() tea.Cmd {
	if p.rendering || p.rendered >= len(p.visible) {
		return nil
	}
	p.rendering = true
	gen := p.renderGen
	return tea.Tick(constants.RenderBatchInterval, func(time.Time) tea.Msg {
		return message.RenderBatchMsg{Generation: gen}
	})
}

func (p *ResourcesPage) applySearch() tea.Cmd {
	value := p.filter.Value()
	f, err := search.Compile(value, p.now)
	p.filter.SetErr(err)
	if err != nil {
		// keep showing the results of the last valid query
		return nil
	}
	if strings.TrimSpace(value) == "" {
		f = nil
	}
	p.compiled = f
	return p.refresh(true)
}

// searchRows narrows rows by the current query. Several words or quoted phrases are ranked with the term index,
// a single word is a plain substring match in row order.
func (p *ResourcesPage) searchRows(rows []model.Row) []model.Row {
	if p.compiled == nil {
		return rows
	}
	query := strings.TrimSpace(p.compiled.Query())
	if strings.HasPrefix(query, search.ExpressionPrefix) || !strings.ContainsAny(query, " \"") {
		return search.Apply(p.compiled, rows)
	}

	if p.index == nil || p.indexGen != p.session.Generation() || len(rows) < p.indexed {
		p.index = search.NewIndex(rows)
		p.indexGen = p.session.Generation()
	} else if len(rows) > p.indexed {
		p.index.Add(rows[p.indexed:]...)
	}
	p.indexed = len(rows)

	results := p.index.Search(query, search.DefaultMaxResults)
	out := make([]model.Row, 0, len(results))
	for _, r := range results {
		out = append(out, r.Row)
	}
	return out
}

func (p ResourcesPage) nearEnd() bool {
	return len(p.visible)-1-p.table.Cursor() < constants.LoadMoreThreshold
}

func (p *ResourcesPage) toggleMarked(row model.Row) {
	if p.marked[row.Key()] {
		delete(p.marked, row.Key())
		return
	}
	p.marked[row.Key()] = true
}

func (p *ResourcesPage) toggleAllMarked() {
	allMarked := len(p.visible) > 0
	for _, r := range p.visible {
		if !p.marked[r.Key()] {
			allMarked = false
			break
		}
	}
	p.marked = make(map[string]bool)
	if allMarked {
		return
	}
	for _, r := range p.visible {
		p.marked[r.Key()] = true
	}
}

func (p *ResourcesPage) syncTable() {
	var rows []table.Row
	if p.session.Loading() && len(p.session.Rows()) == 0 {
		rows = p.skeletonRows()
	} else {
		rows = make([]table.Row, 0, p.rendered)
		for _, r := range p.visible[:p.rendered] {
			rows = append(rows, p.cells(r))
		}
	}
	p.table.SetColumns(p.columns(rows))
	p.table.SetRows(rows)
	if p.table.Cursor() >= len(rows) {
		p.table.SetCursor(max(0, len(rows)-1))
	}
	if p.compiled != nil {
		p.filter.SetSuffix(fmt.Sprintf("  %d/%d", len(p.visible), len(p.session.Rows())))
	} else {
		p.filter.SetSuffix("")
	}
}

func (p ResourcesPage) titles() []string {
	titles := []string{" ", "NAME"}
	if p.session.Kind.Namespaced {
		titles = append(titles, "NAMESPACE")
	}
	return append(titles, p.session.Kind.Columns...)
}

func (p ResourcesPage) cells(r model.Row) table.Row {
	mark := " "
	if p.marked[r.Key()] {
		mark = markedSymbol
	}
	cells := []string{mark, r.Name}
	if p.session.Kind.Namespaced {
		cells = append(cells, r.Namespace)
	}
	for i := range p.session.Kind.Columns {
		var c string
		if i < len(r.Cells) {
			c = r.Cells[i]
		}
		cells = append(cells, c)
	}
	return cells
}

func (p ResourcesPage) skeletonRows() []table.Row {
	n := len(p.titles())
	rows := make([]table.Row, constants.SkeletonRows)
	for i := range rows {
		row := make(table.Row, n)
		row[0] = " "
		for j := 1; j < n; j++ {
			row[j] = skeletonCell
		}
		rows[i] = row
	}
	return rows
}

// columns sizes every column to its widest cell, giving whatever width is left to the last one
func (p ResourcesPage) columns(rows []table.Row) []table.Column {
	titles := p.titles()
	cols := make([]table.Column, len(titles))
	used := 0
	for i, t := range titles {
		w := runewidth.StringWidth(t)
		for _, r := range rows {
			if i < len(r) {
				w = max(w, runewidth.StringWidth(r[i]))
			}
		}
		cols[i] = table.Column{Title: t, Width: min(w, maxColWidth)}
		// each cell is padded by one on both sides
		used += cols[i].Width + 2
	}
	if last := len(cols) - 1; last > 0 && used < p.width {
		cols[last].Width += p.width - used
	}
	return cols
}

func (p ResourcesPage) View() string {
	header := p.header()
	bodyHeight := max(1, p.height-lipgloss.Height(header)-2)

	var body string
	switch {
	case p.session.Err() != nil:
		text := util.Truncate("Error: "+kerrors.LoadMessage(p.session.Err(), p.session.Kind.Title), p.width)
		body = lipgloss.Place(p.width, bodyHeight, lipgloss.Center, lipgloss.Center, style.ErrorStyle.Render(text))
	case !p.session.Loading() && len(p.visible) == 0:
		text := lipgloss.JoinVertical(lipgloss.Center, style.Bold.Render(emptyTitle), style.Muted.Render(emptySubtitle))
		body = lipgloss.Place(p.width, bodyHeight, lipgloss.Center, lipgloss.Center, text)
	case p.session.Loading() && len(p.session.Rows()) == 0:
		body = style.SkeletonStyle.Render(p.table.View())
	default:
		body = p.table.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.filter.View(), body, p.statusLine())
}

func (p ResourcesPage) header() string {
	title := style.TitleStyle.Render(p.session.Kind.Title)
	scope := "cluster-scoped"
	if p.session.Kind.Namespaced {
		scope = "namespace: " + util.OrDefault(p.session.Namespace, "all")
	}
	return title + style.Muted.Render(scope)
}

func (p ResourcesPage) statusLine() string {
	var parts []string
	rows := p.session.Rows()
	switch {
	case p.session.Loading():
		parts = append(parts, "loading...")
	case p.session.LoadingMore():
		parts = append(parts, fmt.Sprintf("%d loaded, loading more...", len(rows)))
	case p.session.AllLoaded():
		parts = append(parts, fmt.Sprintf("%d loaded", len(rows)))
	default:
		parts = append(parts, fmt.Sprintf("%d loaded, more available", len(rows)))
	}
	if last := p.session.LastPage(); !p.session.Loading() && len(rows) > 0 {
		switch {
		case last.Stale:
			parts = append(parts, "stale, served from cache")
		case last.FromCache:
			parts = append(parts, "cached")
		default:
			parts = append(parts, util.FormatMillis(last.Elapsed))
		}
	}
	if p.stats.AverageLoad > 0 {
		parts = append(parts, "avg "+util.FormatMillis(p.stats.AverageLoad))
	}
	if p.stats.Loads > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%% ok", p.stats.SuccessRate*100))
	}
	if len(p.marked) > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", len(p.marked)))
	}
	return style.Muted.PaddingLeft(1).Render(strings.Join(parts, " · "))
}

func (p ResourcesPage) ContentForFile() []string {
	lines := []string{strings.Join(p.titles()[1:], "\t")}
	for _, r := range p.visible {
		lines = append(lines, strings.Join(p.cells(r)[1:], "\t"))
	}
	return lines
}

// HasFilterText is true while a search narrows the page, in which case esc clears it rather than going back
func (p ResourcesPage) HasFilterText() bool {
	return p.filter.HasFilterText()
}

func (p ResourcesPage) HighjackingInput() bool {
	return p.filter.Focused()
}

func (p ResourcesPage) WithDimensions(width, height int) GenericPage {
	return p.withDimensions(width, height)
}

func (p ResourcesPage) withDimensions(width, height int) ResourcesPage {
	p.width, p.height = width, height
	p.table.SetWidth(width)
	// header, filter and status line
	p.table.SetHeight(max(1, height-3))
	p.syncTable()
	return p
}

func (p ResourcesPage) Help() string {
	local := []key.Binding{
		keymap.WithDesc(p.keyMap.Enter, "details"),
		p.keyMap.Select,
		p.keyMap.SelectAll,
		p.keyMap.Reload,
	}
	if !p.session.Kind.Managed {
		local = append(local, p.keyMap.Delete)
	}
	if p.session.Kind.HasLogs() {
		local = append(local, p.keyMap.Logs, p.keyMap.Shell)
	}
	if p.session.Kind.CanForward() {
		local = append(local, p.keyMap.PortForward)
	}
	return makePageHelp(p.session.Kind.Title, p.keyMap, local)
}

// SelectedRow is the row under the cursor
func (p ResourcesPage) SelectedRow() (model.Row, bool) {
	idx := p.table.Cursor()
	if p.session.Loading() && len(p.session.Rows()) == 0 || idx < 0 || idx >= p.rendered {
		return model.Row{}, false
	}
	return p.visible[idx], true
}

// Targets are the marked rows in listing order, or the row under the cursor when none are marked
func (p ResourcesPage) Targets() []model.Row {
	if len(p.marked) == 0 {
		if row, ok := p.SelectedRow(); ok {
			return []model.Row{row}
		}
		return nil
	}
	var out []model.Row
	for _, r := range p.session.Rows() {
		if p.marked[r.Key()] {
			out = append(out, r)
		}
	}
	return out
}

// WithRowsRemoved drops rows by key without reloading
func (p ResourcesPage) WithRowsRemoved(keys map[string]bool) (ResourcesPage, tea.Cmd) {
	p.session.RemoveRows(keys)
	// row positions shifted, the index is rebuilt on the next search
	p.index = nil
	p.indexed = 0
	for k := range keys {
		delete(p.marked, k)
	}
	cmd := p.refresh(false)
	return p, cmd
}

func toastCmd(msg string, isError bool) tea.Cmd {
	return func() tea.Msg {
		return message.ToastMsg{Message: msg, IsError: isError}
	}
}
