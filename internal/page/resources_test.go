package page

import (
	"errors"
	"fmt"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/orchestrix-io/orchestrix/internal/command"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"github.com/orchestrix-io/orchestrix/internal/message"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"strings"
	"testing"
	"time"
)

var (
	podsKind = resource.DefaultCatalog().MustLookup("pods")
	testNow  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type loadRecorder struct {
	requests []loader.Request
}

func (r *loadRecorder) load(req loader.Request, _ int) tea.Cmd {
	r.requests = append(r.requests, req)
	return nil
}

func newTestResourcesPage(t *testing.T) (ResourcesPage, *loadRecorder) {
	t.Helper()
	rec := &loadRecorder{}
	session := loader.NewSession("dev", podsKind, "default", 25)
	p := NewResourcesPage(keymap.DefaultKeyMap, session, rec.load, func() time.Time { return testNow }, 160, 40)
	p, _ = p.Reload()
	return p, rec
}

func podRows(n int, from int) []model.Row {
	var rows []model.Row
	for i := from; i < from+n; i++ {
		status := "Running"
		if i%10 == 0 {
			status = "Pending"
		}
		rows = append(rows, model.Row{
			UID:       fmt.Sprintf("uid-%d", i),
			Name:      fmt.Sprintf("web-%03d", i),
			Namespace: "default",
			Kind:      "pods",
			Status:    status,
			Cells:     []string{"1/1", status, "0", "10.0.0.1", "node-a", "5m"},
		})
	}
	return rows
}

func update(t *testing.T, p ResourcesPage, msg tea.Msg) (ResourcesPage, tea.Cmd) {
	t.Helper()
	gp, cmd := p.Update(msg)
	return gp.(ResourcesPage), cmd
}

func loaded(p ResourcesPage, req loader.Request, rows []model.Row, cont string) command.PageLoadedMsg {
	return command.PageLoadedMsg{
		Generation: p.session.Generation(),
		Page:       loader.Page{Request: req, Rows: rows, Continue: cont},
	}
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+a":
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestResourcesPageSkeletonWhileLoading(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	if len(rec.requests) != 1 || rec.requests[0].IsLoadMore() {
		t.Fatalf("expected a single first-page request, got %+v", rec.requests)
	}
	view := p.View()
	if !strings.Contains(view, skeletonCell) {
		t.Errorf("expected skeleton rows while loading, got\n%s", view)
	}
	if _, ok := p.SelectedRow(); ok {
		t.Error("skeleton rows must not be selectable")
	}
}

func TestResourcesPageBatchRendering(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, cmd := update(t, p, loaded(p, rec.requests[0], podRows(120, 0), "tok"))
	if cmd == nil {
		t.Fatal("expected a render tick for the rest of the page")
	}
	if p.rendered != 50 || len(p.table.Rows()) != 50 {
		t.Fatalf("rendered %d, table rows %d", p.rendered, len(p.table.Rows()))
	}

	p, cmd = update(t, p, message.RenderBatchMsg{Generation: p.renderGen})
	if p.rendered != 100 || cmd == nil {
		t.Fatalf("rendered %d after second batch", p.rendered)
	}
	// ticks of an older render pass do nothing
	p, _ = update(t, p, message.RenderBatchMsg{Generation: p.renderGen - 1})
	if p.rendered != 100 {
		t.Fatalf("stale tick rendered rows: %d", p.rendered)
	}
	p, cmd = update(t, p, message.RenderBatchMsg{Generation: p.renderGen})
	if p.rendered != 120 || cmd != nil {
		t.Fatalf("rendered %d, more ticks %v", p.rendered, cmd != nil)
	}
}

func TestResourcesPageDropsSupersededPage(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	stale := loaded(p, rec.requests[0], podRows(3, 0), "")
	p, _ = p.Reload()
	p, _ = update(t, p, stale)
	if len(p.session.Rows()) != 0 {
		t.Fatalf("superseded page applied: %d rows", len(p.session.Rows()))
	}
	p, _ = update(t, p, loaded(p, rec.requests[1], podRows(2, 0), ""))
	if len(p.session.Rows()) != 2 {
		t.Fatalf("current page not applied")
	}
}

func TestResourcesPageEmptyAndErrorStates(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], nil, ""))
	if view := p.View(); !strings.Contains(view, emptyTitle) || !strings.Contains(view, emptySubtitle) {
		t.Errorf("expected empty state, got\n%s", view)
	}

	p, _ = p.Reload()
	p, _ = update(t, p, command.PageLoadedMsg{Generation: p.session.Generation(), Page: loader.Page{Request: rec.requests[1]}, Err: errors.New("boom")})
	if view := p.View(); !strings.Contains(view, "Error: Failed to load Pods: boom") {
		t.Errorf("expected error state, got\n%s", view)
	}
}

func TestResourcesPageDropsPagesOfPreviousListing(t *testing.T) {
	before, beforeRec := newTestResourcesPage(t)
	stale := loaded(before, beforeRec.requests[0], podRows(3, 0), "")

	rec := &loadRecorder{}
	session := loader.NewSession("dev", podsKind, "kube-system", 25)
	p := NewResourcesPage(keymap.DefaultKeyMap, session, rec.load, func() time.Time { return testNow }, 160, 40)
	p, _ = p.Reload()

	// same generation, different namespace
	stale.Generation = p.session.Generation()
	p, _ = update(t, p, stale)
	if got := len(p.session.Rows()); got != 0 {
		t.Fatalf("page of namespace default applied to kube-system: %d rows", got)
	}
	if !p.session.Loading() {
		t.Error("expected kube-system to still be loading")
	}

	failed := command.PageLoadedMsg{Generation: p.session.Generation(), Page: loader.Page{Request: beforeRec.requests[0]}, Err: errors.New("boom")}
	p, _ = update(t, p, failed)
	if p.session.Err() != nil {
		t.Error("failure of namespace default shown on kube-system")
	}

	rows := podRows(2, 0)
	for i := range rows {
		rows[i].Namespace = "kube-system"
	}
	p, _ = update(t, p, loaded(p, rec.requests[0], rows, ""))
	if got := len(p.session.Rows()); got != 2 {
		t.Errorf("own page not applied: %d rows", got)
	}
}

func TestResourcesPageLoadsMoreNearEnd(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(30, 0), "tok"))

	p, cmd := update(t, p, keyMsg("G"))
	if cmd == nil {
		t.Fatal("expected the scroll debounce to be scheduled")
	}
	p, _ = update(t, p, message.ScrollDebounceMsg{Seq: 1})
	if len(rec.requests) != 2 || rec.requests[1].Continue != "tok" {
		t.Fatalf("expected a load-more request, got %+v", rec.requests)
	}

	// a second trigger while the page is in flight is ignored
	p, _ = update(t, p, message.ScrollDebounceMsg{Seq: 1})
	if len(rec.requests) != 2 {
		t.Fatalf("duplicate load-more issued")
	}

	more := podRows(10, 25)
	p, _ = update(t, p, loaded(p, rec.requests[1], more, ""))
	if got := len(p.session.Rows()); got != 35 {
		t.Fatalf("expected overlapping rows to be skipped, got %d rows", got)
	}
	if !p.session.AllLoaded() {
		t.Error("expected the listing to be complete")
	}
}

func TestResourcesPageLoadMoreFailureKeepsRows(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(30, 0), "tok"))
	p, _ = update(t, p, keyMsg("G"))
	p, _ = update(t, p, message.ScrollDebounceMsg{Seq: 1})

	p, cmd := update(t, p, command.PageLoadedMsg{Generation: p.session.Generation(), Page: loader.Page{Request: rec.requests[1]}, Err: errors.New("connection refused")})
	if cmd == nil {
		t.Fatal("expected a toast")
	}
	toast, ok := cmd().(message.ToastMsg)
	if !ok || !toast.IsError || !strings.Contains(toast.Message, "Failed to load Pods") {
		t.Errorf("unexpected toast %+v", toast)
	}
	if len(p.session.Rows()) != 30 || p.session.Err() != nil {
		t.Errorf("rows should be kept after a failed load-more")
	}
}

func TestResourcesPageSearch(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(30, 0), ""))

	p, _ = update(t, p, keyMsg("/"))
	if !p.HighjackingInput() {
		t.Fatal("expected the search input to take focus")
	}
	for _, r := range "pending" {
		p, _ = update(t, p, keyMsg(string(r)))
	}
	if len(p.visible) != 30 {
		t.Fatalf("search applied before the debounce fired")
	}
	// one debounce per keystroke, only the last one applies
	p, _ = update(t, p, message.SearchDebounceMsg{Seq: len("pending") - 1})
	if len(p.visible) != 30 {
		t.Fatalf("superseded debounce applied the search")
	}
	p, _ = update(t, p, message.SearchDebounceMsg{Seq: len("pending")})
	var names []string
	for _, r := range p.visible {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"web-000", "web-010", "web-020"}, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	p, _ = update(t, p, keyMsg("esc"))
	if len(p.visible) != 30 || p.HighjackingInput() {
		t.Errorf("expected esc to clear the search")
	}
}

func TestResourcesPageInvalidExpressionKeepsResults(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(30, 0), ""))
	p, _ = update(t, p, keyMsg("/"))
	p.filter.SetValue(`?status == "Pending"`)
	p, _ = update(t, p, keyMsg("enter"))
	if len(p.visible) != 3 {
		t.Fatalf("expected 3 pending rows, got %d", len(p.visible))
	}

	p, _ = update(t, p, keyMsg("/"))
	p.filter.SetValue(`?status ==`)
	p, _ = update(t, p, keyMsg("enter"))
	if p.filter.Err() == nil {
		t.Error("expected a compile error")
	}
	if len(p.visible) != 3 {
		t.Errorf("results of the last valid query should stay, got %d", len(p.visible))
	}
}

func TestResourcesPageSelection(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(5, 0), ""))

	if targets := p.Targets(); len(targets) != 1 || targets[0].Name != "web-000" {
		t.Fatalf("expected the cursor row as target, got %+v", targets)
	}
	p, _ = update(t, p, keyMsg(" "))
	p, _ = update(t, p, keyMsg("j"))
	p, _ = update(t, p, keyMsg(" "))
	var names []string
	for _, r := range p.Targets() {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"web-000", "web-002"}, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	p, _ = update(t, p, keyMsg("ctrl+a"))
	if len(p.Targets()) != 5 {
		t.Errorf("expected all rows selected")
	}
	p, _ = update(t, p, keyMsg("ctrl+a"))
	if len(p.marked) != 0 {
		t.Errorf("expected selection cleared")
	}

	p, _ = update(t, p, keyMsg("g"))
	p, _ = update(t, p, keyMsg(" "))
	p, _ = p.WithRowsRemoved(map[string]bool{"uid-0": true})
	if len(p.session.Rows()) != 4 || len(p.marked) != 0 {
		t.Errorf("removed rows should leave the table and the selection")
	}
}

func TestResourcesPageSearchAfterRemovalAndLoadMore(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	p, _ = update(t, p, loaded(p, rec.requests[0], podRows(4, 0), "tok"))

	query := func(p ResourcesPage, q string) ResourcesPage {
		p, _ = update(t, p, keyMsg("/"))
		p.filter.SetValue(q)
		p, _ = update(t, p, keyMsg("enter"))
		return p
	}
	p = query(p, "web running")
	if len(p.visible) != 3 {
		t.Fatalf("expected 3 running rows, got %d", len(p.visible))
	}
	p, _ = update(t, p, keyMsg("esc"))

	p, _ = p.WithRowsRemoved(map[string]bool{"uid-0": true})
	req, _, ok := p.session.LoadMore()
	if !ok {
		t.Fatal("expected a load-more request")
	}
	p, _ = update(t, p, loaded(p, req, podRows(4, 4), ""))

	p = query(p, "web running")
	var names []string
	for _, r := range p.visible {
		names = append(names, r.Name)
	}
	want := []string{"web-001", "web-002", "web-003", "web-004", "web-005", "web-006", "web-007"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestResourcesPageStatusLineShowsLoadStats(t *testing.T) {
	p, rec := newTestResourcesPage(t)
	msg := loaded(p, rec.requests[0], podRows(3, 0), "")
	msg.Stats = loader.Stats{Loads: 4, SuccessRate: 0.75, AverageLoad: 120 * time.Millisecond}
	p, _ = update(t, p, msg)

	status := p.statusLine()
	for _, want := range []string{"3 loaded", "avg 120ms", "75% ok"} {
		if !strings.Contains(status, want) {
			t.Errorf("expected %q in status line %q", want, status)
		}
	}
}
