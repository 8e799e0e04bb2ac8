package page

import (
	"errors"
	"github.com/google/go-cmp/cmp"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/keymap"
	"strings"
	"testing"
)

var testContexts = []client.ContextInfo{
	{Name: "dev", Cluster: "dev-cluster", Namespace: "team-a"},
	{Name: "prod", Cluster: "prod-cluster", Current: true},
	{Name: "staging", Cluster: "prod-cluster"},
}

func TestContextsPageCursorOnActive(t *testing.T) {
	p := NewContextsPage(keymap.DefaultKeyMap, "staging", 120, 30)
	if view := p.View(); !strings.Contains(view, "loading...") {
		t.Errorf("expected loading state, got\n%s", view)
	}

	p = p.WithContexts(testContexts, nil)
	c, ok := p.SelectedContext()
	if !ok || c.Name != "staging" {
		t.Fatalf("expected the active context selected, got %+v", c)
	}

	var marked []string
	for _, line := range p.ContentForFile() {
		if strings.HasPrefix(line, currentContextSymbol) {
			marked = append(marked, strings.Split(line, "\t")[1])
		}
	}
	if diff := cmp.Diff([]string{"staging"}, marked); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestContextsPageFilter(t *testing.T) {
	p := NewContextsPage(keymap.DefaultKeyMap, "dev", 120, 30).WithContexts(testContexts, nil)

	gp, _ := p.Update(keyMsg("/"))
	p = gp.(ContextsPage)
	for _, r := range "prod-c" {
		gp, _ = p.Update(keyMsg(string(r)))
		p = gp.(ContextsPage)
	}
	var names []string
	for _, c := range p.visible {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"prod", "staging"}, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestContextsPageError(t *testing.T) {
	p := NewContextsPage(keymap.DefaultKeyMap, "dev", 120, 30).WithContexts(nil, errors.New("no kubeconfig"))
	if view := p.View(); !strings.Contains(view, "Error: no kubeconfig") {
		t.Errorf("expected error state, got\n%s", view)
	}
	if _, ok := p.SelectedContext(); ok {
		t.Error("nothing should be selectable")
	}
}
