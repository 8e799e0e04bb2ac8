package loader

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"strconv"
	"sync"
	"testing"
	"time"
)

var (
	catalog   = resource.DefaultCatalog()
	podsKind  = catalog.MustLookup("pods")
	nodesKind = catalog.MustLookup("nodes")
)

type listCall struct {
	namespace string
	opts      metav1.ListOptions
}

// fakeLister serves objects in pages of opts.Limit, using the item index as the continue token
type fakeLister struct {
	mu      sync.Mutex
	items   []unstructured.Unstructured
	calls   []listCall
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeLister) List(ctx context.Context, kind resource.Kind, namespace string, opts metav1.ListOptions) (*unstructured.UnstructuredList, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{namespace: namespace, opts: opts})
	err, block, entered := f.err, f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	start := 0
	if opts.Continue != "" {
		start, _ = strconv.Atoi(opts.Continue)
	}
	end := len(f.items)
	if opts.Limit > 0 && start+int(opts.Limit) < end {
		end = start + int(opts.Limit)
	}
	list := &unstructured.UnstructuredList{Items: append([]unstructured.Unstructured(nil), f.items[start:end]...)}
	list.SetResourceVersion("42")
	if end < len(f.items) {
		list.SetContinue(strconv.Itoa(end))
	}
	return list, nil
}

func (f *fakeLister) numCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLister) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func pod(name string) unstructured.Unstructured {
	u := unstructured.Unstructured{}
	u.SetAPIVersion("v1")
	u.SetKind("Pod")
	u.SetName(name)
	u.SetNamespace("default")
	u.SetUID(types.UID("uid-" + name))
	return u
}

func pods(n int) []unstructured.Unstructured {
	var out []unstructured.Unstructured
	for i := 0; i < n; i++ {
		out = append(out, pod(fmt.Sprintf("pod-%02d", i)))
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLoader(l Lister) (*Loader, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	cfg.LoadMoreEvery = 0
	return New(l, cfg), clock
}

func TestLoadPaginatesWithSession(t *testing.T) {
	lister := &fakeLister{items: pods(5)}
	ld, _ := newTestLoader(lister)
	session := NewSession("ctx", podsKind, "default", 2)

	req, gen := session.Reload()
	if !session.Loading() {
		t.Fatal("expected loading after reload")
	}
	page, err := ld.Load(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !session.Apply(gen, page) {
		t.Fatal("apply rejected")
	}
	if len(session.Rows()) != 2 || session.AllLoaded() || !session.CanLoadMore() {
		t.Fatalf("after first page: rows=%d allLoaded=%t", len(session.Rows()), session.AllLoaded())
	}

	for session.CanLoadMore() {
		req, gen, ok := session.LoadMore()
		if !ok {
			t.Fatal("LoadMore refused")
		}
		if _, _, again := session.LoadMore(); again {
			t.Fatal("LoadMore allowed while already loading more")
		}
		page, err := ld.Load(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if page.FromCache {
			t.Error("continuation pages must not come from cache")
		}
		session.Apply(gen, page)
	}

	if len(session.Rows()) != 5 || !session.AllLoaded() {
		t.Fatalf("rows=%d allLoaded=%t", len(session.Rows()), session.AllLoaded())
	}
	for i, r := range session.Rows() {
		if want := fmt.Sprintf("pod-%02d", i); r.Name != want {
			t.Errorf("row %d = %s, want %s", i, r.Name, want)
		}
	}
	if got := lister.calls[1].opts.Continue; got != "2" {
		t.Errorf("second call continue = %q", got)
	}
	if lister.calls[0].opts.Limit != 2 {
		t.Errorf("limit = %d", lister.calls[0].opts.Limit)
	}
}

func TestApplyDeduplicatesAcrossPages(t *testing.T) {
	session := NewSession("ctx", podsKind, "", 2)
	_, gen := session.Reload()
	rows := func(names ...string) Page {
		var items []unstructured.Unstructured
		for _, n := range names {
			items = append(items, pod(n))
		}
		r, _ := resource.NewRows(podsKind, items, time.Now())
		return Page{Rows: r}
	}
	first := rows("a", "b")
	first.Continue = "t1"
	session.Apply(gen, first)

	req, gen, _ := session.LoadMore()
	second := rows("b", "c")
	second.Request = req
	session.Apply(gen, second)

	if len(session.Rows()) != 3 {
		t.Fatalf("expected 3 unique rows, got %d", len(session.Rows()))
	}
}

func TestApplyIgnoresSupersededGeneration(t *testing.T) {
	session := NewSession("ctx", podsKind, "", 10)
	_, oldGen := session.Reload()
	_, newGen := session.Reload()

	r, _ := resource.NewRows(podsKind, pods(1), time.Now())
	if session.Apply(oldGen, Page{Rows: r}) {
		t.Error("stale generation applied")
	}
	if len(session.Rows()) != 0 || !session.Loading() {
		t.Error("stale page changed state")
	}
	if session.Fail(oldGen, fmt.Errorf("boom")) != FailIgnored {
		t.Error("stale failure not ignored")
	}
	if !session.Apply(newGen, Page{Rows: r}) {
		t.Error("current generation rejected")
	}
}

func TestFailActions(t *testing.T) {
	session := NewSession("ctx", podsKind, "", 1)
	_, gen := session.Reload()
	if got := session.Fail(gen, context.Canceled); got != FailIgnored {
		t.Errorf("canceled: %v", got)
	}
	if got := session.Fail(gen, fmt.Errorf("boom")); got != FailShowError {
		t.Errorf("first page failure: %v", got)
	}
	if session.Err() == nil || session.Loading() {
		t.Error("expected error state")
	}

	_, gen = session.Reload()
	r, _ := resource.NewRows(podsKind, pods(1), time.Now())
	session.Apply(gen, Page{Rows: r, Continue: "tok"})

	_, gen, _ = session.LoadMore()
	if got := session.Fail(gen, apierrors.NewResourceExpired("too old")); got != FailReload {
		t.Errorf("expired token: %v", got)
	}
	_, gen, _ = session.LoadMore()
	if got := session.Fail(gen, fmt.Errorf("flaky")); got != FailNotify {
		t.Errorf("load more failure: %v", got)
	}
	if len(session.Rows()) != 1 || session.Err() != nil {
		t.Error("load more failure must keep rows")
	}
}

func TestLoadServesFreshCache(t *testing.T) {
	lister := &fakeLister{items: pods(3)}
	ld, clock := newTestLoader(lister)
	req := Request{Context: "ctx", Kind: podsKind, Namespace: "default", Limit: 25}

	first, err := ld.Load(context.Background(), req)
	if err != nil || first.FromCache {
		t.Fatalf("first load: %v fromCache=%t", err, first.FromCache)
	}
	second, err := ld.Load(context.Background(), req)
	if err != nil || !second.FromCache || len(second.Rows) != 3 {
		t.Fatalf("second load: %v fromCache=%t rows=%d", err, second.FromCache, len(second.Rows))
	}
	if first.OperationID == second.OperationID {
		t.Error("operation IDs must differ")
	}
	if lister.numCalls() != 1 {
		t.Errorf("lister called %d times", lister.numCalls())
	}

	// pods are high frequency: 60s
	clock.Advance(61 * time.Second)
	third, err := ld.Load(context.Background(), req)
	if err != nil || third.FromCache {
		t.Fatalf("expected a refetch after ttl: %v fromCache=%t", err, third.FromCache)
	}
	if lister.numCalls() != 2 {
		t.Errorf("lister called %d times", lister.numCalls())
	}

	ld.Invalidate("ctx", "pods")
	if _, err := ld.Load(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if lister.numCalls() != 3 {
		t.Errorf("invalidate did not drop cache, calls=%d", lister.numCalls())
	}
}

func TestLoadFallsBackToStaleCacheOnTimeout(t *testing.T) {
	lister := &fakeLister{items: pods(2)}
	ld, clock := newTestLoader(lister)
	req := Request{Context: "ctx", Kind: podsKind, Limit: 25}

	if _, err := ld.Load(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)
	lister.setErr(apierrors.NewTimeoutError("slow", 1))

	page, err := ld.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("expected stale page, got %v", err)
	}
	if !page.Stale || !page.FromCache || len(page.Rows) != 2 {
		t.Errorf("page stale=%t fromCache=%t rows=%d", page.Stale, page.FromCache, len(page.Rows))
	}

	clock.Advance(2 * time.Hour)
	_, err = ld.Load(context.Background(), req)
	if !kerrors.IsTimeout(err) {
		t.Errorf("expected timeout once stale entry is too old, got %v", err)
	}
}

func TestLoadErrorIsClassified(t *testing.T) {
	lister := &fakeLister{err: apierrors.NewForbidden(podsKind.GVR.GroupResource(), "", fmt.Errorf("rbac"))}
	ld, _ := newTestLoader(lister)
	_, err := ld.Load(context.Background(), Request{Kind: podsKind})
	if kerrors.CodeOf(err) != kerrors.CodeForbidden {
		t.Fatalf("got %v", err)
	}
	if got := kerrors.LoadMessage(err, podsKind.Title); got == "" {
		t.Error("empty load message")
	}
	stats := ld.Stats("pods")
	if stats.Loads != 1 || stats.SuccessRate != 0 {
		t.Errorf("stats %+v", stats)
	}
}

func TestNewLoadCancelsInFlight(t *testing.T) {
	lister := &fakeLister{items: pods(1), block: make(chan struct{}), entered: make(chan struct{}, 2)}
	ld, _ := newTestLoader(lister)
	req := Request{Context: "ctx", Kind: podsKind, Namespace: "default", Limit: 10}

	firstErr := make(chan error, 1)
	go func() {
		_, err := ld.Load(context.Background(), req)
		firstErr <- err
	}()
	<-lister.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := ld.Load(context.Background(), req)
		secondErr <- err
	}()

	select {
	case err := <-firstErr:
		if !kerrors.IsCanceled(err) {
			t.Fatalf("expected first load canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first load was not canceled")
	}

	<-lister.entered
	close(lister.block)
	if err := <-secondErr; err != nil {
		t.Fatalf("second load: %v", err)
	}
	if ld.InFlight() != 0 {
		t.Errorf("in flight = %d", ld.InFlight())
	}
}

func TestCancelAll(t *testing.T) {
	lister := &fakeLister{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	ld, _ := newTestLoader(lister)
	errCh := make(chan error, 1)
	go func() {
		_, err := ld.Load(context.Background(), Request{Kind: podsKind})
		errCh <- err
	}()
	<-lister.entered
	ld.CancelAll()
	if err := <-errCh; !kerrors.IsCanceled(err) {
		t.Fatalf("got %v", err)
	}
}

func TestCancelOnlyMatchingKey(t *testing.T) {
	lister := &fakeLister{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	ld, _ := newTestLoader(lister)
	req := Request{Context: "ctx", Kind: podsKind, Namespace: "default"}
	errCh := make(chan error, 1)
	go func() {
		_, err := ld.Load(context.Background(), req)
		errCh <- err
	}()
	<-lister.entered

	ld.Cancel(Request{Context: "ctx", Kind: podsKind, Namespace: "kube-system"})
	if ld.InFlight() != 1 {
		t.Fatalf("load of another namespace cancelled, %d in flight", ld.InFlight())
	}
	ld.Cancel(req)
	if err := <-errCh; !kerrors.IsCanceled(err) {
		t.Fatalf("got %v", err)
	}
}

func TestSessionsNeverShareGenerations(t *testing.T) {
	a := NewSession("ctx", podsKind, "default", 10)
	b := NewSession("ctx", podsKind, "kube-system", 10)
	_, genA := a.Reload()
	_, genB := b.Reload()
	if genA == genB {
		t.Fatalf("both sessions issued generation %d", genA)
	}

	r, _ := resource.NewRows(podsKind, pods(3), time.Now())
	if b.Apply(genA, Page{Rows: r}) {
		t.Error("page of another session applied")
	}
	if len(b.Rows()) != 0 {
		t.Errorf("rows = %d", len(b.Rows()))
	}
}

func TestSessionOwns(t *testing.T) {
	s := NewSession("ctx", podsKind, "default", 10)
	req, _ := s.Reload()
	if !s.Owns(req) {
		t.Error("own first page not owned")
	}
	req.Continue = "tok"
	if !s.Owns(req) {
		t.Error("own continuation not owned")
	}
	for name, other := range map[string]Request{
		"namespace": {Context: "ctx", Kind: podsKind, Namespace: "kube-system"},
		"kind":      {Context: "ctx", Kind: nodesKind},
		"context":   {Context: "prod", Kind: podsKind, Namespace: "default"},
	} {
		if s.Owns(other) {
			t.Errorf("owns request of another %s", name)
		}
	}
}

func TestClusterScopedKindIgnoresNamespace(t *testing.T) {
	lister := &fakeLister{}
	ld, _ := newTestLoader(lister)
	if _, err := ld.Load(context.Background(), Request{Kind: nodesKind, Namespace: "prod"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ld.Load(context.Background(), Request{Kind: podsKind, Namespace: "prod"}); err != nil {
		t.Fatal(err)
	}
	if lister.calls[0].namespace != "" || lister.calls[1].namespace != "prod" {
		t.Errorf("namespaces %q %q", lister.calls[0].namespace, lister.calls[1].namespace)
	}
}

func TestStatsWindow(t *testing.T) {
	s := newStatsRecorder()
	for i := 0; i < 150; i++ {
		s.record("pods", loadSample{elapsed: 10 * time.Millisecond, ok: i%2 == 0})
	}
	s.record("pods", loadSample{ok: true, cached: true})
	stats := s.get("pods")
	if stats.Loads != statsWindow {
		t.Errorf("loads = %d", stats.Loads)
	}
	if stats.AverageLoad != 10*time.Millisecond {
		t.Errorf("average = %v", stats.AverageLoad)
	}
	if stats.CacheHits != 1 {
		t.Errorf("cache hits = %d", stats.CacheHits)
	}
	if (s.get("nodes") != Stats{}) {
		t.Error("expected empty stats")
	}
}

func TestPageCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newPageCache(2)
	now := time.Now()
	c.put("a", Page{OperationID: "a"}, now)
	c.put("b", Page{OperationID: "b"}, now)
	if _, ok := c.get("a", time.Minute, now); !ok {
		t.Fatal("a missing")
	}
	c.put("c", Page{OperationID: "c"}, now)
	if _, ok := c.get("b", time.Minute, now); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.get("a", time.Minute, now); !ok {
		t.Error("a should have survived")
	}
	if c.size() != 2 {
		t.Errorf("size = %d", c.size())
	}
	if _, ok := c.get("a", time.Second, now.Add(time.Minute)); ok {
		t.Error("expired entry returned")
	}
}

func TestDynamicLister(t *testing.T) {
	scheme := runtime.NewScheme()
	objs := []runtime.Object{}
	for _, p := range []unstructured.Unstructured{pod("a"), pod("b")} {
		p := p
		objs = append(objs, &p)
	}
	other := pod("c")
	other.SetNamespace("other")
	objs = append(objs, &other)

	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{podsKind.GVR: "PodList"}, objs...)
	l := DynamicLister{Client: client}

	list, err := l.List(context.Background(), podsKind, "default", metav1.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 2 {
		t.Errorf("namespaced list returned %d items", len(list.Items))
	}
	list, err = l.List(context.Background(), podsKind, "", metav1.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 3 {
		t.Errorf("all-namespaces list returned %d items", len(list.Items))
	}
}
