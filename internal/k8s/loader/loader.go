// Package loader fetches resource listings one continuation-token page at a time, with caching, cancellation of
// superseded loads and bounded concurrency against the API server.
package loader

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/metrics"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"strings"
	"sync"
	"time"
)

// Request describes one page of a listing
type Request struct {
	// Context is the kubeconfig context the listing belongs to
	Context       string
	Kind          resource.Kind
	Namespace     string
	LabelSelector string
	FieldSelector string
	Limit         int64
	Continue      string
}

// IsLoadMore reports whether the request continues a previous listing
func (r Request) IsLoadMore() bool {
	return r.Continue != ""
}

// namespace is empty for cluster-scoped kinds regardless of what was asked for
func (r Request) namespace() string {
	if !r.Kind.Namespaced {
		return ""
	}
	return r.Namespace
}

// flightKey identifies loads that supersede each other
func (r Request) flightKey() string {
	return strings.Join([]string{r.Context, r.Kind.Name, r.namespace()}, "|")
}

func (r Request) cacheKey() string {
	return strings.Join([]string{r.Context, r.Kind.Name, r.namespace(), r.LabelSelector, r.FieldSelector, fmt.Sprint(r.Limit)}, "|")
}

// Page is the result of one Load
type Page struct {
	Request         Request
	Rows            []model.Row
	Continue        string
	ResourceVersion string
	FromCache       bool
	// Stale is set when the API timed out and an expired cache entry was served instead
	Stale       bool
	Elapsed     time.Duration
	OperationID string
}

type Config struct {
	// TTLs per change frequency of a kind
	TTLs map[resource.Frequency]time.Duration
	// StaleMaxAge bounds how old a cached page may be when served after a timeout
	StaleMaxAge   time.Duration
	Timeout       time.Duration
	MaxConcurrent int64
	CacheSize     int
	// LoadMoreEvery throttles continuation requests
	LoadMoreEvery time.Duration
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTLs: map[resource.Frequency]time.Duration{
			resource.FrequencyHigh:   60 * time.Second,
			resource.FrequencyMedium: 300 * time.Second,
			resource.FrequencyLow:    900 * time.Second,
		},
		StaleMaxAge:   time.Hour,
		Timeout:       30 * time.Second,
		MaxConcurrent: 4,
		CacheSize:     100,
		LoadMoreEvery: 100 * time.Millisecond,
		Now:           time.Now,
	}
}

type flight struct {
	id     int
	cancel context.CancelFunc
}

type Loader struct {
	lister   Lister
	cfg      Config
	cache    *pageCache
	stats    *statsRecorder
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	mu       sync.Mutex
	inflight map[string]flight
	nextID   int
}

func New(lister Lister, cfg Config) *Loader {
	def := DefaultConfig()
	if cfg.TTLs == nil {
		cfg.TTLs = def.TTLs
	}
	if cfg.StaleMaxAge <= 0 {
		cfg.StaleMaxAge = def.StaleMaxAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := rate.Inf
	if cfg.LoadMoreEvery > 0 {
		limit = rate.Every(cfg.LoadMoreEvery)
	}
	return &Loader{
		lister:   lister,
		cfg:      cfg,
		cache:    newPageCache(cfg.CacheSize),
		stats:    newStatsRecorder(),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		limiter:  rate.NewLimiter(limit, 1),
		inflight: make(map[string]flight),
	}
}

func (l *Loader) ttl(kind resource.Kind) time.Duration {
	if ttl, ok := l.cfg.TTLs[kind.Frequency]; ok {
		return ttl
	}
	return l.cfg.TTLs[resource.FrequencyMedium]
}

// Load fetches one page. First pages are served from cache while fresh; a new load of the same
// context/kind/namespace cancels any load still in flight for it.
func (l *Loader) Load(ctx context.Context, req Request) (Page, error) {
	start := l.cfg.Now()
	opID := uuid.NewString()
	kindName := req.Kind.Name

	ctx, done := l.track(ctx, req.flightKey())
	defer done()

	if !req.IsLoadMore() {
		if entry, ok := l.cache.get(req.cacheKey(), l.ttl(req.Kind), start); ok {
			page := entry.page
			page.Request = req
			page.FromCache = true
			page.OperationID = opID
			page.Elapsed = 0
			l.stats.record(kindName, loadSample{ok: true, cached: true})
			metrics.ObserveLoad(kindName, metrics.SourceCache, 0, nil)
			return page, nil
		}
	} else if err := l.limiter.Wait(ctx); err != nil {
		return Page{}, l.fail(req, start, err)
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Page{}, l.fail(req, start, err)
	}
	defer l.sem.Release(1)

	listCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	dev.Debug("listing", "op", opID, "kind", kindName, "namespace", req.namespace(), "continue", req.IsLoadMore())
	list, err := l.lister.List(listCtx, req.Kind, req.namespace(), metav1.ListOptions{
		Limit:         req.Limit,
		Continue:      req.Continue,
		LabelSelector: req.LabelSelector,
		FieldSelector: req.FieldSelector,
	})
	if err != nil {
		if kerrors.IsTimeout(err) && !req.IsLoadMore() {
			if entry, ok := l.cache.get(req.cacheKey(), l.cfg.StaleMaxAge, l.cfg.Now()); ok {
				page := entry.page
				page.Request = req
				page.FromCache = true
				page.Stale = true
				page.OperationID = opID
				page.Elapsed = l.cfg.Now().Sub(start)
				dev.Debug("served stale page after timeout", "op", opID, "kind", kindName, "age", l.cfg.Now().Sub(entry.storedAt).String())
				l.stats.record(kindName, loadSample{ok: true, cached: true})
				metrics.ObserveLoad(kindName, metrics.SourceStale, page.Elapsed, nil)
				return page, nil
			}
		}
		return Page{}, l.fail(req, start, err)
	}

	now := l.cfg.Now()
	rows, err := resource.NewRows(req.Kind, list.Items, now)
	if err != nil {
		return Page{}, l.fail(req, start, err)
	}
	page := Page{
		Request:         req,
		Rows:            rows,
		Continue:        list.GetContinue(),
		ResourceVersion: list.GetResourceVersion(),
		Elapsed:         now.Sub(start),
		OperationID:     opID,
	}
	if !req.IsLoadMore() {
		l.cache.put(req.cacheKey(), page, now)
	}
	l.stats.record(kindName, loadSample{elapsed: page.Elapsed, ok: true})
	metrics.ObserveLoad(kindName, metrics.SourceAPI, page.Elapsed, nil)
	dev.Debug("listed", "op", opID, "kind", kindName, "rows", len(rows), "more", page.Continue != "", "elapsed", page.Elapsed.String())
	return page, nil
}

func (l *Loader) fail(req Request, start time.Time, err error) error {
	elapsed := l.cfg.Now().Sub(start)
	classified := kerrors.Classify(err, fmt.Sprintf("failed to list %s", req.Kind.Name))
	if classified.Context == nil {
		classified.Context = map[string]any{"kind": req.Kind.Name, "namespace": req.namespace(), "continue": req.IsLoadMore()}
	}
	if classified.Code != kerrors.CodeCanceled {
		l.stats.record(req.Kind.Name, loadSample{elapsed: elapsed, ok: false})
		metrics.ObserveLoad(req.Kind.Name, metrics.SourceAPI, elapsed, err)
	}
	dev.Debug("list failed", "kind", req.Kind.Name, "code", string(classified.Code), "err", err.Error())
	return classified
}

// track registers a load under key, cancelling whichever load held the key before
func (l *Loader) track(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	l.mu.Lock()
	if prev, ok := l.inflight[key]; ok {
		prev.cancel()
	}
	l.nextID++
	id := l.nextID
	l.inflight[key] = flight{id: id, cancel: cancel}
	l.mu.Unlock()

	return ctx, func() {
		cancel()
		l.mu.Lock()
		if f, ok := l.inflight[key]; ok && f.id == id {
			delete(l.inflight, key)
		}
		l.mu.Unlock()
	}
}

// CancelAll cancels every load in flight
func (l *Loader) CancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, f := range l.inflight {
		f.cancel()
		delete(l.inflight, key)
	}
}

// Cancel cancels the load in flight for the context, kind and namespace of req, if any
func (l *Loader) Cancel(req Request) {
	key := req.flightKey()
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.inflight[key]; ok {
		f.cancel()
		delete(l.inflight, key)
	}
}

// InFlight is the number of loads currently running
func (l *Loader) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// Invalidate drops cached pages of a kind in a context, e.g. after a delete
func (l *Loader) Invalidate(contextName, kindName string) {
	n := l.cache.removePrefix(contextName + "|" + kindName + "|")
	dev.Debug("invalidated cache", "context", contextName, "kind", kindName, "entries", n)
}

// Purge drops every cached page, e.g. after switching clusters
func (l *Loader) Purge() {
	l.cache.clear()
}

func (l *Loader) Stats(kindName string) Stats {
	return l.stats.get(kindName)
}
