package loader

import (
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"sync/atomic"
)

// generations is shared by every session so that a result can never be mistaken for one of a newer session
var generations atomic.Int64

// FailAction tells the caller how to surface a failed load
type FailAction int

const (
	// FailIgnored means the result was superseded and must not touch the UI
	FailIgnored FailAction = iota
	// FailShowError replaces the table with an inline error state
	FailShowError
	// FailNotify keeps the rows already shown and reports the error out of band
	FailNotify
	// FailReload means the continue token expired and the listing must start over
	FailReload
)

// Session is the paging state of one resource table. Every Reload starts a new generation; results carrying any
// other generation are dropped so that a superseded load never overwrites newer state.
type Session struct {
	Context       string
	Kind          resource.Kind
	Namespace     string
	LabelSelector string
	PageSize      int64

	rows        []model.Row
	seen        map[string]bool
	next        string
	generation  int
	loading     bool
	loadingMore bool
	allLoaded   bool
	err         error
	last        Page
}

func NewSession(contextName string, kind resource.Kind, namespace string, pageSize int64) Session {
	return Session{
		Context:       contextName,
		Kind:          kind,
		Namespace:     namespace,
		LabelSelector: kind.LabelSelector,
		PageSize:      pageSize,
		seen:          make(map[string]bool),
	}
}

func (s *Session) request(cont string) Request {
	return Request{
		Context:       s.Context,
		Kind:          s.Kind,
		Namespace:     s.Namespace,
		LabelSelector: s.LabelSelector,
		Limit:         s.PageSize,
		Continue:      cont,
	}
}

// Reload discards paging state and returns the request for the first page along with its generation
func (s *Session) Reload() (Request, int) {
	s.generation = int(generations.Add(1))
	s.loading = true
	s.loadingMore = false
	s.allLoaded = false
	s.next = ""
	s.err = nil
	return s.request(""), s.generation
}

// Owns reports whether req lists what this session shows: same context, kind and namespace
func (s *Session) Owns(req Request) bool {
	return req.flightKey() == s.request("").flightKey()
}

// LoadMore returns the request for the next page, if one may be issued now
func (s *Session) LoadMore() (Request, int, bool) {
	if !s.CanLoadMore() {
		return Request{}, 0, false
	}
	s.loadingMore = true
	return s.request(s.next), s.generation, true
}

// CanLoadMore is true when idle, not fully loaded and holding a continue token
func (s *Session) CanLoadMore() bool {
	return !s.loading && !s.loadingMore && !s.allLoaded && s.next != ""
}

// Apply merges a loaded page. First pages replace the rows, continuation pages append to them, skipping rows
// already present. It reports whether the page belonged to the current generation.
func (s *Session) Apply(generation int, page Page) bool {
	if generation != s.generation {
		return false
	}
	if page.Request.IsLoadMore() {
		if !s.loadingMore {
			return false
		}
	} else {
		s.rows = nil
		s.seen = make(map[string]bool)
	}
	for _, r := range page.Rows {
		if s.seen[r.Key()] {
			continue
		}
		s.seen[r.Key()] = true
		s.rows = append(s.rows, r)
	}
	s.next = page.Continue
	s.allLoaded = page.Continue == ""
	s.loading = false
	s.loadingMore = false
	s.err = nil
	s.last = page
	return true
}

// Fail records a failed load and says how to surface it
func (s *Session) Fail(generation int, err error) FailAction {
	if generation != s.generation || kerrors.IsCanceled(err) {
		return FailIgnored
	}
	wasLoadMore := s.loadingMore
	s.loading = false
	s.loadingMore = false
	if wasLoadMore {
		if kerrors.IsExpired(err) {
			return FailReload
		}
		return FailNotify
	}
	s.err = err
	return FailShowError
}

// RemoveRows drops rows by key, e.g. after they were deleted
func (s *Session) RemoveRows(keys map[string]bool) {
	kept := s.rows[:0:0]
	for _, r := range s.rows {
		if keys[r.Key()] {
			delete(s.seen, r.Key())
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
}

func (s *Session) Rows() []model.Row { return s.rows }

func (s *Session) Loading() bool { return s.loading }

func (s *Session) LoadingMore() bool { return s.loadingMore }

func (s *Session) AllLoaded() bool { return s.allLoaded }

func (s *Session) Err() error { return s.err }

func (s *Session) Generation() int { return s.generation }

// LastPage is the most recently applied page, e.g. to show whether it came from cache
func (s *Session) LastPage() Page { return s.last }
