package command

import (
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/deleter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/detail"
	"github.com/orchestrix-io/orchestrix/internal/k8s/events"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"time"
)

type PageLoadedMsg struct {
	Generation int
	Page       loader.Page
	// Stats of the recent loads of the kind, this one included
	Stats loader.Stats
	Err   error
}

// LoadPageCmd loads one page of a listing off the update loop. The generation comes back with the result so that
// the page can drop results of superseded loads.
func LoadPageCmd(ctx context.Context, l *loader.Loader, req loader.Request, generation int) tea.Cmd {
	return func() tea.Msg {
		page, err := l.Load(ctx, req)
		stats := l.Stats(req.Kind.Name)
		if err != nil {
			return PageLoadedMsg{Generation: generation, Page: loader.Page{Request: req}, Stats: stats, Err: err}
		}
		return PageLoadedMsg{Generation: generation, Page: page, Stats: stats}
	}
}

// DeleteJob is a running batch delete. Progress is buffered so the batch never waits on the UI.
type DeleteJob struct {
	Kind     resource.Kind
	Total    int
	progress chan int
	done     chan deleter.BatchResult
}

type DeleteStartedMsg struct {
	Job *DeleteJob
}

type DeleteProgressMsg struct {
	Job         *DeleteJob
	Done, Total int
}

type DeletedMsg struct {
	Kind   resource.Kind
	Result deleter.BatchResult
}

// StartDeleteCmd starts deleting targets as one batch. Follow it with WaitForDeleteCmd until DeletedMsg arrives.
func StartDeleteCmd(ctx context.Context, d *deleter.Deleter, kind resource.Kind, targets []model.ObjectRef) tea.Cmd {
	return func() tea.Msg {
		job := &DeleteJob{
			Kind:     kind,
			Total:    len(targets),
			progress: make(chan int, len(targets)),
			done:     make(chan deleter.BatchResult, 1),
		}
		go func() {
			result := d.DeleteBatch(ctx, kind, targets, func(done, _ int, _ deleter.Result) {
				job.progress <- done
			})
			dev.Debug("delete batch finished", "kind", kind.Name, "succeeded", len(result.Succeeded), "failed", len(result.Failed))
			close(job.progress)
			job.done <- result
		}()
		return DeleteStartedMsg{Job: job}
	}
}

// WaitForDeleteCmd returns the next progress update of job, or its result once every delete finished
func WaitForDeleteCmd(job *DeleteJob) tea.Cmd {
	return func() tea.Msg {
		if done, ok := <-job.progress; ok {
			return DeleteProgressMsg{Job: job, Done: done, Total: job.Total}
		}
		return DeletedMsg{Kind: job.Kind, Result: <-job.done}
	}
}

type DetailLoadedMsg struct {
	Ref    model.ObjectRef
	Kind   resource.Kind
	Fields []detail.Field
	YAML   string
	Events []events.Event
	// EventsErr does not fail the detail page, the events tab shows it instead
	EventsErr error
	Err       error
}

// GetDetailCmd fetches an object and its events concurrently
func GetDetailCmd(ctx context.Context, dyn dynamic.Interface, cs kubernetes.Interface, kind resource.Kind, ref model.ObjectRef, now time.Time) tea.Cmd {
	return func() tea.Msg {
		msg := DetailLoadedMsg{Ref: ref, Kind: kind}
		obj, err := detail.Get(ctx, dyn, kind, ref.Namespace, ref.Name)
		if err != nil {
			msg.Err = err
			return msg
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			y, err := detail.RenderYAML(obj)
			msg.YAML = y
			return err
		})
		g.Go(func() error {
			msg.Events, msg.EventsErr = events.ForObject(gctx, cs, obj.GetKind(), ref.Namespace, ref.Name)
			return nil
		})
		if err := g.Wait(); err != nil {
			msg.Err = err
			return msg
		}
		msg.Fields = detail.Overview(kind, obj, now)
		return msg
	}
}
