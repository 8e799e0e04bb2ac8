// Package deleter removes resources through the dynamic client, one at a time or as a bounded concurrent batch.
package deleter

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/metrics"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/utils/ptr"
	"strings"
	"sync"
	"time"
)

const (
	GracePeriodSeconds = 30
	DefaultConcurrency = 5
	summaryFailures    = 5
)

// Result is the outcome of deleting one object
type Result struct {
	Target  model.ObjectRef
	Elapsed time.Duration
	// Err is classified with kerrors when set
	Err error
}

func (r Result) Message() string {
	return kerrors.DeleteMessage(r.Err, r.Target.Name)
}

type BatchResult struct {
	Succeeded []Result
	Failed    []Result
}

func (b BatchResult) Total() int {
	return len(b.Succeeded) + len(b.Failed)
}

// Summary describes a finished batch for kind, listing at most the first few failures
func (b BatchResult) Summary(kindTitle string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Deleted %d of %d %s.", len(b.Succeeded), b.Total(), kindTitle))
	for i, f := range b.Failed {
		if i == summaryFailures {
			sb.WriteString(fmt.Sprintf("\n... and %d more.", len(b.Failed)-summaryFailures))
			break
		}
		sb.WriteString(fmt.Sprintf("\n%s: %s", f.Target.Name, f.Message()))
	}
	return sb.String()
}

// Progress is called after each delete of a batch completes, with the number done so far
type Progress func(done, total int, last Result)

type Deleter struct {
	client      dynamic.Interface
	concurrency int
	now         func() time.Time
}

func New(client dynamic.Interface) *Deleter {
	return &Deleter{client: client, concurrency: DefaultConcurrency, now: time.Now}
}

func (d *Deleter) WithConcurrency(n int) *Deleter {
	if n > 0 {
		d.concurrency = n
	}
	return d
}

// Delete removes target with a grace period and foreground propagation, so dependents go first
func (d *Deleter) Delete(ctx context.Context, kind resource.Kind, target model.ObjectRef) Result {
	start := d.now()
	res := Result{Target: target}

	if target.Name == "" {
		res.Err = kerrors.New(kerrors.CodeInvalidRequest, "Resource name is required")
		return d.finish(kind, res, start)
	}

	var ri dynamic.ResourceInterface
	if kind.Namespaced {
		if target.Namespace == "" {
			res.Err = kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("Namespace is required to delete %s '%s'", kind.Singular, target.Name))
			return d.finish(kind, res, start)
		}
		ri = d.client.Resource(kind.GVR).Namespace(target.Namespace)
	} else {
		ri = d.client.Resource(kind.GVR)
	}

	err := ri.Delete(ctx, target.Name, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(int64(GracePeriodSeconds)),
		PropagationPolicy:  ptr.To(metav1.DeletePropagationForeground),
	})
	if err != nil {
		res.Err = kerrors.Classify(err, fmt.Sprintf("failed to delete %s %s", kind.Singular, target))
	}
	return d.finish(kind, res, start)
}

func (d *Deleter) finish(kind resource.Kind, res Result, start time.Time) Result {
	res.Elapsed = d.now().Sub(start)
	metrics.ObserveDelete(kind.Name, res.Err)
	if res.Err != nil {
		dev.Debug("delete failed", "kind", kind.Name, "target", res.Target.String(), "err", res.Err.Error())
	} else {
		dev.Debug("deleted", "kind", kind.Name, "target", res.Target.String(), "elapsed", res.Elapsed.String())
	}
	return res
}

// DeleteBatch deletes targets concurrently. Results keep the order of targets; one failure does not stop the rest.
func (d *Deleter) DeleteBatch(ctx context.Context, kind resource.Kind, targets []model.ObjectRef, progress Progress) BatchResult {
	results := make([]Result, len(targets))

	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			res := d.Delete(gctx, kind, t)
			results[i] = res
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(targets), res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var batch BatchResult
	for _, r := range results {
		if r.Err != nil {
			batch.Failed = append(batch.Failed, r)
		} else {
			batch.Succeeded = append(batch.Succeeded, r)
		}
	}
	return batch
}
