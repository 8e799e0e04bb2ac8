// Package overview collects the cluster health numbers shown on the overview page.
package overview

import (
	"context"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/events"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	apiresource "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"time"
)

const eventSampleSize = 300

var podPhases = []corev1.PodPhase{
	corev1.PodRunning, corev1.PodPending, corev1.PodSucceeded, corev1.PodFailed, corev1.PodUnknown,
}

type PhaseCount struct {
	Phase corev1.PodPhase
	Count int
}

type Overview struct {
	Namespace            string
	NodesReady           int
	NodesTotal           int
	Pods                 []PhaseCount
	PodsTotal            int
	DeploymentsAvailable int
	DeploymentsTotal     int
	// AllocatableCPU and AllocatableMemory sum node allocatable capacity
	AllocatableCPU    apiresource.Quantity
	AllocatableMemory apiresource.Quantity
	Events            events.Summary
	CollectedAt       time.Time
}

// MemoryGB is the allocatable memory in gigabytes
func (o Overview) MemoryGB() float64 {
	return float64(o.AllocatableMemory.Value()) / (1024 * 1024 * 1024)
}

// Cores is the allocatable CPU in cores
func (o Overview) Cores() float64 {
	return float64(o.AllocatableCPU.MilliValue()) / 1000
}

// Collect gathers nodes, pods, deployments and events of namespace concurrently. Nodes are cluster-wide; an empty
// namespace means all namespaces.
func Collect(ctx context.Context, cs kubernetes.Interface, namespace string, now time.Time) (Overview, error) {
	o := Overview{Namespace: namespace, CollectedAt: now}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		nodes, err := cs.CoreV1().Nodes().List(gctx, metav1.ListOptions{})
		if err != nil {
			return kerrors.Classify(err, "failed to list nodes")
		}
		cpu, mem := apiresource.Quantity{}, apiresource.Quantity{}
		for _, n := range nodes.Items {
			o.NodesTotal++
			if resource.NodeStatus(n) == "Ready" {
				o.NodesReady++
			}
			if q, ok := n.Status.Allocatable[corev1.ResourceCPU]; ok {
				cpu.Add(q)
			}
			if q, ok := n.Status.Allocatable[corev1.ResourceMemory]; ok {
				mem.Add(q)
			}
		}
		o.AllocatableCPU, o.AllocatableMemory = cpu, mem
		return nil
	})

	g.Go(func() error {
		pods, err := cs.CoreV1().Pods(namespace).List(gctx, metav1.ListOptions{})
		if err != nil {
			return kerrors.Classify(err, "failed to list pods")
		}
		counts := make(map[corev1.PodPhase]int)
		for _, p := range pods.Items {
			phase := p.Status.Phase
			if phase == "" {
				phase = corev1.PodUnknown
			}
			counts[phase]++
		}
		o.PodsTotal = len(pods.Items)
		o.Pods = make([]PhaseCount, 0, len(podPhases))
		for _, phase := range podPhases {
			o.Pods = append(o.Pods, PhaseCount{Phase: phase, Count: counts[phase]})
		}
		return nil
	})

	g.Go(func() error {
		deps, err := cs.AppsV1().Deployments(namespace).List(gctx, metav1.ListOptions{})
		if err != nil {
			return kerrors.Classify(err, "failed to list deployments")
		}
		o.DeploymentsTotal = len(deps.Items)
		for _, d := range deps.Items {
			if d.Status.AvailableReplicas > 0 && d.Status.AvailableReplicas >= replicas(d.Spec.Replicas) {
				o.DeploymentsAvailable++
			}
		}
		return nil
	})

	g.Go(func() error {
		evs, err := events.List(gctx, cs, namespace, eventSampleSize)
		if err != nil {
			// events are informational, the rest of the overview is still useful
			dev.Debug("overview events unavailable", "err", err.Error())
			return nil
		}
		o.Events = events.Summarize(evs, now)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return o, nil
}

func replicas(r *int32) int32 {
	if r == nil {
		return 1
	}
	return *r
}
