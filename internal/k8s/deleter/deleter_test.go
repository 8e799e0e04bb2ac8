package deleter

import (
	"context"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/model"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"
	"strings"
	"sync"
	"testing"
)

var (
	catalog   = resource.DefaultCatalog()
	podsKind  = catalog.MustLookup("pods")
	nodesKind = catalog.MustLookup("nodes")
)

func object(apiVersion, kind, namespace, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(apiVersion)
	u.SetKind(kind)
	u.SetNamespace(namespace)
	u.SetName(name)
	return u
}

func newFakeClient(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClient(runtime.NewScheme(), objs...)
}

func TestDeleteUsesGraceAndForegroundPropagation(t *testing.T) {
	client := newFakeClient(object("v1", "Pod", "default", "web-1"))
	var opts metav1.DeleteOptions
	client.PrependReactor("delete", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		opts = action.(k8stesting.DeleteAction).GetDeleteOptions()
		return false, nil, nil
	})

	res := New(client).Delete(context.Background(), podsKind, model.ObjectRef{Kind: "pods", Namespace: "default", Name: "web-1"})
	if res.Err != nil {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if opts.GracePeriodSeconds == nil || *opts.GracePeriodSeconds != 30 {
		t.Errorf("grace period %v", opts.GracePeriodSeconds)
	}
	if opts.PropagationPolicy == nil || *opts.PropagationPolicy != metav1.DeletePropagationForeground {
		t.Errorf("propagation %v", opts.PropagationPolicy)
	}

	_, err := client.Resource(podsKind.GVR).Namespace("default").Get(context.Background(), "web-1", metav1.GetOptions{})
	if !apierrors.IsNotFound(err) {
		t.Errorf("pod still present: %v", err)
	}
}

func TestDeleteValidation(t *testing.T) {
	d := New(newFakeClient())
	tests := []struct {
		name    string
		kind    resource.Kind
		target  model.ObjectRef
		message string
	}{
		{"missing namespace", podsKind, model.ObjectRef{Name: "web-1"}, "Namespace is required to delete pod 'web-1'"},
		{"missing name", podsKind, model.ObjectRef{Namespace: "default"}, "Resource name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Delete(context.Background(), tt.kind, tt.target)
			if kerrors.CodeOf(res.Err) != kerrors.CodeInvalidRequest {
				t.Fatalf("got %v", res.Err)
			}
			if res.Message() != tt.message {
				t.Errorf("message %q, want %q", res.Message(), tt.message)
			}
		})
	}
}

func TestDeleteClusterScopedIgnoresNamespace(t *testing.T) {
	client := newFakeClient(object("v1", "Node", "", "node-a"))
	var namespace string
	client.PrependReactor("delete", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		namespace = action.GetNamespace()
		return false, nil, nil
	})
	res := New(client).Delete(context.Background(), nodesKind, model.ObjectRef{Namespace: "default", Name: "node-a"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if namespace != "" {
		t.Errorf("cluster-scoped delete sent namespace %q", namespace)
	}
}

func TestDeleteErrorMessages(t *testing.T) {
	client := newFakeClient()
	client.PrependReactor("delete", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		name := action.(k8stesting.DeleteAction).GetName()
		switch name {
		case "forbidden":
			return true, nil, apierrors.NewForbidden(podsKind.GVR.GroupResource(), name, fmt.Errorf("rbac"))
		case "conflict":
			return true, nil, apierrors.NewConflict(podsKind.GVR.GroupResource(), name, fmt.Errorf("busy"))
		case "broken":
			return true, nil, apierrors.NewInternalError(fmt.Errorf("etcd"))
		}
		return false, nil, nil
	})
	d := New(client)

	tests := []struct {
		name string
		want string
	}{
		{"missing", "Resource 'missing' not found"},
		{"forbidden", "Permission denied to delete 'forbidden'"},
		{"conflict", "Conflict while deleting 'conflict' - resource may have dependencies"},
		{"broken", "Kubernetes API error: 500 - InternalError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Delete(context.Background(), podsKind, model.ObjectRef{Namespace: "default", Name: tt.name})
			if res.Err == nil {
				t.Fatal("expected error")
			}
			if got := res.Message(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeleteBatch(t *testing.T) {
	var objs []runtime.Object
	var targets []model.ObjectRef
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("web-%d", i)
		if i%3 != 0 {
			objs = append(objs, object("v1", "Pod", "default", name))
		}
		targets = append(targets, model.ObjectRef{Kind: "pods", Namespace: "default", Name: name})
	}
	client := newFakeClient(objs...)

	var mu sync.Mutex
	var calls []int
	batch := New(client).WithConcurrency(3).DeleteBatch(context.Background(), podsKind, targets, func(done, total int, last Result) {
		mu.Lock()
		defer mu.Unlock()
		if total != len(targets) {
			t.Errorf("total %d", total)
		}
		calls = append(calls, done)
	})

	if len(batch.Succeeded) != 5 || len(batch.Failed) != 3 {
		t.Fatalf("succeeded %d failed %d", len(batch.Succeeded), len(batch.Failed))
	}
	for i, want := range []string{"web-0", "web-3", "web-6"} {
		if batch.Failed[i].Target.Name != want {
			t.Errorf("failure %d = %s, want %s", i, batch.Failed[i].Target.Name, want)
		}
	}
	if len(calls) != len(targets) || calls[len(calls)-1] != len(targets) {
		t.Errorf("progress calls %v", calls)
	}
}

func TestSummary(t *testing.T) {
	var batch BatchResult
	batch.Succeeded = []Result{{Target: model.ObjectRef{Name: "ok"}}}
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("p%d", i)
		batch.Failed = append(batch.Failed, Result{
			Target: model.ObjectRef{Name: name},
			Err:    kerrors.Classify(apierrors.NewNotFound(podsKind.GVR.GroupResource(), name), ""),
		})
	}
	got := batch.Summary("Pods")
	lines := strings.Split(got, "\n")
	if lines[0] != "Deleted 1 of 8 Pods." {
		t.Errorf("first line %q", lines[0])
	}
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines, got %d:\n%s", len(lines), got)
	}
	if lines[1] != "p0: Resource 'p0' not found" {
		t.Errorf("failure line %q", lines[1])
	}
	if lines[6] != "... and 2 more." {
		t.Errorf("last line %q", lines[6])
	}

	if got := (BatchResult{Succeeded: []Result{{}, {}}}).Summary("Services"); got != "Deleted 2 of 2 Services." {
		t.Errorf("got %q", got)
	}
}
