package command

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/go-cmp/cmp"
	"github.com/orchestrix-io/orchestrix/internal/k8s/client"
	"github.com/orchestrix-io/orchestrix/internal/k8s/deleter"
	"github.com/orchestrix-io/orchestrix/internal/k8s/k8s_log"
	"github.com/orchestrix-io/orchestrix/internal/k8s/loader"
	"github.com/orchestrix-io/orchestrix/internal/k8s/resource"
	"github.com/orchestrix-io/orchestrix/internal/model"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"testing"
	"time"
)

var (
	catalog  = resource.DefaultCatalog()
	podsKind = catalog.MustLookup("pods")
	now      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func pod(namespace, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("v1")
	u.SetKind("Pod")
	u.SetNamespace(namespace)
	u.SetName(name)
	u.SetUID(types.UID(namespace + "-" + name))
	return u
}

func newDynamic(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{podsKind.GVR: "PodList"},
		objs...,
	)
}

func TestLoadPageCmd(t *testing.T) {
	dyn := newDynamic(pod("default", "a"), pod("default", "b"), pod("other", "c"))
	l := loader.New(loader.DynamicLister{Client: dyn}, loader.DefaultConfig())
	session := loader.NewSession("dev", podsKind, "default", 25)
	req, gen := session.Reload()

	msg := LoadPageCmd(context.Background(), l, req, gen)().(PageLoadedMsg)
	if msg.Err != nil {
		t.Fatal(msg.Err)
	}
	if msg.Generation != gen {
		t.Errorf("generation %d, want %d", msg.Generation, gen)
	}
	if !session.Apply(msg.Generation, msg.Page) {
		t.Fatal("page not applied")
	}
	var names []string
	for _, r := range session.Rows() {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !session.AllLoaded() {
		t.Error("expected listing to be complete")
	}
	if msg.Stats.Loads != 1 || msg.Stats.SuccessRate != 1 {
		t.Errorf("stats %+v", msg.Stats)
	}
}

func TestLoadPageCmdError(t *testing.T) {
	l := loader.New(failingLister{err: errors.New("boom")}, loader.DefaultConfig())
	session := loader.NewSession("dev", podsKind, "default", 25)
	req, gen := session.Reload()

	msg := LoadPageCmd(context.Background(), l, req, gen)().(PageLoadedMsg)
	if msg.Err == nil {
		t.Fatal("expected error")
	}
	if msg.Page.Request.Kind.Name != "pods" {
		t.Errorf("request not carried back with the error")
	}
	if action := session.Fail(msg.Generation, msg.Err); action != loader.FailShowError {
		t.Errorf("action %v", action)
	}
	if msg.Stats.Loads == 0 || msg.Stats.SuccessRate != 0 {
		t.Errorf("stats %+v", msg.Stats)
	}
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context, resource.Kind, string, metav1.ListOptions) (*unstructured.UnstructuredList, error) {
	return nil, f.err
}

func TestDeleteJob(t *testing.T) {
	dyn := newDynamic(pod("default", "a"), pod("default", "b"))
	d := deleter.New(dyn)
	targets := []model.ObjectRef{
		{Kind: "pods", Namespace: "default", Name: "a"},
		{Kind: "pods", Namespace: "default", Name: "missing"},
		{Kind: "pods", Namespace: "default", Name: "b"},
	}

	started := StartDeleteCmd(context.Background(), d, podsKind, targets)().(DeleteStartedMsg)
	if started.Job.Total != 3 {
		t.Fatalf("total %d", started.Job.Total)
	}

	var progress []int
	var result DeletedMsg
	for {
		msg := WaitForDeleteCmd(started.Job)()
		if p, ok := msg.(DeleteProgressMsg); ok {
			progress = append(progress, p.Done)
			continue
		}
		result = msg.(DeletedMsg)
		break
	}
	if diff := cmp.Diff([]int{1, 2, 3}, progress); diff != "" {
		t.Errorf("progress (-want +got):\n%s", diff)
	}
	if len(result.Result.Succeeded) != 2 || len(result.Result.Failed) != 1 {
		t.Fatalf("unexpected result %+v", result.Result)
	}
	if result.Result.Failed[0].Message() != "Resource 'missing' not found" {
		t.Errorf("message %q", result.Result.Failed[0].Message())
	}
}

func TestGetDetailCmd(t *testing.T) {
	dyn := newDynamic(pod("default", "web"))
	cs := fake.NewSimpleClientset(&corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: "web.1", Namespace: "default"},
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "web", Namespace: "default"},
		Type:           corev1.EventTypeWarning,
		Reason:         "BackOff",
		Message:        "Back-off restarting failed container",
		LastTimestamp:  metav1.NewTime(now.Add(-time.Minute)),
	})

	ref := model.ObjectRef{Kind: "pods", Namespace: "default", Name: "web"}
	msg := GetDetailCmd(context.Background(), dyn, cs, podsKind, ref, now)().(DetailLoadedMsg)
	if msg.Err != nil {
		t.Fatal(msg.Err)
	}
	if msg.YAML == "" || len(msg.Fields) == 0 {
		t.Error("expected yaml and fields")
	}
	if msg.EventsErr != nil || len(msg.Events) != 1 || msg.Events[0].Reason != "BackOff" {
		t.Errorf("unexpected events %+v (%v)", msg.Events, msg.EventsErr)
	}

	missing := GetDetailCmd(context.Background(), dyn, cs, podsKind, model.ObjectRef{Kind: "pods", Namespace: "default", Name: "gone"}, now)().(DetailLoadedMsg)
	if missing.Err == nil {
		t.Error("expected error for a missing object")
	}
}

func TestStartLogScannersCmd(t *testing.T) {
	cs := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
	})
	c := client.NewFromInterfaces("dev", "cluster", "default", cs, nil)

	msg := StartLogScannersCmd(context.Background(), c, model.ObjectRef{Kind: "pods", Namespace: "default", Name: "web"}, client.LogOptions{})().(StartedLogScannersMsg)
	if msg.Err != nil {
		t.Fatal(msg.Err)
	}
	if len(msg.LogScanners) != 1 || msg.LogScanners[0].Container.Container != "app" {
		t.Fatalf("unexpected scanners %+v", msg.LogScanners)
	}

	var lines []string
	for {
		logs := GetNextLogsCmd(msg.LogScanners[0], 10*time.Millisecond)().(GetNewLogsMsg)
		if logs.Err != nil {
			t.Fatal(logs.Err)
		}
		for _, l := range logs.NewLogs {
			lines = append(lines, l.Content)
		}
		if logs.DoneScanning {
			break
		}
	}
	// the fake clientset serves a fixed body for every log request
	if diff := cmp.Diff([]string{"fake logs"}, lines); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	missing := StartLogScannersCmd(context.Background(), c, model.ObjectRef{Kind: "pods", Namespace: "default", Name: "gone"}, client.LogOptions{})().(StartedLogScannersMsg)
	if missing.Err == nil {
		t.Error("expected error for a missing pod")
	}
}

func TestCollectLogsForDuration(t *testing.T) {
	ls := k8s_log.LogScanner{LogChan: make(chan k8s_log.Log, 3), ErrChan: make(chan error, 1)}
	ls.LogChan <- k8s_log.Log{Content: "one"}
	ls.LogChan <- k8s_log.Log{Content: "two"}

	res := collectLogsForDuration(ls, 10*time.Millisecond)
	if len(res.collectedLogs) != 2 || res.doneScanning || res.err != nil {
		t.Errorf("unexpected open result %+v", res)
	}

	ls.LogChan <- k8s_log.Log{Content: "three"}
	ls.ErrChan <- errors.New("stream reset")
	close(ls.LogChan)
	close(ls.ErrChan)
	res = collectLogsForDuration(ls, time.Second)
	if len(res.collectedLogs) != 1 || !res.doneScanning || res.err == nil {
		t.Errorf("unexpected closed result %+v", res)
	}
}

func TestCheckNamespaceCmd(t *testing.T) {
	namespace := func(name string) *corev1.Namespace {
		return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	}
	cs := fake.NewSimpleClientset(namespace("default"), namespace("kube-system"), namespace("team-a"))
	c := client.NewFromInterfaces("dev", "cluster", "default", cs, nil)

	tests := []struct {
		namespace string
		exists    bool
	}{
		{"kube-system", true},
		{"team-a", true},
		{"team", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.namespace, func(t *testing.T) {
			msg := CheckNamespaceCmd(context.Background(), c, tt.namespace, time.Second)().(NamespaceCheckedMsg)
			if diff := cmp.Diff(NamespaceCheckedMsg{Namespace: tt.namespace, Exists: tt.exists}, msg); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckNamespaceCmdForbiddenListing(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.PrependReactor("list", "namespaces", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "namespaces"}, "", fmt.Errorf("rbac"))
	})
	c := client.NewFromInterfaces("dev", "cluster", "default", cs, nil)

	msg := CheckNamespaceCmd(context.Background(), c, "team-a", time.Second)().(NamespaceCheckedMsg)
	if !msg.Exists {
		t.Error("a namespace that cannot be checked should still be switched to")
	}
}
